package repository

// Store agrupa los repositorios por entidad. Los adapters (memory, redis,
// postgres) implementan esta interfaz completa.
type Store interface {
	Clients() ClientRepository
	Codes() CodeRepository
	Tokens() TokenRepository
	DeviceCodes() DeviceCodeRepository
	Consents() ConsentRepository
}
