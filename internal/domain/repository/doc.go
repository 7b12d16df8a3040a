// Package repository define los contratos de persistencia del engine:
// entidades (Client, AuthorizationCode, Token, DeviceCode, Consent) y las
// interfaces que los adapters de storage deben implementar.
//
// El engine nunca asume una representación concreta más allá de estos
// campos e invariantes. Atomicity of CodeRepository.Consume is the one
// guarantee the hosting datastore must provide.
package repository
