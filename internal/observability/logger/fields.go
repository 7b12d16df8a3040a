package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

// RequestID crea un campo para el ID del request.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field {
	return zap.String("method", v)
}

// Path crea un campo para el path del request.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// Duration crea un campo para la duración del request.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - PROTOCOLO
// =================================================================================

// ClientID crea un campo para el client_id OAuth.
func ClientID(v string) zap.Field {
	return zap.String("client_id", v)
}

// Subject crea un campo para el subject (usuario dueño del grant).
func Subject(v string) zap.Field {
	return zap.String("sub", v)
}

// GrantType crea un campo para el grant_type.
func GrantType(v string) zap.Field {
	return zap.String("grant_type", v)
}

// AuthMethod crea un campo para el método de autenticación del client.
func AuthMethod(v string) zap.Field {
	return zap.String("auth_method", v)
}

// Scope crea un campo para el scope solicitado/otorgado.
func Scope(v string) zap.Field {
	return zap.String("scope", v)
}

// ErrorCode crea un campo para el código de error OAuth2.
func ErrorCode(v string) zap.Field {
	return zap.String("error_code", v)
}

// TokenID crea un campo para el ID interno de un token.
func TokenID(v string) zap.Field {
	return zap.String("token_id", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Layer crea un campo para la capa (endpoint, grant, clientauth, storage).
func Layer(v string) zap.Field {
	return zap.String("layer", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// =================================================================================
// CAMPOS GENÉRICOS
// =================================================================================

// Count crea un campo para un contador.
func Count(v int) zap.Field {
	return zap.Int("count", v)
}

// Any crea un campo genérico para cualquier tipo.
func Any(key string, v any) zap.Field {
	return zap.Any(key, v)
}

// String crea un campo string genérico.
func String(key, v string) zap.Field {
	return zap.String(key, v)
}

// Int crea un campo int genérico.
func Int(key string, v int) zap.Field {
	return zap.Int(key, v)
}

// Bool crea un campo bool genérico.
func Bool(key string, v bool) zap.Field {
	return zap.Bool(key, v)
}
