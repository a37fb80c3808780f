package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrUnauthorized = errors.New("no autorizado")
	ErrForbidden    = errors.New("acceso denegado")

	// ErrCredencialesNoConfiguradas indica que el usuario no ha cargado su
	// e.firma. Condición fatal para una sincronización: no se intenta ningún
	// llamado remoto.
	ErrCredencialesNoConfiguradas = errors.New("credenciales SAT no configuradas")

	// ErrCertificadoInvalido indica que el certificado no pudo cargarse o no
	// está vigente. También fatal, no reintentable.
	ErrCertificadoInvalido = errors.New("certificado e.firma inválido")

	// ErrSyncEnCurso indica que ya hay una sincronización corriendo para el
	// mismo usuario; las corridas concurrentes por usuario están prohibidas.
	ErrSyncEnCurso = errors.New("sincronización en curso para el usuario")
)
