package sync

import (
	"context"

	"github.com/tu-usuario/mifiscal-api/internal/domain/entity"
	"github.com/tu-usuario/mifiscal-api/internal/infrastructure/paquete"
)

// SyncLock serializa las corridas de sincronización por usuario.
// La implementación concreta usa Redis (SETNX + TTL).
type SyncLock interface {
	// AdquirirLock devuelve un token de liberación y false si otra corrida
	// del mismo usuario está en curso.
	AdquirirLock(ctx context.Context, userID string) (string, bool, error)
	LiberarLock(ctx context.Context, userID, token string) error
}

// EstadoCache cachea la corrida más reciente para consultas de estado baratas.
type EstadoCache interface {
	GuardarEstado(ctx context.Context, userID string, h *entity.SyncHistory) error
	// ObtenerEstado devuelve nil sin error en caso de miss.
	ObtenerEstado(ctx context.Context, userID string) (*entity.SyncHistory, error)
	InvalidarEstado(ctx context.Context, userID string) error
}

// Procesador transforma un paquete ZIP del SAT en comprobantes parseados.
type Procesador interface {
	ProcesarPaquete(zipBytes []byte) ([]paquete.Resultado, error)
}
