package repository

import (
	"context"

	"github.com/tu-usuario/mifiscal-api/internal/domain/entity"
)

// SyncHistoryRepository persiste el historial de sincronizaciones.
type SyncHistoryRepository interface {
	Create(ctx context.Context, h *entity.SyncHistory) error
	// Update persiste la transición terminal (status, tiempos, resultados, error).
	Update(ctx context.Context, h *entity.SyncHistory) error
	// GetMostRecent devuelve la corrida más reciente del usuario, o nil si no hay.
	GetMostRecent(ctx context.Context, userID string) (*entity.SyncHistory, error)
}
