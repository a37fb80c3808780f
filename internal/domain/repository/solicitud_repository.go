package repository

import (
	"context"

	"github.com/tu-usuario/mifiscal-api/internal/domain/entity"
)

// SolicitudRepository persiste las solicitudes de descarga enviadas al SAT,
// para auditoría y para poder retomar solicitudes terminadas sin re-solicitar.
type SolicitudRepository interface {
	Create(ctx context.Context, s *entity.SolicitudDescarga) error
	GetByIDSolicitud(ctx context.Context, idSolicitud string) (*entity.SolicitudDescarga, error)
	ListBySyncHistory(ctx context.Context, syncHistoryID string) ([]*entity.SolicitudDescarga, error)
}
