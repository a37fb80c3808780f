package repository

import (
	"context"
	"time"

	"github.com/tu-usuario/mifiscal-api/internal/domain/entity"
)

// FiltroCFDI acota los listados de comprobantes.
type FiltroCFDI struct {
	FechaInicio     *time.Time
	FechaFin        *time.Time
	TipoComprobante string // I, E, T, N, P; vacío = todos
	SoloDeducibles  bool
}

// CFDIRepository define la persistencia de comprobantes.
// La escritura es append-only: insertar-si-no-existe por (user_id, uuid).
type CFDIRepository interface {
	// InsertarSiNoExiste persiste el comprobante. Devuelve false (sin error)
	// si ya existía uno con el mismo folio fiscal para el usuario.
	InsertarSiNoExiste(ctx context.Context, c *entity.CFDI) (bool, error)

	// ExistePorUUID verifica si el folio fiscal ya está registrado para el usuario.
	ExistePorUUID(ctx context.Context, userID, uuid string) (bool, error)

	GetByID(ctx context.Context, userID, id string) (*entity.CFDI, error)
	List(ctx context.Context, userID string, filtro FiltroCFDI, limit, offset int) ([]*entity.CFDI, int, error)
	CountByUser(ctx context.Context, userID string) (int, error)
}
