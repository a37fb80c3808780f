package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tu-usuario/mifiscal-api/internal/domain"
	"github.com/tu-usuario/mifiscal-api/internal/domain/entity"
	"github.com/tu-usuario/mifiscal-api/internal/domain/repository"
)

var _ repository.SolicitudRepository = (*SolicitudRepo)(nil)

// SolicitudRepo implementación de SolicitudRepository (usable con pool o tx).
type SolicitudRepo struct {
	q Querier
}

// NewSolicitudRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSolicitudRepository(q Querier) *SolicitudRepo {
	return &SolicitudRepo{q: q}
}

// Create persiste la solicitud de descarga con su estado final de polling.
func (r *SolicitudRepo) Create(ctx context.Context, s *entity.SolicitudDescarga) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	query := `
		INSERT INTO solicitudes_descarga_sat (id, user_id, sync_history_id, id_solicitud,
		       tipo_descarga, fecha_inicio, fecha_fin, rfc_emisor, rfc_receptor,
		       estado, codigo_estado_sat, numero_paquetes, ids_paquetes, mensaje_sat,
		       solicitada_at, terminada_at, descargada_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	_, err := r.q.Exec(ctx, query,
		s.ID, s.UserID, nullIfEmpty(s.SyncHistoryID), s.IDSolicitud,
		string(s.TipoDescarga), s.FechaInicio, s.FechaFin,
		nullIfEmpty(s.RFCEmisor), nullIfEmpty(s.RFCReceptor),
		string(s.Estado), nullIfEmpty(s.CodigoEstado), s.NumeroPaquetes, s.IdsPaquetes,
		nullIfEmpty(s.MensajeSAT), s.SolicitadaAt, s.TerminadaAt, s.DescargadaAt,
		s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert solicitud: %w", err)
	}
	return nil
}

// GetByIDSolicitud busca por el identificador asignado por el SAT.
func (r *SolicitudRepo) GetByIDSolicitud(ctx context.Context, idSolicitud string) (*entity.SolicitudDescarga, error) {
	query := `
		SELECT id, user_id, COALESCE(sync_history_id, ''), id_solicitud,
		       tipo_descarga, fecha_inicio, fecha_fin,
		       COALESCE(rfc_emisor, ''), COALESCE(rfc_receptor, ''),
		       estado, COALESCE(codigo_estado_sat, ''), numero_paquetes, ids_paquetes,
		       COALESCE(mensaje_sat, ''), solicitada_at, terminada_at, descargada_at,
		       created_at, updated_at
		FROM solicitudes_descarga_sat WHERE id_solicitud = $1`
	s, err := escanearSolicitud(r.q.QueryRow(ctx, query, idSolicitud))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get solicitud: %w", err)
	}
	return s, nil
}

// ListBySyncHistory lista las solicitudes emitidas durante una corrida.
func (r *SolicitudRepo) ListBySyncHistory(ctx context.Context, syncHistoryID string) ([]*entity.SolicitudDescarga, error) {
	query := `
		SELECT id, user_id, COALESCE(sync_history_id, ''), id_solicitud,
		       tipo_descarga, fecha_inicio, fecha_fin,
		       COALESCE(rfc_emisor, ''), COALESCE(rfc_receptor, ''),
		       estado, COALESCE(codigo_estado_sat, ''), numero_paquetes, ids_paquetes,
		       COALESCE(mensaje_sat, ''), solicitada_at, terminada_at, descargada_at,
		       created_at, updated_at
		FROM solicitudes_descarga_sat WHERE sync_history_id = $1 ORDER BY solicitada_at`
	rows, err := r.q.Query(ctx, query, syncHistoryID)
	if err != nil {
		return nil, fmt.Errorf("list solicitudes: %w", err)
	}
	defer rows.Close()
	var list []*entity.SolicitudDescarga
	for rows.Next() {
		s, err := escanearSolicitud(rows)
		if err != nil {
			return nil, fmt.Errorf("scan solicitud: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func escanearSolicitud(row pgx.Row) (*entity.SolicitudDescarga, error) {
	var s entity.SolicitudDescarga
	var tipo, estado string
	err := row.Scan(
		&s.ID, &s.UserID, &s.SyncHistoryID, &s.IDSolicitud,
		&tipo, &s.FechaInicio, &s.FechaFin,
		&s.RFCEmisor, &s.RFCReceptor,
		&estado, &s.CodigoEstado, &s.NumeroPaquetes, &s.IdsPaquetes,
		&s.MensajeSAT, &s.SolicitadaAt, &s.TerminadaAt, &s.DescargadaAt,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.TipoDescarga = entity.TipoDescarga(tipo)
	s.Estado = entity.EstadoSolicitud(estado)
	return &s, nil
}
