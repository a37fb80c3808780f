package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tu-usuario/mifiscal-api/internal/domain/entity"
	"github.com/tu-usuario/mifiscal-api/internal/domain/repository"
)

var _ repository.SyncHistoryRepository = (*SyncHistoryRepo)(nil)

// SyncHistoryRepo implementación de SyncHistoryRepository (usable con pool o tx).
type SyncHistoryRepo struct {
	q Querier
}

// NewSyncHistoryRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSyncHistoryRepository(q Querier) *SyncHistoryRepo {
	return &SyncHistoryRepo{q: q}
}

// Create persiste el registro inicial de la corrida (status=running).
func (r *SyncHistoryRepo) Create(ctx context.Context, h *entity.SyncHistory) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	results, err := json.Marshal(h.Results)
	if err != nil {
		return fmt.Errorf("serializar results: %w", err)
	}
	query := `
		INSERT INTO sync_history (id, user_id, sync_type, status, started_at, completed_at,
		                          duration_seconds, months_back, days_back, results, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = r.q.Exec(ctx, query,
		h.ID, h.UserID, h.SyncType, h.Status, h.StartedAt, h.CompletedAt,
		h.DurationSeconds, h.MonthsBack, h.DaysBack, results, nullIfEmpty(h.ErrorMessage), h.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sync history: %w", err)
	}
	return nil
}

// Update persiste la transición terminal de la corrida.
func (r *SyncHistoryRepo) Update(ctx context.Context, h *entity.SyncHistory) error {
	results, err := json.Marshal(h.Results)
	if err != nil {
		return fmt.Errorf("serializar results: %w", err)
	}
	query := `
		UPDATE sync_history
		SET status           = $2,
		    completed_at     = $3,
		    duration_seconds = $4,
		    results          = $5,
		    error_message    = $6
		WHERE id = $1`
	_, err = r.q.Exec(ctx, query,
		h.ID, h.Status, h.CompletedAt, h.DurationSeconds, results, nullIfEmpty(h.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("update sync history: %w", err)
	}
	return nil
}

// GetMostRecent devuelve la corrida más reciente del usuario, o nil si nunca ha sincronizado.
func (r *SyncHistoryRepo) GetMostRecent(ctx context.Context, userID string) (*entity.SyncHistory, error) {
	query := `
		SELECT id, user_id, sync_type, status, started_at, completed_at,
		       duration_seconds, months_back, days_back, results, COALESCE(error_message, ''), created_at
		FROM sync_history
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT 1`
	var h entity.SyncHistory
	var results []byte
	err := r.q.QueryRow(ctx, query, userID).Scan(
		&h.ID, &h.UserID, &h.SyncType, &h.Status, &h.StartedAt, &h.CompletedAt,
		&h.DurationSeconds, &h.MonthsBack, &h.DaysBack, &results, &h.ErrorMessage, &h.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get sync history: %w", err)
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &h.Results); err != nil {
			return nil, fmt.Errorf("deserializar results: %w", err)
		}
	}
	return &h, nil
}
