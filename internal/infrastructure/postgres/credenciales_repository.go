package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/tu-usuario/mifiscal-api/internal/domain"
	"github.com/tu-usuario/mifiscal-api/internal/domain/entity"
	"github.com/tu-usuario/mifiscal-api/internal/domain/repository"
)

var _ repository.CredencialesRepository = (*CredencialesRepo)(nil)

// CredencialesRepo implementación de CredencialesRepository (usable con pool o tx).
type CredencialesRepo struct {
	q Querier
}

// NewCredencialesRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCredencialesRepository(q Querier) *CredencialesRepo {
	return &CredencialesRepo{q: q}
}

// GetByUserID devuelve las credenciales e.firma del usuario.
// Sin fila registrada devuelve domain.ErrCredencialesNoConfiguradas.
func (r *CredencialesRepo) GetByUserID(ctx context.Context, userID string) (*entity.CredencialesSAT, error) {
	query := `
		SELECT id, user_id, rfc, cer_path, key_path, password_cifrado, created_at, updated_at
		FROM sat_credenciales WHERE user_id = $1`
	var c entity.CredencialesSAT
	err := r.q.QueryRow(ctx, query, userID).Scan(
		&c.ID, &c.UserID, &c.RFC, &c.CerPath, &c.KeyPath, &c.PasswordCifrado,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCredencialesNoConfiguradas
		}
		return nil, fmt.Errorf("get credenciales: %w", err)
	}
	return &c, nil
}
