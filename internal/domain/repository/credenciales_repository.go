package repository

import (
	"context"

	"github.com/tu-usuario/mifiscal-api/internal/domain/entity"
)

// CredencialesRepository expone las credenciales e.firma almacenadas.
// La contraseña viaja cifrada; el descifrado es responsabilidad del caller.
type CredencialesRepository interface {
	// GetByUserID devuelve las credenciales del usuario o domain.ErrCredencialesNoConfiguradas.
	GetByUserID(ctx context.Context, userID string) (*entity.CredencialesSAT, error)
}
