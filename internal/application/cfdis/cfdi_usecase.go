// Package cfdis implementa las consultas de comprobantes ya sincronizados.
package cfdis

import (
	"context"
	"fmt"

	"github.com/tu-usuario/mifiscal-api/internal/domain/entity"
	"github.com/tu-usuario/mifiscal-api/internal/domain/repository"
)

// CFDIPDFGenerator genera la representación impresa de un comprobante.
type CFDIPDFGenerator interface {
	GenerarCFDIPDF(ctx context.Context, c *entity.CFDI) ([]byte, error)
}

// UseCase expone listados, detalle y representación impresa de CFDIs.
// Todas las consultas están acotadas al usuario dueño de los comprobantes.
type UseCase struct {
	cfdiRepo  repository.CFDIRepository
	generador CFDIPDFGenerator
}

// NewUseCase construye el caso de uso.
func NewUseCase(cfdiRepo repository.CFDIRepository, generador CFDIPDFGenerator) *UseCase {
	return &UseCase{cfdiRepo: cfdiRepo, generador: generador}
}

// List devuelve una página de comprobantes del usuario más el total sin paginar.
func (uc *UseCase) List(ctx context.Context, userID string, filtro repository.FiltroCFDI, limit, offset int) ([]*entity.CFDI, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return uc.cfdiRepo.List(ctx, userID, filtro, limit, offset)
}

// Get devuelve un comprobante del usuario, o domain.ErrNotFound.
func (uc *UseCase) Get(ctx context.Context, userID, id string) (*entity.CFDI, error) {
	return uc.cfdiRepo.GetByID(ctx, userID, id)
}

// DownloadPDF genera la representación impresa del comprobante.
//
// Retorna:
//   - (pdfBytes, filename, nil)  si todo sale bien.
//   - domain.ErrNotFound         si el comprobante no existe o no es del usuario.
func (uc *UseCase) DownloadPDF(ctx context.Context, userID, id string) (pdfBytes []byte, filename string, err error) {
	c, err := uc.cfdiRepo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, "", err
	}
	pdfBytes, err = uc.generador.GenerarCFDIPDF(ctx, c)
	if err != nil {
		return nil, "", fmt.Errorf("pdf: generación fallida: %w", err)
	}
	return pdfBytes, "cfdi_" + c.UUID + ".pdf", nil
}
