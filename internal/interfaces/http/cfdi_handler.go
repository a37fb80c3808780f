package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tu-usuario/mifiscal-api/internal/application/cfdis"
	"github.com/tu-usuario/mifiscal-api/internal/application/dto"
	"github.com/tu-usuario/mifiscal-api/internal/domain"
	"github.com/tu-usuario/mifiscal-api/internal/domain/repository"
)

// CFDIHandler maneja las consultas de comprobantes sincronizados (protegido).
type CFDIHandler struct {
	uc *cfdis.UseCase
}

// NewCFDIHandler construye el handler.
func NewCFDIHandler(uc *cfdis.UseCase) *CFDIHandler {
	return &CFDIHandler{uc: uc}
}

// List lista los comprobantes del usuario con filtros y paginación.
// GET /api/cfdis?fecha_inicio=&fecha_fin=&tipo=&deducibles=&limit=&offset=
func (h *CFDIHandler) List(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var in dto.CFDIListRequest
	if err := c.QueryParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "parámetros inválidos"})
	}
	in.DefaultPage()

	filtro := repository.FiltroCFDI{
		TipoComprobante: in.TipoComprobante,
		SoloDeducibles:  in.SoloDeducibles,
	}
	if in.FechaInicio != "" {
		t, err := time.Parse("2006-01-02", in.FechaInicio)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "fecha_inicio debe ser YYYY-MM-DD"})
		}
		filtro.FechaInicio = &t
	}
	if in.FechaFin != "" {
		t, err := time.Parse("2006-01-02", in.FechaFin)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "fecha_fin debe ser YYYY-MM-DD"})
		}
		filtro.FechaFin = &t
	}

	items, total, err := h.uc.List(c.Context(), userID, filtro, in.Limit, in.Offset)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(dto.CFDIListResponse{
		Items: items,
		Page:  dto.PageResponse{Limit: in.Limit, Offset: in.Offset, Total: total},
	})
}

// GetByID obtiene un comprobante completo.
// GET /api/cfdis/:id
func (h *CFDIHandler) GetByID(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	cfdi, err := h.uc.Get(c.Context(), userID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "comprobante no encontrado"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(cfdi)
}

// DownloadPDF descarga la representación impresa del comprobante.
// GET /api/cfdis/:id/pdf
func (h *CFDIHandler) DownloadPDF(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	pdfBytes, filename, err := h.uc.DownloadPDF(c.Context(), userID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "comprobante no encontrado"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Send(pdfBytes)
}
