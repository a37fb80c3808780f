package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/tu-usuario/mifiscal-api/internal/application/dto"
	appsync "github.com/tu-usuario/mifiscal-api/internal/application/sync"
	"github.com/tu-usuario/mifiscal-api/internal/domain"
	"github.com/tu-usuario/mifiscal-api/internal/domain/entity"
)

// SyncHandler maneja las peticiones HTTP de sincronización con el SAT (protegido).
type SyncHandler struct {
	uc *appsync.UseCase
}

// NewSyncHandler construye el handler.
func NewSyncHandler(uc *appsync.UseCase) *SyncHandler {
	return &SyncHandler{uc: uc}
}

// StartFull dispara una sincronización completa en background y responde 202.
// POST /api/sat/sync
func (h *SyncHandler) StartFull(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	in := dto.SyncRequest{MonthsBack: 12}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
		}
	}
	if in.MonthsBack < 1 || in.MonthsBack > 72 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "months_back debe estar entre 1 y 72"})
	}

	if err := h.rechazarSiEnCurso(c); err != nil {
		return err
	}

	// La corrida bloquea hasta media hora por dirección: siempre en goroutine
	// propia, desacoplada del ciclo HTTP.
	go func() {
		if _, err := h.uc.SyncAll(context.Background(), userID, in.MonthsBack); err != nil &&
			!errors.Is(err, domain.ErrSyncEnCurso) {
			log.Error().Err(err).Str("user_id", userID).Msg("sincronización completa no pudo iniciar")
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(dto.SyncAcceptedResponse{
		Status:  entity.SyncStatusRunning,
		Message: "sincronización iniciada, consulta /api/sat/sync/status",
	})
}

// StartQuick dispara una sincronización de los últimos días en background.
// POST /api/sat/sync/quick
func (h *SyncHandler) StartQuick(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	in := dto.SyncQuickRequest{DaysBack: 30}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
		}
	}
	if in.DaysBack < 1 || in.DaysBack > 365 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "days_back debe estar entre 1 y 365"})
	}

	if err := h.rechazarSiEnCurso(c); err != nil {
		return err
	}

	go func() {
		if _, err := h.uc.SyncRecent(context.Background(), userID, in.DaysBack); err != nil &&
			!errors.Is(err, domain.ErrSyncEnCurso) {
			log.Error().Err(err).Str("user_id", userID).Msg("sincronización rápida no pudo iniciar")
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(dto.SyncAcceptedResponse{
		Status:  entity.SyncStatusRunning,
		Message: "sincronización iniciada, consulta /api/sat/sync/status",
	})
}

// Status devuelve la corrida más reciente del usuario.
// GET /api/sat/sync/status
func (h *SyncHandler) Status(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	hist, totalCFDIs, err := h.uc.LastSyncStatus(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	if hist == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "el usuario no ha sincronizado nunca"})
	}
	return c.JSON(dto.SyncStatusFromEntity(hist, totalCFDIs))
}

// rechazarSiEnCurso responde 409 si la corrida más reciente sigue activa.
// El lock distribuido es la barrera real; esto solo da una respuesta clara
// sin arrancar una goroutine condenada a fallar.
func (h *SyncHandler) rechazarSiEnCurso(c *fiber.Ctx) error {
	hist, _, err := h.uc.LastSyncStatus(c.Context(), GetUserID(c))
	if err == nil && hist != nil && hist.Status == entity.SyncStatusRunning {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "SYNC_IN_PROGRESS", Message: "ya hay una sincronización en curso"})
	}
	return nil
}
