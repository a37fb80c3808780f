package dto

import (
	"time"

	"github.com/tu-usuario/mifiscal-api/internal/domain/entity"
)

// SyncRequest cuerpo de POST /api/sat/sync.
type SyncRequest struct {
	MonthsBack int `json:"months_back" validate:"min=1,max=72"`
}

// SyncQuickRequest cuerpo de POST /api/sat/sync/quick.
type SyncQuickRequest struct {
	DaysBack int `json:"days_back" validate:"min=1,max=365"`
}

// SyncAcceptedResponse respuesta 202 al disparar una sincronización.
type SyncAcceptedResponse struct {
	SyncID  string `json:"sync_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SyncStatusResponse estado de la corrida más reciente (GET /api/sat/sync/status).
type SyncStatusResponse struct {
	SyncID          string                `json:"sync_id"`
	SyncType        string                `json:"sync_type"`
	Status          string                `json:"status"`
	StartedAt       time.Time             `json:"started_at"`
	CompletedAt     *time.Time            `json:"completed_at,omitempty"`
	DurationSeconds *int                  `json:"duration_seconds,omitempty"`
	MonthsBack      *int                  `json:"months_back,omitempty"`
	DaysBack        *int                  `json:"days_back,omitempty"`
	Results         entity.SyncResultados `json:"results"`
	ErrorMessage    string                `json:"error_message,omitempty"`

	// TotalCFDIs es el conteo vivo de comprobantes persistidos del usuario,
	// no un contador de la corrida.
	TotalCFDIs int `json:"total_cfdis"`
}

// SyncStatusFromEntity convierte el historial de dominio a la respuesta HTTP.
func SyncStatusFromEntity(h *entity.SyncHistory, totalCFDIs int) SyncStatusResponse {
	return SyncStatusResponse{
		SyncID:          h.ID,
		SyncType:        h.SyncType,
		Status:          h.Status,
		StartedAt:       h.StartedAt,
		CompletedAt:     h.CompletedAt,
		DurationSeconds: h.DurationSeconds,
		MonthsBack:      h.MonthsBack,
		DaysBack:        h.DaysBack,
		Results:         h.Results,
		ErrorMessage:    h.ErrorMessage,
		TotalCFDIs:      totalCFDIs,
	}
}

// CFDIListRequest filtros de GET /api/cfdis.
type CFDIListRequest struct {
	PageRequest
	FechaInicio     string `query:"fecha_inicio"` // YYYY-MM-DD
	FechaFin        string `query:"fecha_fin"`    // YYYY-MM-DD
	TipoComprobante string `query:"tipo"`         // I, E, T, N, P
	SoloDeducibles  bool   `query:"deducibles"`
}

// CFDIListResponse página de comprobantes.
type CFDIListResponse struct {
	Items []*entity.CFDI `json:"items"`
	Page  PageResponse   `json:"page"`
}
