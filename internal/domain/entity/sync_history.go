package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de una corrida de sincronización.
const (
	SyncStatusPending   = "pending"
	SyncStatusRunning   = "running"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
	SyncStatusCancelled = "cancelled" // reservado; no se dispara internamente
)

// Tipos de sincronización.
const (
	SyncTypeFull   = "full"   // varios meses hacia atrás
	SyncTypeQuick  = "quick"  // últimos días
	SyncTypeManual = "manual" // archivo específico cargado a mano
)

// SyncError es un error acumulado durante la corrida (no fatal).
type SyncError struct {
	Origen  string `json:"origen"` // dirección, paquete o UUID afectado
	Detalle string `json:"detalle"`
}

// SyncResultados es el blob agregado de resultados de una corrida.
// Es el único contrato que las UIs externas usan para pintar el resultado.
type SyncResultados struct {
	CfdisDescargados int             `json:"cfdis_downloaded"`
	CfdisProcesados  int             `json:"cfdis_processed"`
	CfdisOmitidos    int             `json:"cfdis_skipped"`
	CfdisEmitidos    int             `json:"cfdis_emitidos"`
	CfdisRecibidos   int             `json:"cfdis_recibidos"`
	TotalIngresos    decimal.Decimal `json:"total_ingresos"`
	TotalEgresos     decimal.Decimal `json:"total_egresos"`
	// PoliticaEstado documenta la regla usada para decidir completed vs failed
	// cuando una dirección falla y la otra no.
	PoliticaEstado string      `json:"politica_estado,omitempty"`
	Errores        []SyncError `json:"errors"`
}

// SyncHistory es el registro durable de una corrida de sincronización con el SAT.
// Se crea con status=running al iniciar y se actualiza exactamente una vez al
// llegar a un estado terminal; inmutable después.
type SyncHistory struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	SyncType string `json:"sync_type"`
	Status   string `json:"status"`

	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds *int       `json:"duration_seconds,omitempty"`

	MonthsBack *int `json:"months_back,omitempty"`
	DaysBack   *int `json:"days_back,omitempty"`

	Results SyncResultados `json:"results"`

	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Terminar marca la corrida con su estado terminal, estampa la hora de
// finalización y calcula la duración.
func (h *SyncHistory) Terminar(status string, at time.Time) {
	h.Status = status
	h.CompletedAt = &at
	secs := int(at.Sub(h.StartedAt).Seconds())
	h.DurationSeconds = &secs
}
