package entity

import "time"

// TipoDescarga indica si la solicitud busca CFDIs emitidos o recibidos por el contribuyente.
type TipoDescarga string

const (
	DescargaEmitidos  TipoDescarga = "emitidos"
	DescargaRecibidos TipoDescarga = "recibidos"
)

// Estados de una solicitud de descarga masiva según el SAT.
// El código numérico (1-6) que devuelve VerificaSolicitud se mapea a estos valores.
type EstadoSolicitud string

const (
	SolicitudSolicitada EstadoSolicitud = "solicitada" // enviada, sin verificar aún
	SolicitudAceptada   EstadoSolicitud = "aceptada"   // 1
	SolicitudEnProceso  EstadoSolicitud = "en_proceso" // 2
	SolicitudTerminada  EstadoSolicitud = "terminada"  // 3, paquetes listos
	SolicitudError      EstadoSolicitud = "error"      // 4
	SolicitudRechazada  EstadoSolicitud = "rechazada"  // 5
	SolicitudVencida    EstadoSolicitud = "vencida"    // 6
	SolicitudDescargada EstadoSolicitud = "descargada" // paquetes ya descargados
)

// Terminal indica si el estado ya no puede cambiar por polling.
func (e EstadoSolicitud) Terminal() bool {
	switch e {
	case SolicitudTerminada, SolicitudError, SolicitudRechazada, SolicitudVencida, SolicitudDescargada:
		return true
	}
	return false
}

// SolicitudDescarga es una petición de descarga masiva pendiente ante el SAT.
// Se crea al enviar la solicitud y solo el polling la muta; una vez terminal
// no cambia más.
type SolicitudDescarga struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	SyncHistoryID string `json:"sync_history_id,omitempty"`

	// IDSolicitud es el identificador asignado por el SAT.
	IDSolicitud string `json:"id_solicitud"`

	TipoDescarga TipoDescarga `json:"tipo_descarga"`
	FechaInicio  time.Time    `json:"fecha_inicio"`
	FechaFin     time.Time    `json:"fecha_fin"`
	RFCEmisor    string       `json:"rfc_emisor,omitempty"`
	RFCReceptor  string       `json:"rfc_receptor,omitempty"`

	Estado       EstadoSolicitud `json:"estado"`
	CodigoEstado string          `json:"codigo_estado_sat,omitempty"` // código crudo 1-6

	NumeroPaquetes int      `json:"numero_paquetes"`
	IdsPaquetes    []string `json:"ids_paquetes,omitempty"`
	MensajeSAT     string   `json:"mensaje_sat,omitempty"`

	SolicitadaAt time.Time  `json:"solicitada_at"`
	TerminadaAt  *time.Time `json:"terminada_at,omitempty"`
	DescargadaAt *time.Time `json:"descargada_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
