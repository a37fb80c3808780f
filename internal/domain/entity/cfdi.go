package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de comprobante CFDI (atributo TipoDeComprobante del SAT).
const (
	TipoComprobanteIngreso  = "I" // Factura de ingreso
	TipoComprobanteEgreso   = "E" // Nota de crédito
	TipoComprobanteTraslado = "T" // Carta porte
	TipoComprobanteNomina   = "N" // Recibo de nómina
	TipoComprobantePago     = "P" // Complemento de pago
)

// Estados de un CFDI ante el SAT.
const (
	CFDIStatusVigente   = "vigente"
	CFDIStatusCancelado = "cancelado"
	CFDIStatusPendiente = "pendiente"
)

// usosDeducibles son las claves de UsoCFDI que el SAT reconoce como
// deducciones personales (D01 gastos médicos ... D10 transporte escolar).
var usosDeducibles = map[string]bool{
	"D01": true, "D02": true, "D03": true, "D04": true, "D05": true,
	"D06": true, "D07": true, "D08": true, "D09": true, "D10": true,
}

// EsUsoDeducible indica si una clave de UsoCFDI corresponde a una deducción personal.
func EsUsoDeducible(usoCFDI string) bool {
	return usosDeducibles[usoCFDI]
}

// Concepto es una línea de detalle del comprobante.
type Concepto struct {
	ClaveProdServ    string          `json:"clave_prod_serv"`
	NoIdentificacion string          `json:"no_identificacion,omitempty"`
	Cantidad         decimal.Decimal `json:"cantidad"`
	ClaveUnidad      string          `json:"clave_unidad,omitempty"`
	Unidad           string          `json:"unidad,omitempty"`
	Descripcion      string          `json:"descripcion"`
	ValorUnitario    decimal.Decimal `json:"valor_unitario"`
	Importe          decimal.Decimal `json:"importe"`
	Descuento        decimal.Decimal `json:"descuento"`
}

// Traslado es un impuesto trasladado (IVA, IEPS) con su tasa e importe.
type Traslado struct {
	Impuesto   string          `json:"impuesto"` // 001=ISR, 002=IVA, 003=IEPS
	TipoFactor string          `json:"tipo_factor,omitempty"`
	TasaOCuota decimal.Decimal `json:"tasa_o_cuota"`
	Importe    decimal.Decimal `json:"importe"`
}

// Retencion es un impuesto retenido (ISR, IVA).
type Retencion struct {
	Impuesto string          `json:"impuesto"`
	Importe  decimal.Decimal `json:"importe"`
}

// ImpuestosDetalle agrupa el nodo Impuestos del comprobante.
type ImpuestosDetalle struct {
	TotalTraslados   decimal.Decimal `json:"total_traslados"`
	TotalRetenciones decimal.Decimal `json:"total_retenciones"`
	Traslados        []Traslado      `json:"traslados"`
	Retenciones      []Retencion     `json:"retenciones"`
}

// TimbreFiscal son los datos del TimbreFiscalDigital estampado por el PAC.
type TimbreFiscal struct {
	UUID             string    `json:"uuid"`
	FechaTimbrado    time.Time `json:"fecha_timbrado"`
	RfcProvCertif    string    `json:"rfc_prov_certif,omitempty"`
	SelloSAT         string    `json:"sello_sat,omitempty"`
	NoCertificadoSAT string    `json:"no_certificado_sat,omitempty"`
}

// CFDI es un Comprobante Fiscal Digital por Internet ya parseado y persistido.
// El folio fiscal (UUID) es único por usuario; un intento de insertar un
// duplicado cuenta como omitido, nunca como error.
type CFDI struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	UUID  string `json:"uuid"` // Folio fiscal (36 caracteres)
	Serie string `json:"serie,omitempty"`
	Folio string `json:"folio,omitempty"`

	Version         string `json:"version"` // 3.3 o 4.0
	TipoComprobante string `json:"tipo_comprobante"`

	FechaEmision  time.Time `json:"fecha_emision"`
	FechaTimbrado time.Time `json:"fecha_timbrado"`

	EmisorRFC           string `json:"emisor_rfc"`
	EmisorNombre        string `json:"emisor_nombre,omitempty"`
	EmisorRegimenFiscal string `json:"emisor_regimen_fiscal,omitempty"`

	ReceptorRFC              string `json:"receptor_rfc"`
	ReceptorNombre           string `json:"receptor_nombre,omitempty"`
	ReceptorUsoCFDI          string `json:"receptor_uso_cfdi,omitempty"`
	ReceptorDomicilioFiscal  string `json:"receptor_domicilio_fiscal,omitempty"`
	ReceptorRegimenFiscal    string `json:"receptor_regimen_fiscal,omitempty"`

	Moneda     string          `json:"moneda"`
	TipoCambio decimal.Decimal `json:"tipo_cambio"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Descuento  decimal.Decimal `json:"descuento"`
	Total      decimal.Decimal `json:"total"`

	TotalImpuestosTrasladados decimal.Decimal `json:"total_impuestos_trasladados"`
	TotalImpuestosRetenidos   decimal.Decimal `json:"total_impuestos_retenidos"`
	IVATrasladado             decimal.Decimal `json:"iva_trasladado"`
	ISRRetenido               decimal.Decimal `json:"isr_retenido"`

	MetodoPago string `json:"metodo_pago,omitempty"` // PUE, PPD
	FormaPago  string `json:"forma_pago,omitempty"`  // 01, 03, 28, etc.

	EsIngreso   bool `json:"es_ingreso"`
	EsEgreso    bool `json:"es_egreso"`
	EsNomina    bool `json:"es_nomina"`
	EsDeducible bool `json:"es_deducible"`

	Status string `json:"status"`

	Conceptos []Concepto       `json:"conceptos,omitempty"`
	Impuestos ImpuestosDetalle `json:"impuestos"`
	Timbre    TimbreFiscal     `json:"timbre"`

	// XML completo del comprobante, conservado para auditoría y reprocesamiento.
	XMLContent string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// Clasificar asigna las banderas derivadas del tipo de comprobante y del UsoCFDI.
func (c *CFDI) Clasificar() {
	c.EsIngreso = c.TipoComprobante == TipoComprobanteIngreso
	c.EsEgreso = c.TipoComprobante == TipoComprobanteEgreso
	c.EsNomina = c.TipoComprobante == TipoComprobanteNomina
	c.EsDeducible = EsUsoDeducible(c.ReceptorUsoCFDI)
}
