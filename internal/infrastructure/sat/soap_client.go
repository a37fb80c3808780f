package sat

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tu-usuario/mifiscal-api/internal/domain/entity"
	"github.com/tu-usuario/mifiscal-api/internal/infrastructure/efirma"
)

// ── Constantes del protocolo ──────────────────────────────────────────────────

const (
	soapNS    = "http://schemas.xmlsoap.org/soap/envelope/"
	satNS     = "http://DescargaMasivaTerceros.sat.gob.mx"
	actionNS  = "http://DescargaMasivaTerceros.sat.gob.mx/"
	layoutSAT = "2006-01-02T15:04:05"
)

// DefaultEndpoints son los servicios de producción del SAT.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Solicita: "https://cfdidescargamasiva.clouda.sat.gob.mx/SolicitaDescargaService.svc",
		Verifica: "https://cfdidescargamasiva.clouda.sat.gob.mx/VerificaSolicitudDescargaService.svc",
		Descarga: "https://cfdidescargamasiva.clouda.sat.gob.mx/DescargaMasivaTercerosService.svc",
	}
}

// ── Puerto (interfaz) ─────────────────────────────────────────────────────────

// DescargaClient define el puerto del cliente de descarga masiva.
// La implementación concreta usa SOAP; para tests se puede inyectar un fake.
type DescargaClient interface {
	DescargaCompleta(ctx context.Context, fir *efirma.Servicio,
		inicio, fin time.Time, tipo entity.TipoDescarga,
		maxEspera, intervalo time.Duration) (*ResultadoDescarga, error)
}

// ── Implementación SOAP ───────────────────────────────────────────────────────

// Cliente implementa DescargaClient contra los Web Services SOAP del SAT.
// Usa net/http de la stdlib; los envelopes se construyen a mano.
type Cliente struct {
	httpClient *http.Client
	urls       Endpoints
}

// NewCliente construye el cliente con un timeout de red generoso (60 s):
// los servicios del SAT pueden tardar varios segundos en responder.
func NewCliente(urls Endpoints) *Cliente {
	return &Cliente{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		urls:       urls,
	}
}

var _ DescargaClient = (*Cliente)(nil)

// ── Estructuras SOAP ──────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName  xml.Name   `xml:"s:Envelope"`
	XmlnsS   string     `xml:"xmlns:s,attr"`
	XmlnsDes string     `xml:"xmlns:des,attr"`
	Header   soapHeader `xml:"s:Header"`
	Body     soapBody   `xml:"s:Body"`
}

type soapHeader struct{}

type soapBody struct {
	Content interface{}
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "s:Body"
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

// autenticacion es el bloque de autenticación que acompaña cada operación.
type autenticacion struct {
	RfcSolicitante string `xml:"des:RfcSolicitante"`
	NoCertificado  string `xml:"des:NoCertificado"`
	Certificado    string `xml:"des:Certificado"` // DER en Base64
	Firma          string `xml:"des:firma,omitempty"`
}

// solicitaDescargaBody cuerpo de la operación SolicitaDescarga.
type solicitaDescargaBody struct {
	XMLName   xml.Name          `xml:"des:SolicitaDescarga"`
	Solicitud solicitudElemento `xml:"des:solicitud"`
	Auth      autenticacion     `xml:"des:autenticacion"`
}

type solicitudElemento struct {
	RfcEmisor     string `xml:"RfcEmisor,attr"`
	RfcReceptor   string `xml:"RfcReceptor,attr"`
	FechaInicial  string `xml:"FechaInicial,attr"` // ISO 8601 local
	FechaFinal    string `xml:"FechaFinal,attr"`
	TipoSolicitud string `xml:"TipoSolicitud,attr"`
}

// verificaSolicitudBody cuerpo de la operación VerificaSolicitudDescarga.
type verificaSolicitudBody struct {
	XMLName     xml.Name      `xml:"des:VerificaSolicitudDescarga"`
	IdSolicitud string        `xml:"des:idSolicitud"`
	Auth        autenticacion `xml:"des:autenticacion"`
}

// descargaMasivaBody cuerpo de la operación DescargaMasivaTerceros.
type descargaMasivaBody struct {
	XMLName   xml.Name      `xml:"des:DescargaMasivaTerceros"`
	IdPaquete string        `xml:"des:idPaquete"`
	Auth      autenticacion `xml:"des:autenticacion"`
}

// ── Estructuras de respuesta SOAP ─────────────────────────────────────────────

type respuestaEnvelope struct {
	Body respuestaBody `xml:"Body"`
}

type respuestaBody struct {
	Solicita *solicitaResponse `xml:"SolicitaDescargaResponse"`
	Verifica *verificaResponse `xml:"VerificaSolicitudDescargaResponse"`
	Descarga *descargaResponse `xml:"DescargaMasivaTercerosResponse"`
	Fault    *soapFault        `xml:"Fault"`
}

type solicitaResponse struct {
	Result solicitaResult `xml:"SolicitaDescargaResult"`
}

type solicitaResult struct {
	IdSolicitud string `xml:"IdSolicitud,attr"`
	CodEstatus  string `xml:"CodEstatus,attr"`
	Mensaje     string `xml:"Mensaje,attr"`
}

type verificaResponse struct {
	Result verificaResult `xml:"VerificaSolicitudDescargaResult"`
}

type verificaResult struct {
	CodEstatus            string `xml:"CodEstatus,attr"`
	EstadoSolicitud       string `xml:"EstadoSolicitud,attr"`
	CodigoEstadoSolicitud string `xml:"CodigoEstadoSolicitud,attr"`
	NumeroArchivos        int    `xml:"NumeroCFDIs,attr"`
	IdsPaquetes           string `xml:"IdsPaquetes,attr"` // separados por coma
	Mensaje               string `xml:"Mensaje,attr"`
}

type descargaResponse struct {
	Result descargaResult `xml:"DescargaMasivaTercerosResult"`
}

type descargaResult struct {
	Paquete string `xml:"Paquete"` // ZIP en Base64
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

// ── Operaciones ───────────────────────────────────────────────────────────────

// SolicitaDescarga envía una solicitud de descarga masiva firmada.
// Para emitidos el RFC del solicitante va como emisor; para recibidos, como receptor.
func (c *Cliente) SolicitaDescarga(ctx context.Context, fir *efirma.Servicio,
	inicio, fin time.Time, tipo entity.TipoDescarga) (*entity.SolicitudDescarga, error) {

	rfc, err := fir.RFC()
	if err != nil {
		return nil, err
	}

	var rfcEmisor, rfcReceptor string
	if tipo == entity.DescargaEmitidos {
		rfcEmisor = rfc
	} else {
		rfcReceptor = rfc
	}

	cadena := efirma.CadenaOriginal(rfcEmisor, rfcReceptor, inicio, fin, TipoSolicitudCFDI)
	firma, err := fir.FirmarCadena(cadena)
	if err != nil {
		return nil, err
	}

	body := &solicitaDescargaBody{
		Solicitud: solicitudElemento{
			RfcEmisor:     rfcEmisor,
			RfcReceptor:   rfcReceptor,
			FechaInicial:  inicio.Format(layoutSAT),
			FechaFinal:    fin.Format(layoutSAT),
			TipoSolicitud: TipoSolicitudCFDI,
		},
		Auth: c.autenticacion(fir, rfc, firma),
	}

	var resp respuestaEnvelope
	if err := c.llamar(ctx, c.urls.Solicita, actionNS+"ISolicitaDescargaService/SolicitaDescarga", body, &resp); err != nil {
		return nil, fmt.Errorf("sat: solicitar descarga: %w", err)
	}
	if resp.Body.Solicita == nil {
		return nil, fmt.Errorf("sat: respuesta de SolicitaDescarga vacía o inesperada")
	}

	res := resp.Body.Solicita.Result
	if res.IdSolicitud == "" {
		return nil, fmt.Errorf("sat: solicitud no aceptada (CodEstatus=%s): %s", res.CodEstatus, res.Mensaje)
	}

	log.Debug().
		Str("id_solicitud", res.IdSolicitud).
		Str("tipo", string(tipo)).
		Msg("solicitud de descarga creada")

	ahora := time.Now()
	return &entity.SolicitudDescarga{
		ID:           uuid.New().String(),
		IDSolicitud:  res.IdSolicitud,
		TipoDescarga: tipo,
		FechaInicio:  inicio,
		FechaFin:     fin,
		RFCEmisor:    rfcEmisor,
		RFCReceptor:  rfcReceptor,
		Estado:       entity.SolicitudSolicitada,
		CodigoEstado: res.CodEstatus,
		MensajeSAT:   res.Mensaje,
		SolicitadaAt: ahora,
		CreatedAt:    ahora,
		UpdatedAt:    ahora,
	}, nil
}

// VerificaSolicitud consulta el estado de una solicitud. Idempotente; es la
// única fuente de transiciones de estado (el protocolo no tiene push).
func (c *Cliente) VerificaSolicitud(ctx context.Context, fir *efirma.Servicio, idSolicitud string) (*Verificacion, error) {
	rfc, err := fir.RFC()
	if err != nil {
		return nil, err
	}

	body := &verificaSolicitudBody{
		IdSolicitud: idSolicitud,
		Auth:        c.autenticacion(fir, rfc, ""),
	}

	var resp respuestaEnvelope
	if err := c.llamar(ctx, c.urls.Verifica, actionNS+"IVerificaSolicitudDescargaService/VerificaSolicitudDescarga", body, &resp); err != nil {
		return nil, fmt.Errorf("sat: verificar solicitud %s: %w", idSolicitud, err)
	}
	if resp.Body.Verifica == nil {
		return nil, fmt.Errorf("sat: respuesta de VerificaSolicitud vacía o inesperada")
	}

	res := resp.Body.Verifica.Result

	var ids []string
	if res.IdsPaquetes != "" {
		for _, id := range strings.Split(res.IdsPaquetes, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}

	return &Verificacion{
		Estado:         mapearCodigoEstado(res.CodigoEstadoSolicitud),
		CodigoEstado:   res.CodigoEstadoSolicitud,
		NumeroArchivos: res.NumeroArchivos,
		IdsPaquetes:    ids,
		Mensaje:        res.Mensaje,
	}, nil
}

// DescargaPaquete descarga un paquete y devuelve los bytes del ZIP ya
// decodificados de Base64.
func (c *Cliente) DescargaPaquete(ctx context.Context, fir *efirma.Servicio, idPaquete string) ([]byte, error) {
	rfc, err := fir.RFC()
	if err != nil {
		return nil, err
	}

	body := &descargaMasivaBody{
		IdPaquete: idPaquete,
		Auth:      c.autenticacion(fir, rfc, ""),
	}

	var resp respuestaEnvelope
	if err := c.llamar(ctx, c.urls.Descarga, actionNS+"IDescargaMasivaTercerosService/Descargar", body, &resp); err != nil {
		return nil, fmt.Errorf("sat: descargar paquete %s: %w", idPaquete, err)
	}
	if resp.Body.Descarga == nil || resp.Body.Descarga.Result.Paquete == "" {
		return nil, fmt.Errorf("sat: la respuesta no contiene paquete %s", idPaquete)
	}

	datos, err := base64.StdEncoding.DecodeString(resp.Body.Descarga.Result.Paquete)
	if err != nil {
		return nil, fmt.Errorf("sat: decodificar paquete %s: %w", idPaquete, err)
	}
	return datos, nil
}

// DescargaCompleta ejecuta el ciclo completo de una dirección:
// solicitar → verificar a intervalo fijo hasta terminada/terminal/timeout →
// descargar cada paquete. Bloquea hasta maxEspera; respeta la cancelación del ctx.
func (c *Cliente) DescargaCompleta(ctx context.Context, fir *efirma.Servicio,
	inicio, fin time.Time, tipo entity.TipoDescarga,
	maxEspera, intervalo time.Duration) (*ResultadoDescarga, error) {

	solicitud, err := c.SolicitaDescarga(ctx, fir, inicio, fin, tipo)
	if err != nil {
		return nil, err
	}

	iteraciones := int(maxEspera / intervalo)
	var verif *Verificacion

	listo := false
	for i := 0; i < iteraciones; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(intervalo):
		}

		verif, err = c.VerificaSolicitud(ctx, fir, solicitud.IDSolicitud)
		if err != nil {
			return nil, err
		}
		solicitud.Estado = verif.Estado
		solicitud.CodigoEstado = verif.CodigoEstado
		solicitud.MensajeSAT = verif.Mensaje
		solicitud.UpdatedAt = time.Now()

		switch verif.Estado {
		case entity.SolicitudTerminada:
			listo = true
		case entity.SolicitudRechazada:
			return nil, fmt.Errorf("%w: %s", ErrSolicitudRechazada, verif.Mensaje)
		case entity.SolicitudVencida:
			return nil, ErrSolicitudVencida
		case entity.SolicitudError:
			return nil, fmt.Errorf("%w: %s", ErrSolicitudFallida, verif.Mensaje)
		}
		if listo {
			break
		}

		log.Debug().
			Str("id_solicitud", solicitud.IDSolicitud).
			Str("estado", string(verif.Estado)).
			Int("intento", i+1).
			Int("max", iteraciones).
			Msg("solicitud en proceso")
	}
	if !listo {
		return nil, fmt.Errorf("%w: %s tras %s", ErrTiempoEsperaAgotado, solicitud.IDSolicitud, maxEspera)
	}

	ahora := time.Now()
	solicitud.TerminadaAt = &ahora
	solicitud.NumeroPaquetes = len(verif.IdsPaquetes)
	solicitud.IdsPaquetes = verif.IdsPaquetes

	paquetes := make([][]byte, 0, len(verif.IdsPaquetes))
	for _, idPaquete := range verif.IdsPaquetes {
		datos, err := c.DescargaPaquete(ctx, fir, idPaquete)
		if err != nil {
			return nil, err
		}
		paquetes = append(paquetes, datos)
	}

	descargada := time.Now()
	solicitud.Estado = entity.SolicitudDescargada
	solicitud.DescargadaAt = &descargada
	solicitud.UpdatedAt = descargada

	log.Info().
		Str("id_solicitud", solicitud.IDSolicitud).
		Str("tipo", string(tipo)).
		Int("paquetes", len(paquetes)).
		Msg("descarga completa")

	return &ResultadoDescarga{Solicitud: solicitud, Paquetes: paquetes}, nil
}

// ── helpers privados ──────────────────────────────────────────────────────────

func (c *Cliente) autenticacion(fir *efirma.Servicio, rfc, firma string) autenticacion {
	return autenticacion{
		RfcSolicitante: rfc,
		NoCertificado:  fir.NumeroSerie(),
		Certificado:    fir.CertificadoBase64(),
		Firma:          firma,
	}
}

// llamar serializa el envelope, hace el POST SOAP y deserializa la respuesta.
func (c *Cliente) llamar(ctx context.Context, url, action string, contenido interface{}, out *respuestaEnvelope) error {
	envelope := soapEnvelope{
		XmlnsS:   soapNS,
		XmlnsDes: satNS,
		Body:     soapBody{Content: contenido},
	}

	payload, err := xml.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("serializar envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("crear request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", action)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("timeout o cancelación: %w", ctx.Err())
		}
		return fmt.Errorf("llamada HTTP fallida: %w", err)
	}
	defer resp.Body.Close()

	// Los paquetes pueden pesar varios MB en Base64.
	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("leer respuesta: %w", err)
	}

	if err := xml.Unmarshal(rawBody, out); err != nil {
		return fmt.Errorf("parsear respuesta SOAP: %w", err)
	}
	if out.Body.Fault != nil {
		return fmt.Errorf("SOAP Fault [%s]: %s", out.Body.Fault.FaultCode, out.Body.Fault.FaultString)
	}
	return nil
}
