// Package paquete procesa los paquetes ZIP de CFDIs que entrega el SAT.
//
// Transformación pura en dos capas: extraer los XML del ZIP y parsear cada
// comprobante a un registro estructurado. Un XML malformado nunca aborta el
// procesamiento de sus hermanos.
package paquete

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"

	"github.com/tu-usuario/mifiscal-api/internal/domain/entity"
)

// Namespaces de las dos generaciones de esquema soportadas.
const (
	NamespaceCFDI40 = "http://www.sat.gob.mx/cfd/4"
	NamespaceCFDI33 = "http://www.sat.gob.mx/cfd/3"
	NamespaceTFD    = "http://www.sat.gob.mx/TimbreFiscalDigital"
)

// Resultado es el desenlace de parsear un documento del paquete: un CFDI o un
// error, siempre con el XML crudo conservado para auditoría y reprocesamiento.
type Resultado struct {
	CFDI       *entity.CFDI // nil si el parseo falló
	Err        error        // nil si el parseo fue exitoso
	XMLContent string
}

// Procesador implementa la transformación ZIP → CFDIs. Sin estado.
type Procesador struct{}

// NewProcesador construye el procesador.
func NewProcesador() *Procesador { return &Procesador{} }

// ExtraerXMLs abre el ZIP en memoria y devuelve el contenido de cada miembro
// .xml, en el orden del archivo.
func (p *Procesador) ExtraerXMLs(zipBytes []byte) ([][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return nil, fmt.Errorf("paquete: archivo ZIP inválido: %w", err)
	}

	var xmls [][]byte
	for _, f := range zr.File {
		if !strings.HasSuffix(strings.ToLower(f.Name), ".xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("paquete: abrir %s: %w", f.Name, err)
		}
		contenido, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("paquete: leer %s: %w", f.Name, err)
		}
		xmls = append(xmls, contenido)
	}
	return xmls, nil
}

// ProcesarPaquete compone extracción y parseo sobre cada miembro, preservando
// el orden y recolectando éxitos y fallas sin cortocircuito.
func (p *Procesador) ProcesarPaquete(zipBytes []byte) ([]Resultado, error) {
	xmls, err := p.ExtraerXMLs(zipBytes)
	if err != nil {
		return nil, err
	}

	resultados := make([]Resultado, 0, len(xmls))
	for _, xmlBytes := range xmls {
		c, parseErr := p.ParseCFDI(xmlBytes)
		resultados = append(resultados, Resultado{
			CFDI:       c,
			Err:        parseErr,
			XMLContent: string(xmlBytes),
		})
	}
	return resultados, nil
}

// ParseCFDI parsea un comprobante XML (CFDI 3.3 o 4.0) a un registro
// estructurado. Los montos se leen como decimales de precisión fija;
// los atributos numéricos ausentes valen cero.
func (p *Procesador) ParseCFDI(xmlBytes []byte) (*entity.CFDI, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = lectorCharset
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("paquete: XML malformado: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "Comprobante" {
		return nil, fmt.Errorf("paquete: el documento no es un Comprobante CFDI")
	}

	version := root.SelectAttrValue("Version", "")
	if version == "" {
		// CFDI 3.2 y anteriores usan minúscula; no son generaciones soportadas.
		version = root.SelectAttrValue("version", "")
	}
	if version != "4.0" && version != "3.3" {
		return nil, fmt.Errorf("paquete: versión de CFDI no soportada: %q", version)
	}

	c := &entity.CFDI{
		Version: version,
		Serie:   root.SelectAttrValue("Serie", ""),
		Folio:   root.SelectAttrValue("Folio", ""),
		Moneda:  root.SelectAttrValue("Moneda", "MXN"),
		Status:  entity.CFDIStatusVigente,
	}

	c.TipoComprobante = root.SelectAttrValue("TipoDeComprobante", "")
	if c.TipoComprobante == "" {
		return nil, fmt.Errorf("paquete: comprobante sin TipoDeComprobante")
	}
	c.MetodoPago = root.SelectAttrValue("MetodoPago", "")
	c.FormaPago = root.SelectAttrValue("FormaPago", "")

	var err error
	if c.FechaEmision, err = atributoFecha(root, "Fecha"); err != nil {
		return nil, err
	}
	if c.TipoCambio, err = atributoDecimal(root, "TipoCambio", decimal.NewFromInt(1)); err != nil {
		return nil, err
	}
	if c.Subtotal, err = atributoDecimal(root, "SubTotal", decimal.Zero); err != nil {
		return nil, err
	}
	if c.Descuento, err = atributoDecimal(root, "Descuento", decimal.Zero); err != nil {
		return nil, err
	}
	if c.Total, err = atributoDecimal(root, "Total", decimal.Zero); err != nil {
		return nil, err
	}

	if err := parsearEmisor(root, c); err != nil {
		return nil, err
	}
	if err := parsearReceptor(root, c, version); err != nil {
		return nil, err
	}
	if err := parsearConceptos(root, c); err != nil {
		return nil, err
	}
	if err := parsearImpuestos(root, c); err != nil {
		return nil, err
	}
	if err := parsearTimbre(root, c); err != nil {
		return nil, err
	}

	c.XMLContent = string(xmlBytes)
	return c, nil
}

// ── sub-parsers ───────────────────────────────────────────────────────────────

func parsearEmisor(root *etree.Element, c *entity.CFDI) error {
	emisor := hijo(root, "Emisor")
	if emisor == nil {
		return fmt.Errorf("paquete: comprobante sin Emisor")
	}
	c.EmisorRFC = emisor.SelectAttrValue("Rfc", "")
	c.EmisorNombre = emisor.SelectAttrValue("Nombre", "")
	c.EmisorRegimenFiscal = emisor.SelectAttrValue("RegimenFiscal", "")
	if c.EmisorRFC == "" {
		return fmt.Errorf("paquete: Emisor sin Rfc")
	}
	return nil
}

func parsearReceptor(root *etree.Element, c *entity.CFDI, version string) error {
	receptor := hijo(root, "Receptor")
	if receptor == nil {
		return fmt.Errorf("paquete: comprobante sin Receptor")
	}
	c.ReceptorRFC = receptor.SelectAttrValue("Rfc", "")
	c.ReceptorNombre = receptor.SelectAttrValue("Nombre", "")
	c.ReceptorUsoCFDI = receptor.SelectAttrValue("UsoCFDI", "")
	if version == "4.0" {
		// Atributos nuevos de la generación 4.0.
		c.ReceptorDomicilioFiscal = receptor.SelectAttrValue("DomicilioFiscalReceptor", "")
		c.ReceptorRegimenFiscal = receptor.SelectAttrValue("RegimenFiscalReceptor", "")
	}
	if c.ReceptorRFC == "" {
		return fmt.Errorf("paquete: Receptor sin Rfc")
	}
	return nil
}

func parsearConceptos(root *etree.Element, c *entity.CFDI) error {
	conceptos := hijo(root, "Conceptos")
	if conceptos == nil {
		return nil
	}
	for _, el := range conceptos.ChildElements() {
		if el.Tag != "Concepto" {
			continue
		}
		concepto := entity.Concepto{
			ClaveProdServ:    el.SelectAttrValue("ClaveProdServ", ""),
			NoIdentificacion: el.SelectAttrValue("NoIdentificacion", ""),
			ClaveUnidad:      el.SelectAttrValue("ClaveUnidad", ""),
			Unidad:           el.SelectAttrValue("Unidad", ""),
			Descripcion:      el.SelectAttrValue("Descripcion", ""),
		}
		var err error
		if concepto.Cantidad, err = atributoDecimal(el, "Cantidad", decimal.Zero); err != nil {
			return err
		}
		if concepto.ValorUnitario, err = atributoDecimal(el, "ValorUnitario", decimal.Zero); err != nil {
			return err
		}
		if concepto.Importe, err = atributoDecimal(el, "Importe", decimal.Zero); err != nil {
			return err
		}
		if concepto.Descuento, err = atributoDecimal(el, "Descuento", decimal.Zero); err != nil {
			return err
		}
		c.Conceptos = append(c.Conceptos, concepto)
	}
	return nil
}

// parsearImpuestos lee el nodo Impuestos hijo directo del Comprobante (no los
// desgloses por concepto) con sus traslados y retenciones itemizados.
func parsearImpuestos(root *etree.Element, c *entity.CFDI) error {
	impuestos := hijo(root, "Impuestos")
	if impuestos == nil {
		c.Impuestos = entity.ImpuestosDetalle{
			TotalTraslados:   decimal.Zero,
			TotalRetenciones: decimal.Zero,
		}
		return nil
	}

	detalle := entity.ImpuestosDetalle{}
	var err error
	if detalle.TotalTraslados, err = atributoDecimal(impuestos, "TotalImpuestosTrasladados", decimal.Zero); err != nil {
		return err
	}
	if detalle.TotalRetenciones, err = atributoDecimal(impuestos, "TotalImpuestosRetenidos", decimal.Zero); err != nil {
		return err
	}

	if traslados := hijo(impuestos, "Traslados"); traslados != nil {
		for _, el := range traslados.ChildElements() {
			if el.Tag != "Traslado" {
				continue
			}
			t := entity.Traslado{
				Impuesto:   el.SelectAttrValue("Impuesto", ""),
				TipoFactor: el.SelectAttrValue("TipoFactor", ""),
			}
			if t.TasaOCuota, err = atributoDecimal(el, "TasaOCuota", decimal.Zero); err != nil {
				return err
			}
			if t.Importe, err = atributoDecimal(el, "Importe", decimal.Zero); err != nil {
				return err
			}
			detalle.Traslados = append(detalle.Traslados, t)
			if t.Impuesto == "002" { // IVA
				c.IVATrasladado = c.IVATrasladado.Add(t.Importe)
			}
		}
	}

	if retenciones := hijo(impuestos, "Retenciones"); retenciones != nil {
		for _, el := range retenciones.ChildElements() {
			if el.Tag != "Retencion" {
				continue
			}
			r := entity.Retencion{Impuesto: el.SelectAttrValue("Impuesto", "")}
			if r.Importe, err = atributoDecimal(el, "Importe", decimal.Zero); err != nil {
				return err
			}
			detalle.Retenciones = append(detalle.Retenciones, r)
			if r.Impuesto == "001" { // ISR
				c.ISRRetenido = c.ISRRetenido.Add(r.Importe)
			}
		}
	}

	c.Impuestos = detalle
	c.TotalImpuestosTrasladados = detalle.TotalTraslados
	c.TotalImpuestosRetenidos = detalle.TotalRetenciones
	return nil
}

func parsearTimbre(root *etree.Element, c *entity.CFDI) error {
	complemento := hijo(root, "Complemento")
	if complemento == nil {
		return fmt.Errorf("paquete: comprobante sin Complemento")
	}
	timbre := hijo(complemento, "TimbreFiscalDigital")
	if timbre == nil {
		return fmt.Errorf("paquete: comprobante sin TimbreFiscalDigital")
	}

	c.UUID = timbre.SelectAttrValue("UUID", "")
	if c.UUID == "" {
		return fmt.Errorf("paquete: timbre sin UUID")
	}

	var err error
	if c.FechaTimbrado, err = atributoFecha(timbre, "FechaTimbrado"); err != nil {
		return err
	}
	c.Timbre = entity.TimbreFiscal{
		UUID:             c.UUID,
		FechaTimbrado:    c.FechaTimbrado,
		RfcProvCertif:    timbre.SelectAttrValue("RfcProvCertif", ""),
		SelloSAT:         timbre.SelectAttrValue("SelloSAT", ""),
		NoCertificadoSAT: timbre.SelectAttrValue("NoCertificadoSAT", ""),
	}
	return nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

// hijo busca el primer hijo directo con el tag local dado, sin importar prefijo.
func hijo(el *etree.Element, tag string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == tag {
			return child
		}
	}
	return nil
}

// atributoDecimal lee un atributo monetario como decimal de precisión fija.
// Ausente → valor por defecto; malformado → error (el documento completo se
// marca como fallido, nunca se redondea en silencio).
func atributoDecimal(el *etree.Element, nombre string, def decimal.Decimal) (decimal.Decimal, error) {
	valor := el.SelectAttrValue(nombre, "")
	if valor == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(valor)
	if err != nil {
		return decimal.Zero, fmt.Errorf("paquete: atributo %s=%q no es numérico: %w", nombre, valor, err)
	}
	return d, nil
}

func atributoFecha(el *etree.Element, nombre string) (time.Time, error) {
	valor := el.SelectAttrValue(nombre, "")
	if valor == "" {
		return time.Time{}, fmt.Errorf("paquete: atributo %s ausente", nombre)
	}
	t, err := time.Parse("2006-01-02T15:04:05", valor)
	if err != nil {
		return time.Time{}, fmt.Errorf("paquete: atributo %s=%q no es fecha ISO: %w", nombre, valor, err)
	}
	return t, nil
}

// lectorCharset permite leer CFDIs antiguos declarados en latin-1 además de UTF-8.
func lectorCharset(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "", "utf-8", "utf8":
		return input, nil
	case "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	}
	return nil, fmt.Errorf("paquete: charset no soportado: %s", charset)
}
