// Package pdf implementa la representación impresa de un CFDI ya timbrado.
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Emisor + RFC  │  Serie-Folio + Fecha de emisión    │
//	│  ─────────────────────────────────────────────────────────  │
//	│  RECEPTOR: Nombre + RFC + UsoCFDI                           │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLA: Cant | Descripción | P.Unit | Importe               │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TOTALES: Subtotal / IVA / Retenciones / TOTAL              │
//	│  ─────────────────────────────────────────────────────────  │
//	│  FOOTER SAT: Folio fiscal (UUID) + QR de verificación       │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/tu-usuario/mifiscal-api/internal/domain/entity"
)

// urlVerificacionSAT es el validador público de CFDIs del SAT usado en el QR.
const urlVerificacionSAT = "https://verificacfdi.facturaelectronica.sat.gob.mx/default.aspx"

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
	colorWhite   = &props.Color{Red: 255, Green: 255, Blue: 255}
)

// ── Generator ─────────────────────────────────────────────────────────────────

// MarotoPDFGenerator genera la representación impresa con Maroto v2.
type MarotoPDFGenerator struct{}

// NewMarotoPDFGenerator construye el generador.
func NewMarotoPDFGenerator() *MarotoPDFGenerator { return &MarotoPDFGenerator{} }

// GenerarCFDIPDF genera el PDF del comprobante y devuelve sus bytes.
func (g *MarotoPDFGenerator) GenerarCFDIPDF(_ context.Context, c *entity.CFDI) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("CFDI "+c.UUID, true).
		WithAuthor(nonEmpty(c.EmisorNombre, c.EmisorRFC), true).
		Build()

	m := maroto.New(cfg)

	// Header principal
	m.AddRows(headerRow(c))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(receptorRow(c))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	// Tabla de conceptos
	m.AddRows(tableHeaderRow())
	for _, r := range tableConceptoRows(c.Conceptos) {
		m.AddRows(r)
	}

	// Totales
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(totalsRow(c))

	// Footer SAT
	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	for _, r := range satFooterRows(c) {
		m.AddRows(r)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

// headerRow: emisor + RFC (izq) y serie-folio + fecha (der).
func headerRow(c *entity.CFDI) core.Row {
	serieFolio := strings.TrimLeft(c.Serie+"-"+c.Folio, "-")
	if serieFolio == "" {
		serieFolio = "S/N"
	}
	fecha := c.FechaEmision.Format("02/01/2006 15:04")

	return row.New(18).Add(
		col.New(7).Add(
			text.New(nonEmpty(c.EmisorNombre, c.EmisorRFC), props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New("RFC: "+c.EmisorRFC, props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New(tituloComprobante(c.TipoComprobante), props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right,
				Color: colorPrimary, Top: 1,
			}),
			text.New(serieFolio, props.Text{
				Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 7,
			}),
			text.New("Fecha: "+fecha, props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

// receptorRow: datos del receptor.
func receptorRow(c *entity.CFDI) core.Row {
	return row.New(14).Add(
		col.New(12).Add(
			text.New("RECEPTOR", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(nonEmpty(c.ReceptorNombre, c.ReceptorRFC), props.Text{
				Style: fontstyle.Bold, Size: 10, Top: 6,
			}),
			text.New(fmt.Sprintf("RFC: %s   |   Uso CFDI: %s   |   Método de pago: %s",
				c.ReceptorRFC,
				nonEmpty(c.ReceptorUsoCFDI, "—"),
				nonEmpty(c.MetodoPago, "—"),
			), props.Text{Size: 8, Top: 12, Color: colorGray}),
		),
	)
}

// tableHeaderRow: cabecera de la tabla de conceptos.
func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a,
			Color: colorWhite, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(
		h("Cant.", 1, align.Center),
		h("Descripción", 6, align.Left),
		h("Valor Unit.", 2, align.Right),
		h("Importe", 3, align.Right),
	)
}

// tableConceptoRows: una fila por concepto del comprobante.
func tableConceptoRows(conceptos []entity.Concepto) []core.Row {
	result := make([]core.Row, 0, len(conceptos))
	for _, cn := range conceptos {
		result = append(result, row.New(7).Add(
			col.New(1).Add(text.New(
				cn.Cantidad.StringFixed(0),
				props.Text{Size: 8, Align: align.Center, Top: 1},
			)),
			col.New(6).Add(text.New(
				cn.Descripcion,
				props.Text{Size: 8, Align: align.Left, Top: 1, Left: 1},
			)),
			col.New(2).Add(text.New(
				"$"+formatMoney(cn.ValorUnitario.StringFixed(2)),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
			col.New(3).Add(text.New(
				"$"+formatMoney(cn.Importe.StringFixed(2)),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
		))
	}
	return result
}

// totalsRow: bloque de totales alineado a la derecha.
func totalsRow(c *entity.CFDI) core.Row {
	label := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2,
		})
	}
	value := func(s string) core.Component {
		return text.New(s, props.Text{Size: 9, Align: align.Right, Right: 1})
	}
	grandLabel := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 10, Align: align.Right,
			Color: colorPrimary, Right: 2,
		})
	}
	grandValue := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 10, Align: align.Right,
			Color: colorPrimary, Right: 1,
		})
	}

	return row.New(32).Add(
		col.New(3), // espacio izquierdo
		col.New(4).Add(
			label("Subtotal:"),
			label("Impuestos trasladados:"),
			label("Impuestos retenidos:"),
			grandLabel("TOTAL:"),
		),
		col.New(3).Add(
			value("$"+formatMoney(c.Subtotal.StringFixed(2))),
			value("$"+formatMoney(c.TotalImpuestosTrasladados.StringFixed(2))),
			value("$"+formatMoney(c.TotalImpuestosRetenidos.StringFixed(2))),
			grandValue("$"+formatMoney(c.Total.StringFixed(2))),
		),
		col.New(2), // espacio derecho
	)
}

// satFooterRows: folio fiscal + QR de verificación + sello SAT recortado.
func satFooterRows(c *entity.CFDI) []core.Row {
	rows := []core.Row{
		row.New(6).Add(col.New(12).Add(
			text.New("TIMBRE FISCAL DIGITAL SAT", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
		)),
		row.New(5).Add(col.New(12).Add(
			text.New("Folio fiscal (UUID): "+c.UUID, props.Text{
				Style: fontstyle.Bold, Size: 7, Top: 1,
			}),
		)),
		row.New(4).Add(col.New(12).Add(
			text.New(fmt.Sprintf("Certificado SAT: %s   |   Timbrado: %s",
				nonEmpty(c.Timbre.NoCertificadoSAT, "—"),
				c.FechaTimbrado.Format("02/01/2006 15:04:05"),
			), props.Text{Size: 6.5, Color: colorGray, Top: 0.5, Left: 2}),
		)),
		row.New(3),
	}

	// QR con la URL pública de verificación del SAT
	rows = append(rows, row.New(50).Add(
		col.New(4).Add(code.NewQr(urlVerificacion(c), props.Rect{
			Percent: 95,
			Center:  true,
		})),
		col.New(8).Add(
			text.New("Escanea el código QR para validar\neste comprobante en el portal del SAT.", props.Text{
				Size: 8, Top: 4, Left: 3, Color: colorGray,
			}),
			text.New("Este documento es una representación\nimpresa de un CFDI.", props.Text{
				Style: fontstyle.Bold, Size: 10, Top: 22,
				Left: 3, Color: colorPrimary,
			}),
		),
	))

	if c.Timbre.SelloSAT != "" {
		rows = append(rows, row.New(6).Add(col.New(12).Add(
			text.New("Sello SAT: "+recortar(c.Timbre.SelloSAT, 90)+"…", props.Text{
				Size: 6, Color: colorGray, Top: 2,
			}),
		)))
	}

	return rows
}

// urlVerificacion arma la URL del validador del SAT con los parámetros que
// exige: folio fiscal, RFCs, total y los últimos 8 caracteres del sello.
func urlVerificacion(c *entity.CFDI) string {
	v := url.Values{}
	v.Set("id", c.UUID)
	v.Set("re", c.EmisorRFC)
	v.Set("rr", c.ReceptorRFC)
	v.Set("tt", c.Total.StringFixed(6))
	if len(c.Timbre.SelloSAT) >= 8 {
		v.Set("fe", c.Timbre.SelloSAT[len(c.Timbre.SelloSAT)-8:])
	}
	return urlVerificacionSAT + "?" + v.Encode()
}

func tituloComprobante(tipo string) string {
	switch tipo {
	case entity.TipoComprobanteIngreso:
		return "CFDI DE INGRESO"
	case entity.TipoComprobanteEgreso:
		return "CFDI DE EGRESO (NOTA DE CRÉDITO)"
	case entity.TipoComprobanteNomina:
		return "CFDI DE NÓMINA"
	case entity.TipoComprobantePago:
		return "CFDI COMPLEMENTO DE PAGO"
	case entity.TipoComprobanteTraslado:
		return "CFDI DE TRASLADO"
	}
	return "CFDI"
}

// ── helpers ───────────────────────────────────────────────────────────────────

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// formatMoney inserta comas de miles en un string "1234.56" → "1,234.56".
func formatMoney(s string) string {
	entero, dec, _ := strings.Cut(s, ".")
	n := len(entero)
	if n <= 3 {
		if dec != "" {
			return entero + "." + dec
		}
		return entero
	}
	buf := make([]byte, 0, n+n/3)
	for i, c := range []byte(entero) {
		if i > 0 && (n-i)%3 == 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, c)
	}
	if dec != "" {
		return string(buf) + "." + dec
	}
	return string(buf)
}

func recortar(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
