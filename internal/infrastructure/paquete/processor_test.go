package paquete_test

import (
	"archive/zip"
	"bytes"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/tu-usuario/mifiscal-api/internal/domain/entity"
	"github.com/tu-usuario/mifiscal-api/internal/infrastructure/paquete"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

// xmlCFDI40 arma un comprobante 4.0 mínimo pero completo, con el UUID dado.
func xmlCFDI40(uuid, tipo, usoCFDI, total string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4" Version="4.0"
  Serie="A" Folio="1001" Fecha="2024-03-15T10:30:00" TipoDeComprobante="%s"
  Moneda="MXN" SubTotal="1000.00" Total="%s" MetodoPago="PUE" FormaPago="03">
  <cfdi:Emisor Rfc="AAA010101AAA" Nombre="EMPRESA EMISORA SA DE CV" RegimenFiscal="601"/>
  <cfdi:Receptor Rfc="XAXX010101000" Nombre="JUAN PEREZ" UsoCFDI="%s"
    DomicilioFiscalReceptor="06600" RegimenFiscalReceptor="605"/>
  <cfdi:Conceptos>
    <cfdi:Concepto ClaveProdServ="85121600" Cantidad="1" ClaveUnidad="E48"
      Descripcion="Consulta médica general" ValorUnitario="1000.00" Importe="1000.00"/>
  </cfdi:Conceptos>
  <cfdi:Impuestos TotalImpuestosTrasladados="160.00">
    <cfdi:Traslados>
      <cfdi:Traslado Impuesto="002" TipoFactor="Tasa" TasaOCuota="0.160000" Importe="160.00"/>
    </cfdi:Traslados>
  </cfdi:Impuestos>
  <cfdi:Complemento>
    <tfd:TimbreFiscalDigital xmlns:tfd="http://www.sat.gob.mx/TimbreFiscalDigital"
      UUID="%s" FechaTimbrado="2024-03-15T10:31:02"
      RfcProvCertif="SAT970701NN3" SelloSAT="abc123" NoCertificadoSAT="30001000000400002"/>
  </cfdi:Complemento>
</cfdi:Comprobante>`, tipo, total, usoCFDI, uuid)
}

// xmlCFDI33 arma un comprobante 3.3 con retención de ISR.
func xmlCFDI33(uuid string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/3" Version="3.3"
  Fecha="2023-11-01T09:00:00" TipoDeComprobante="I" Moneda="MXN"
  SubTotal="5000.00" Total="5266.67">
  <cfdi:Emisor Rfc="XAXX010101000" Nombre="JUAN PEREZ" RegimenFiscal="612"/>
  <cfdi:Receptor Rfc="BBB020202BB2" Nombre="CLIENTE SA" UsoCFDI="G03"/>
  <cfdi:Conceptos>
    <cfdi:Concepto ClaveProdServ="80101600" Cantidad="1" ClaveUnidad="E48"
      Descripcion="Servicios profesionales" ValorUnitario="5000.00" Importe="5000.00"/>
  </cfdi:Conceptos>
  <cfdi:Impuestos TotalImpuestosTrasladados="800.00" TotalImpuestosRetenidos="533.33">
    <cfdi:Retenciones>
      <cfdi:Retencion Impuesto="001" Importe="500.00"/>
      <cfdi:Retencion Impuesto="002" Importe="33.33"/>
    </cfdi:Retenciones>
    <cfdi:Traslados>
      <cfdi:Traslado Impuesto="002" TipoFactor="Tasa" TasaOCuota="0.160000" Importe="800.00"/>
    </cfdi:Traslados>
  </cfdi:Impuestos>
  <cfdi:Complemento>
    <tfd:TimbreFiscalDigital xmlns:tfd="http://www.sat.gob.mx/TimbreFiscalDigital"
      UUID="%s" FechaTimbrado="2023-11-01T09:01:00"/>
  </cfdi:Complemento>
</cfdi:Comprobante>`, uuid)
}

// zipConArchivos arma un ZIP en memoria con los miembros dados.
func zipConArchivos(t *testing.T, archivos map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for nombre, contenido := range archivos {
		w, err := zw.Create(nombre)
		require.NoError(t, err)
		_, err = w.Write([]byte(contenido))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests ExtraerXMLs
// ──────────────────────────────────────────────────────────────────────────────

func TestExtraerXMLs_SoloMiembrosXML(t *testing.T) {
	p := paquete.NewProcesador()
	zipBytes := zipConArchivos(t, map[string]string{
		"a.xml":      "<a/>",
		"b.XML":      "<b/>",
		"readme.txt": "ignorar",
	})

	xmls, err := p.ExtraerXMLs(zipBytes)
	require.NoError(t, err)
	assert.Len(t, xmls, 2, "solo los miembros .xml deben extraerse")
}

func TestExtraerXMLs_ZIPCorrupto(t *testing.T) {
	p := paquete.NewProcesador()
	_, err := p.ExtraerXMLs([]byte("esto no es un zip"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ZIP inválido")
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests ParseCFDI
// ──────────────────────────────────────────────────────────────────────────────

func TestParseCFDI_Version40Completo(t *testing.T) {
	p := paquete.NewProcesador()
	uuid := "AAAAAAAA-BBBB-CCCC-DDDD-EEEEEEEEEEEE"

	c, err := p.ParseCFDI([]byte(xmlCFDI40(uuid, "I", "D01", "1160.00")))
	require.NoError(t, err)

	assert.Equal(t, "4.0", c.Version)
	assert.Equal(t, uuid, c.UUID)
	assert.Equal(t, "A", c.Serie)
	assert.Equal(t, "1001", c.Folio)
	assert.Equal(t, "AAA010101AAA", c.EmisorRFC)
	assert.Equal(t, "XAXX010101000", c.ReceptorRFC)
	assert.Equal(t, "06600", c.ReceptorDomicilioFiscal, "atributo propio de 4.0")
	assert.Equal(t, "D01", c.ReceptorUsoCFDI)
	assert.Equal(t, "2024-03-15T10:30:00", c.FechaEmision.Format("2006-01-02T15:04:05"))

	// Montos con precisión decimal exacta
	assert.True(t, c.Subtotal.Equal(decimalDe(t, "1000.00")), "subtotal: %s", c.Subtotal)
	assert.True(t, c.Total.Equal(decimalDe(t, "1160.00")), "total: %s", c.Total)
	assert.True(t, c.IVATrasladado.Equal(decimalDe(t, "160.00")), "IVA: %s", c.IVATrasladado)

	require.Len(t, c.Conceptos, 1)
	assert.Equal(t, "Consulta médica general", c.Conceptos[0].Descripcion)
	assert.Equal(t, "30001000000400002", c.Timbre.NoCertificadoSAT)
	assert.Contains(t, c.XMLContent, uuid, "el XML crudo debe retenerse completo")
}

func TestParseCFDI_Version33ConRetenciones(t *testing.T) {
	p := paquete.NewProcesador()
	uuid := "11111111-2222-3333-4444-555555555555"

	c, err := p.ParseCFDI([]byte(xmlCFDI33(uuid)))
	require.NoError(t, err)

	assert.Equal(t, "3.3", c.Version)
	assert.True(t, c.ISRRetenido.Equal(decimalDe(t, "500.00")),
		"solo la retención 001 es ISR: %s", c.ISRRetenido)
	assert.True(t, c.TotalImpuestosRetenidos.Equal(decimalDe(t, "533.33")))
	require.Len(t, c.Impuestos.Retenciones, 2)
	require.Len(t, c.Impuestos.Traslados, 1)
}

func TestParseCFDI_SinUUID(t *testing.T) {
	p := paquete.NewProcesador()
	xml := `<?xml version="1.0"?>
<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4" Version="4.0"
  Fecha="2024-01-01T00:00:00" TipoDeComprobante="I" SubTotal="1" Total="1">
  <cfdi:Emisor Rfc="AAA010101AAA"/>
  <cfdi:Receptor Rfc="XAXX010101000"/>
  <cfdi:Complemento>
    <tfd:TimbreFiscalDigital xmlns:tfd="http://www.sat.gob.mx/TimbreFiscalDigital"
      FechaTimbrado="2024-01-01T00:01:00"/>
  </cfdi:Complemento>
</cfdi:Comprobante>`
	_, err := p.ParseCFDI([]byte(xml))
	require.Error(t, err, "un comprobante sin folio fiscal no es procesable")
	assert.Contains(t, err.Error(), "UUID")
}

func TestParseCFDI_VersionNoSoportada(t *testing.T) {
	p := paquete.NewProcesador()
	xml := `<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/3" version="3.2"/>`
	_, err := p.ParseCFDI([]byte(xml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no soportada")
}

func TestParseCFDI_MontoMalformado(t *testing.T) {
	p := paquete.NewProcesador()
	xml := xmlCFDI40("AAAAAAAA-BBBB-CCCC-DDDD-EEEEEEEEEEEE", "I", "G03", "no-es-numero")
	_, err := p.ParseCFDI([]byte(xml))
	require.Error(t, err, "un monto no numérico debe marcar el documento como fallido")
}

func TestParseCFDI_DeclaracionLatin1(t *testing.T) {
	p := paquete.NewProcesador()
	uuid := "AAAAAAAA-BBBB-CCCC-DDDD-000000000001"
	xml := xmlCFDI40(uuid, "I", "G03", "1160.00")
	// Reescribir la declaración y codificar el cuerpo en latin-1 real.
	xml = "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>" + xml[len(`<?xml version="1.0" encoding="UTF-8"?>`):]
	latin1, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(xml))
	require.NoError(t, err)

	c, err := p.ParseCFDI(latin1)
	require.NoError(t, err, "los CFDIs declarados en latin-1 deben transcodificarse")
	assert.Equal(t, uuid, c.UUID)
	assert.Equal(t, "Consulta médica general", c.Conceptos[0].Descripcion,
		"los acentos deben sobrevivir la transcodificación")
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests ProcesarPaquete
// ──────────────────────────────────────────────────────────────────────────────

func TestProcesarPaquete_UnDocumentoMaloNoDetieneElResto(t *testing.T) {
	p := paquete.NewProcesador()
	archivos := map[string]string{}
	for i := 1; i <= 5; i++ {
		uuid := fmt.Sprintf("AAAAAAAA-BBBB-CCCC-DDDD-%012d", i)
		archivos[fmt.Sprintf("cfdi-%d.xml", i)] = xmlCFDI40(uuid, "I", "G03", "1160.00")
	}
	archivos["roto.xml"] = "<esto no es xml valido"

	resultados, err := p.ProcesarPaquete(zipConArchivos(t, archivos))
	require.NoError(t, err)
	require.Len(t, resultados, 6, "todos los miembros deben producir un resultado")

	exitosos, fallidos := 0, 0
	for _, r := range resultados {
		if r.Err != nil {
			fallidos++
			assert.Nil(t, r.CFDI)
			assert.NotEmpty(t, r.XMLContent, "el XML crudo se conserva aun en fallos")
		} else {
			exitosos++
			require.NotNil(t, r.CFDI)
		}
	}
	assert.Equal(t, 5, exitosos)
	assert.Equal(t, 1, fallidos)
}

func TestProcesarPaquete_ZIPCorrupto(t *testing.T) {
	p := paquete.NewProcesador()
	_, err := p.ProcesarPaquete([]byte{0x01, 0x02, 0x03})
	require.Error(t, err)
}

// ──────────────────────────────────────────────────────────────────────────────
// Clasificación
// ──────────────────────────────────────────────────────────────────────────────

func TestClasificar_DeducibleYDirecciones(t *testing.T) {
	p := paquete.NewProcesador()

	deducible, err := p.ParseCFDI([]byte(xmlCFDI40("AAAAAAAA-BBBB-CCCC-DDDD-000000000010", "I", "D01", "1160.00")))
	require.NoError(t, err)
	deducible.Clasificar()
	assert.True(t, deducible.EsIngreso)
	assert.True(t, deducible.EsDeducible, "D01 (gastos médicos) es deducible")

	noDeducible, err := p.ParseCFDI([]byte(xmlCFDI40("AAAAAAAA-BBBB-CCCC-DDDD-000000000011", "I", "G03", "1160.00")))
	require.NoError(t, err)
	noDeducible.Clasificar()
	assert.False(t, noDeducible.EsDeducible, "G03 (gastos en general) no es deducible")

	nomina, err := p.ParseCFDI([]byte(xmlCFDI40("AAAAAAAA-BBBB-CCCC-DDDD-000000000012", "N", "CN01", "1160.00")))
	require.NoError(t, err)
	nomina.Clasificar()
	assert.True(t, nomina.EsNomina)
	assert.False(t, nomina.EsIngreso)
	assert.Equal(t, entity.TipoComprobanteNomina, nomina.TipoComprobante)
}

// decimalDe parsea un decimal de test o falla.
func decimalDe(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}
