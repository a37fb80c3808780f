package sat

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youmark/pkcs8"

	"github.com/tu-usuario/mifiscal-api/internal/domain/entity"
	"github.com/tu-usuario/mifiscal-api/internal/infrastructure/efirma"
)

// ══════════════════════════════════════════════════════════════════════════════
// Tests del cliente SOAP de descarga masiva contra un servicio SAT simulado.
// ══════════════════════════════════════════════════════════════════════════════

const (
	pruebaRFC      = "XAXX010101000"
	pruebaPassword = "clave-de-prueba"
)

// nuevaEfirmaPrueba genera una e.firma autofirmada en un directorio temporal
// y la carga con el mismo flujo que usa producción (.cer DER + .key PKCS#8).
func nuevaEfirmaPrueba(t *testing.T) *efirma.Servicio {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	plantilla := x509.Certificate{
		SerialNumber: big.NewInt(30001000000400099),
		Subject: pkix.Name{
			CommonName:   "EMPRESA DE PRUEBA SA DE CV",
			SerialNumber: pruebaRFC + " / XAXX010101HDFXXX01",
		},
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &plantilla, &plantilla, &priv.PublicKey, priv)
	require.NoError(t, err)

	keyDER, err := pkcs8.MarshalPrivateKey(priv, []byte(pruebaPassword), nil)
	require.NoError(t, err)

	dir := t.TempDir()
	cerPath := filepath.Join(dir, "prueba.cer")
	keyPath := filepath.Join(dir, "prueba.key")
	require.NoError(t, os.WriteFile(cerPath, der, 0o600))
	require.NoError(t, os.WriteFile(keyPath, keyDER, 0o600))

	fir, err := efirma.Cargar(cerPath, keyPath, pruebaPassword)
	require.NoError(t, err, "la e.firma de prueba debería cargar")
	return fir
}

// ── Servidor SAT simulado ─────────────────────────────────────────────────────

// servidorSAT despacha por SOAPAction y responde con los envelopes que cada
// operación espera. Los campos son funciones para que cada test controle la
// secuencia de estados.
type servidorSAT struct {
	solicita func(w http.ResponseWriter, cuerpo string)
	verifica func(w http.ResponseWriter, cuerpo string)
	descarga func(w http.ResponseWriter, cuerpo string)
}

func (s *servidorSAT) arrancar(t *testing.T) (*Cliente, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		cuerpo := string(raw)
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")

		action := r.Header.Get("SOAPAction")
		switch {
		case strings.HasSuffix(action, "/VerificaSolicitudDescarga"):
			s.verifica(w, cuerpo)
		case strings.HasSuffix(action, "/Descargar"):
			s.descarga(w, cuerpo)
		case strings.HasSuffix(action, "/SolicitaDescarga"):
			s.solicita(w, cuerpo)
		default:
			t.Errorf("SOAPAction inesperado: %q", action)
			http.Error(w, "accion desconocida", http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)

	cliente := NewCliente(Endpoints{Solicita: srv.URL, Verifica: srv.URL, Descarga: srv.URL})
	return cliente, srv
}

func respSolicita(w http.ResponseWriter, idSolicitud, codEstatus, mensaje string) {
	fmt.Fprintf(w, `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
  <s:Body>
    <SolicitaDescargaResponse xmlns="http://DescargaMasivaTerceros.sat.gob.mx">
      <SolicitaDescargaResult IdSolicitud=%q CodEstatus=%q Mensaje=%q/>
    </SolicitaDescargaResponse>
  </s:Body>
</s:Envelope>`, idSolicitud, codEstatus, mensaje)
}

func respVerifica(w http.ResponseWriter, codigoEstado, idsPaquetes, mensaje string, numeroCFDIs int) {
	fmt.Fprintf(w, `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
  <s:Body>
    <VerificaSolicitudDescargaResponse xmlns="http://DescargaMasivaTerceros.sat.gob.mx">
      <VerificaSolicitudDescargaResult CodEstatus="5000" EstadoSolicitud=%q CodigoEstadoSolicitud=%q NumeroCFDIs="%d" IdsPaquetes=%q Mensaje=%q/>
    </VerificaSolicitudDescargaResponse>
  </s:Body>
</s:Envelope>`, codigoEstado, codigoEstado, numeroCFDIs, idsPaquetes, mensaje)
}

func respDescarga(w http.ResponseWriter, paqueteB64 string) {
	fmt.Fprintf(w, `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
  <s:Body>
    <DescargaMasivaTercerosResponse xmlns="http://DescargaMasivaTerceros.sat.gob.mx">
      <DescargaMasivaTercerosResult><Paquete>%s</Paquete></DescargaMasivaTercerosResult>
    </DescargaMasivaTercerosResponse>
  </s:Body>
</s:Envelope>`, paqueteB64)
}

func respFault(w http.ResponseWriter, codigo, detalle string) {
	fmt.Fprintf(w, `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
  <s:Body>
    <s:Fault>
      <faultcode>%s</faultcode>
      <faultstring>%s</faultstring>
    </s:Fault>
  </s:Body>
</s:Envelope>`, codigo, detalle)
}

// ── SolicitaDescarga ──────────────────────────────────────────────────────────

func TestSolicitaDescarga_EnviaAutenticacionYFirma(t *testing.T) {
	fir := nuevaEfirmaPrueba(t)

	var capturado atomic.Value
	srv := &servidorSAT{
		solicita: func(w http.ResponseWriter, cuerpo string) {
			capturado.Store(cuerpo)
			respSolicita(w, "SOL-123", "5000", "Solicitud Aceptada")
		},
	}
	cliente, _ := srv.arrancar(t)

	inicio := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fin := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)

	solicitud, err := cliente.SolicitaDescarga(context.Background(), fir, inicio, fin, entity.DescargaEmitidos)
	require.NoError(t, err)

	require.NotNil(t, solicitud)
	assert.Equal(t, "SOL-123", solicitud.IDSolicitud)
	assert.Equal(t, entity.DescargaEmitidos, solicitud.TipoDescarga)
	assert.Equal(t, pruebaRFC, solicitud.RFCEmisor, "en emitidos el RFC va como emisor")
	assert.Empty(t, solicitud.RFCReceptor)
	assert.Equal(t, entity.SolicitudSolicitada, solicitud.Estado)
	assert.Equal(t, "Solicitud Aceptada", solicitud.MensajeSAT)

	cuerpo, ok := capturado.Load().(string)
	require.True(t, ok, "el servidor debió capturar el envelope")
	assert.Contains(t, cuerpo, "<des:RfcSolicitante>"+pruebaRFC+"</des:RfcSolicitante>")
	assert.Contains(t, cuerpo, "<des:NoCertificado>"+fir.NumeroSerie()+"</des:NoCertificado>")
	assert.Contains(t, cuerpo, fir.CertificadoBase64())
	assert.Contains(t, cuerpo, "<des:firma>", "la solicitud debe ir firmada")
	assert.Contains(t, cuerpo, `RfcEmisor="`+pruebaRFC+`"`)
	assert.Contains(t, cuerpo, `FechaInicial="2024-01-01T00:00:00"`)
	assert.Contains(t, cuerpo, `FechaFinal="2024-01-31T23:59:59"`)
	assert.Contains(t, cuerpo, `TipoSolicitud="CFDI"`)
}

func TestSolicitaDescarga_Recibidos_RFCComoReceptor(t *testing.T) {
	fir := nuevaEfirmaPrueba(t)
	srv := &servidorSAT{
		solicita: func(w http.ResponseWriter, cuerpo string) {
			assert.Contains(t, cuerpo, `RfcReceptor="`+pruebaRFC+`"`)
			respSolicita(w, "SOL-456", "5000", "Solicitud Aceptada")
		},
	}
	cliente, _ := srv.arrancar(t)

	solicitud, err := cliente.SolicitaDescarga(context.Background(), fir,
		time.Now().AddDate(0, -1, 0), time.Now(), entity.DescargaRecibidos)
	require.NoError(t, err)
	assert.Equal(t, pruebaRFC, solicitud.RFCReceptor)
	assert.Empty(t, solicitud.RFCEmisor)
}

func TestSolicitaDescarga_NoAceptada(t *testing.T) {
	fir := nuevaEfirmaPrueba(t)
	srv := &servidorSAT{
		solicita: func(w http.ResponseWriter, _ string) {
			respSolicita(w, "", "5004", "No se encontró la información")
		},
	}
	cliente, _ := srv.arrancar(t)

	_, err := cliente.SolicitaDescarga(context.Background(), fir,
		time.Now().AddDate(0, -1, 0), time.Now(), entity.DescargaEmitidos)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no aceptada")
	assert.Contains(t, err.Error(), "5004")
}

func TestSolicitaDescarga_SOAPFault(t *testing.T) {
	fir := nuevaEfirmaPrueba(t)
	srv := &servidorSAT{
		solicita: func(w http.ResponseWriter, _ string) {
			respFault(w, "s:Client", "certificado no válido")
		},
	}
	cliente, _ := srv.arrancar(t)

	_, err := cliente.SolicitaDescarga(context.Background(), fir,
		time.Now().AddDate(0, -1, 0), time.Now(), entity.DescargaEmitidos)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SOAP Fault")
	assert.Contains(t, err.Error(), "certificado no válido")
}

// ── VerificaSolicitud ─────────────────────────────────────────────────────────

func TestVerificaSolicitud_MapeaEstadoYSeparaPaquetes(t *testing.T) {
	fir := nuevaEfirmaPrueba(t)
	srv := &servidorSAT{
		verifica: func(w http.ResponseWriter, cuerpo string) {
			assert.Contains(t, cuerpo, "<des:idSolicitud>SOL-789</des:idSolicitud>")
			respVerifica(w, "3", " PKG-1 , PKG-2 ,", "Solicitud terminada", 42)
		},
	}
	cliente, _ := srv.arrancar(t)

	verif, err := cliente.VerificaSolicitud(context.Background(), fir, "SOL-789")
	require.NoError(t, err)
	assert.Equal(t, entity.SolicitudTerminada, verif.Estado)
	assert.Equal(t, "3", verif.CodigoEstado)
	assert.Equal(t, 42, verif.NumeroArchivos)
	assert.Equal(t, []string{"PKG-1", "PKG-2"}, verif.IdsPaquetes, "ids separados por coma, sin vacíos ni espacios")
}

func TestVerificaSolicitud_EnProcesoSinPaquetes(t *testing.T) {
	fir := nuevaEfirmaPrueba(t)
	srv := &servidorSAT{
		verifica: func(w http.ResponseWriter, _ string) {
			respVerifica(w, "2", "", "En proceso", 0)
		},
	}
	cliente, _ := srv.arrancar(t)

	verif, err := cliente.VerificaSolicitud(context.Background(), fir, "SOL-1")
	require.NoError(t, err)
	assert.Equal(t, entity.SolicitudEnProceso, verif.Estado)
	assert.Empty(t, verif.IdsPaquetes)
}

// ── DescargaPaquete ───────────────────────────────────────────────────────────

func TestDescargaPaquete_DecodificaBase64(t *testing.T) {
	fir := nuevaEfirmaPrueba(t)
	contenido := []byte("PK\x03\x04contenido-zip-de-prueba")
	srv := &servidorSAT{
		descarga: func(w http.ResponseWriter, cuerpo string) {
			assert.Contains(t, cuerpo, "<des:idPaquete>PKG-1</des:idPaquete>")
			respDescarga(w, base64.StdEncoding.EncodeToString(contenido))
		},
	}
	cliente, _ := srv.arrancar(t)

	datos, err := cliente.DescargaPaquete(context.Background(), fir, "PKG-1")
	require.NoError(t, err)
	assert.Equal(t, contenido, datos)
}

func TestDescargaPaquete_RespuestaVacia(t *testing.T) {
	fir := nuevaEfirmaPrueba(t)
	srv := &servidorSAT{
		descarga: func(w http.ResponseWriter, _ string) {
			respDescarga(w, "")
		},
	}
	cliente, _ := srv.arrancar(t)

	_, err := cliente.DescargaPaquete(context.Background(), fir, "PKG-X")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no contiene paquete")
}

// ── DescargaCompleta ──────────────────────────────────────────────────────────

func TestDescargaCompleta_CicloExitoso(t *testing.T) {
	fir := nuevaEfirmaPrueba(t)
	paqueteA := []byte("zip-paquete-a")
	paqueteB := []byte("zip-paquete-b")

	var verificaciones int32
	srv := &servidorSAT{
		solicita: func(w http.ResponseWriter, _ string) {
			respSolicita(w, "SOL-OK", "5000", "Solicitud Aceptada")
		},
		verifica: func(w http.ResponseWriter, _ string) {
			// Primero en proceso, luego terminada: ejercita el polling.
			if atomic.AddInt32(&verificaciones, 1) < 2 {
				respVerifica(w, "2", "", "En proceso", 0)
				return
			}
			respVerifica(w, "3", "PKG-A,PKG-B", "Solicitud terminada", 7)
		},
		descarga: func(w http.ResponseWriter, cuerpo string) {
			if strings.Contains(cuerpo, "PKG-A") {
				respDescarga(w, base64.StdEncoding.EncodeToString(paqueteA))
				return
			}
			respDescarga(w, base64.StdEncoding.EncodeToString(paqueteB))
		},
	}
	cliente, _ := srv.arrancar(t)

	res, err := cliente.DescargaCompleta(context.Background(), fir,
		time.Now().AddDate(0, -1, 0), time.Now(), entity.DescargaEmitidos,
		500*time.Millisecond, 5*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.GreaterOrEqual(t, atomic.LoadInt32(&verificaciones), int32(2), "debió hacer polling al menos dos veces")
	assert.Equal(t, entity.SolicitudDescargada, res.Solicitud.Estado)
	assert.Equal(t, 2, res.Solicitud.NumeroPaquetes)
	assert.Equal(t, []string{"PKG-A", "PKG-B"}, res.Solicitud.IdsPaquetes)
	require.NotNil(t, res.Solicitud.TerminadaAt)
	require.NotNil(t, res.Solicitud.DescargadaAt)
	require.Len(t, res.Paquetes, 2)
	assert.Equal(t, paqueteA, res.Paquetes[0])
	assert.Equal(t, paqueteB, res.Paquetes[1])
}

func TestDescargaCompleta_SolicitudRechazada(t *testing.T) {
	fir := nuevaEfirmaPrueba(t)
	srv := &servidorSAT{
		solicita: func(w http.ResponseWriter, _ string) {
			respSolicita(w, "SOL-R", "5000", "Solicitud Aceptada")
		},
		verifica: func(w http.ResponseWriter, _ string) {
			respVerifica(w, "5", "", "Solicitud rechazada por el SAT", 0)
		},
	}
	cliente, _ := srv.arrancar(t)

	_, err := cliente.DescargaCompleta(context.Background(), fir,
		time.Now().AddDate(0, -1, 0), time.Now(), entity.DescargaRecibidos,
		100*time.Millisecond, 5*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSolicitudRechazada)
	assert.Contains(t, err.Error(), "rechazada por el SAT")
}

func TestDescargaCompleta_SolicitudVencida(t *testing.T) {
	fir := nuevaEfirmaPrueba(t)
	srv := &servidorSAT{
		solicita: func(w http.ResponseWriter, _ string) {
			respSolicita(w, "SOL-V", "5000", "Solicitud Aceptada")
		},
		verifica: func(w http.ResponseWriter, _ string) {
			respVerifica(w, "6", "", "Vencida", 0)
		},
	}
	cliente, _ := srv.arrancar(t)

	_, err := cliente.DescargaCompleta(context.Background(), fir,
		time.Now().AddDate(0, -1, 0), time.Now(), entity.DescargaEmitidos,
		100*time.Millisecond, 5*time.Millisecond)
	assert.ErrorIs(t, err, ErrSolicitudVencida)
}

func TestDescargaCompleta_TiempoAgotado(t *testing.T) {
	fir := nuevaEfirmaPrueba(t)
	srv := &servidorSAT{
		solicita: func(w http.ResponseWriter, _ string) {
			respSolicita(w, "SOL-T", "5000", "Solicitud Aceptada")
		},
		verifica: func(w http.ResponseWriter, _ string) {
			respVerifica(w, "2", "", "En proceso", 0)
		},
	}
	cliente, _ := srv.arrancar(t)

	_, err := cliente.DescargaCompleta(context.Background(), fir,
		time.Now().AddDate(0, -1, 0), time.Now(), entity.DescargaEmitidos,
		30*time.Millisecond, 5*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTiempoEsperaAgotado)
}

func TestDescargaCompleta_RespetaCancelacionDelContexto(t *testing.T) {
	fir := nuevaEfirmaPrueba(t)
	srv := &servidorSAT{
		solicita: func(w http.ResponseWriter, _ string) {
			respSolicita(w, "SOL-C", "5000", "Solicitud Aceptada")
		},
		verifica: func(w http.ResponseWriter, _ string) {
			respVerifica(w, "2", "", "En proceso", 0)
		},
	}
	cliente, _ := srv.arrancar(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := cliente.DescargaCompleta(ctx, fir,
		time.Now().AddDate(0, -1, 0), time.Now(), entity.DescargaEmitidos,
		10*time.Second, 50*time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}

// ── mapearCodigoEstado ────────────────────────────────────────────────────────

func TestMapearCodigoEstado(t *testing.T) {
	casos := map[string]entity.EstadoSolicitud{
		"1":  entity.SolicitudAceptada,
		"2":  entity.SolicitudEnProceso,
		"3":  entity.SolicitudTerminada,
		"4":  entity.SolicitudError,
		"5":  entity.SolicitudRechazada,
		"6":  entity.SolicitudVencida,
		"99": entity.SolicitudSolicitada,
	}
	for codigo, esperado := range casos {
		assert.Equal(t, esperado, mapearCodigoEstado(codigo), "código %s", codigo)
	}
}
