// Package efirma maneja la Firma Electrónica Avanzada del SAT.
//
// La e.firma consta de:
//   - Certificado (.cer): archivo público DER que identifica al contribuyente
//   - Llave privada (.key): PKCS#8 DER cifrado con contraseña
//
// También se acepta un contenedor .p12/.pfx con ambos.
package efirma

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Servicio firma solicitudes al SAT con la e.firma del contribuyente.
// Inmutable después de Cargar; seguro para lecturas concurrentes.
type Servicio struct {
	cert *x509.Certificate
	priv *rsa.PrivateKey
}

// Cargar construye el servicio desde las rutas del certificado y la llave.
// Si cerPath termina en .p12/.pfx se ignora keyPath y se decodifica el
// contenedor completo con la contraseña dada.
func Cargar(cerPath, keyPath, password string) (*Servicio, error) {
	lower := strings.ToLower(cerPath)
	if strings.HasSuffix(lower, ".p12") || strings.HasSuffix(lower, ".pfx") {
		cert, priv, err := cargarDesdeP12(cerPath, password)
		if err != nil {
			return nil, err
		}
		return &Servicio{cert: cert, priv: priv}, nil
	}

	cert, err := cargarCertificadoDER(cerPath)
	if err != nil {
		return nil, err
	}
	priv, err := cargarLlavePrivadaDER(keyPath, password)
	if err != nil {
		return nil, err
	}
	return &Servicio{cert: cert, priv: priv}, nil
}

// Vigente verifica la ventana de validez del certificado en el instante dado.
// Devuelve (false, motivo) si aún no es válido o ya expiró.
func (s *Servicio) Vigente(at time.Time) (bool, string) {
	if at.Before(s.cert.NotBefore) {
		return false, "el certificado aún no es válido"
	}
	if at.After(s.cert.NotAfter) {
		return false, "el certificado ha expirado"
	}
	return true, ""
}

// RFC extrae el RFC del contribuyente del Subject del certificado.
// El SAT lo coloca en serialNumber (a veces acompañado del CURP, separados
// por " / "); si falta, se toma el primer token del commonName.
func (s *Servicio) RFC() (string, error) {
	if sn := strings.TrimSpace(s.cert.Subject.SerialNumber); sn != "" {
		if campos := strings.Fields(sn); len(campos) > 0 {
			return campos[0], nil
		}
	}
	if cn := strings.TrimSpace(s.cert.Subject.CommonName); cn != "" {
		if campos := strings.Fields(cn); len(campos) > 0 {
			return campos[0], nil
		}
	}
	return "", fmt.Errorf("efirma: el certificado no contiene RFC en serialNumber ni commonName")
}

// NumeroSerie devuelve el número de serie del certificado en decimal,
// como lo espera el campo NoCertificado de los servicios del SAT.
func (s *Servicio) NumeroSerie() string {
	return s.cert.SerialNumber.String()
}

// CertificadoBase64 devuelve el certificado DER en Base64 para el bloque de
// autenticación de las solicitudes SOAP.
func (s *Servicio) CertificadoBase64() string {
	return base64.StdEncoding.EncodeToString(s.cert.Raw)
}

// Certificado expone el certificado parseado (solo lectura).
func (s *Servicio) Certificado() *x509.Certificate {
	return s.cert
}

// Firmar firma los bytes exactos recibidos con RSA PKCS#1 v1.5 / SHA-256 y
// devuelve la firma en Base64. El caller construye la cadena canónica.
func (s *Servicio) Firmar(datos []byte) (string, error) {
	digest := sha256.Sum256(datos)
	firma, err := rsa.SignPKCS1v15(rand.Reader, s.priv, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("efirma: firmar: %w", err)
	}
	return base64.StdEncoding.EncodeToString(firma), nil
}

// FirmarCadena firma una cadena de texto.
func (s *Servicio) FirmarCadena(texto string) (string, error) {
	return s.Firmar([]byte(texto))
}

// CadenaOriginal construye la cadena canónica a firmar para una solicitud de
// descarga: los campos en orden fijo separados por pipe.
func CadenaOriginal(rfcEmisor, rfcReceptor string, fechaInicial, fechaFinal time.Time, tipoSolicitud string) string {
	const layoutSAT = "2006-01-02T15:04:05"
	return strings.Join([]string{
		rfcEmisor,
		rfcReceptor,
		fechaInicial.Format(layoutSAT),
		fechaFinal.Format(layoutSAT),
		tipoSolicitud,
	}, "|")
}
