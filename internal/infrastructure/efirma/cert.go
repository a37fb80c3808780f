// Carga de certificado y llave privada desde archivos DER o contenedor .p12.

package efirma

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/youmark/pkcs8"
	"golang.org/x/crypto/pkcs12"
)

// cargarCertificadoDER lee un .cer del SAT (DER crudo). Si el archivo resulta
// estar en PEM, se decodifica el primer bloque CERTIFICATE.
func cargarCertificadoDER(path string) (*x509.Certificate, error) {
	datos, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("efirma: leer certificado: %w", err)
	}
	if bloque, _ := pem.Decode(datos); bloque != nil && bloque.Type == "CERTIFICATE" {
		datos = bloque.Bytes
	}
	cert, err := x509.ParseCertificate(datos)
	if err != nil {
		return nil, fmt.Errorf("efirma: parsear certificado: %w", err)
	}
	return cert, nil
}

// cargarLlavePrivadaDER lee un .key del SAT (PKCS#8 DER cifrado con la
// contraseña). Acepta también llaves sin cifrar y llaves en PEM.
func cargarLlavePrivadaDER(path, password string) (*rsa.PrivateKey, error) {
	datos, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("efirma: leer llave privada: %w", err)
	}
	if bloque, _ := pem.Decode(datos); bloque != nil {
		datos = bloque.Bytes
	}
	priv, err := pkcs8.ParsePKCS8PrivateKeyRSA(datos, []byte(password))
	if err != nil {
		// pkcs8 cifrado falla con contraseña incorrecta; probar sin cifrar
		if sinCifrar, err2 := x509.ParsePKCS8PrivateKey(datos); err2 == nil {
			if rsaKey, ok := sinCifrar.(*rsa.PrivateKey); ok {
				return rsaKey, nil
			}
		}
		return nil, fmt.Errorf("efirma: descifrar llave privada (¿contraseña incorrecta?): %w", err)
	}
	return priv, nil
}

// cargarDesdeP12 decodifica un contenedor .p12/.pfx con certificado y llave.
func cargarDesdeP12(path, password string) (*x509.Certificate, *rsa.PrivateKey, error) {
	datos, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("efirma: leer p12: %w", err)
	}
	priv, cert, err := pkcs12.Decode(datos, password)
	if err != nil {
		return nil, nil, fmt.Errorf("efirma: decodificar p12: %w", err)
	}
	rsaKey, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, fmt.Errorf("efirma: el p12 debe contener una llave RSA")
	}
	return cert, rsaKey, nil
}
