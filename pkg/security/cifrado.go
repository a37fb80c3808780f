// Package security implementa el cifrado simétrico de secretos en reposo
// (contraseñas de la llave privada e.firma). AES-256-GCM con nonce aleatorio
// antepuesto al ciphertext; todo codificado en Base64 para guardarse en texto.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// deriveKey deriva una llave AES-256 a partir de la clave de configuración.
func deriveKey(clave string) []byte {
	sum := sha256.Sum256([]byte(clave))
	return sum[:]
}

// Cifrar cifra el texto plano y devuelve Base64(nonce || ciphertext).
func Cifrar(clave, plano string) (string, error) {
	if clave == "" {
		return "", fmt.Errorf("security: clave de cifrado vacía")
	}
	block, err := aes.NewCipher(deriveKey(clave))
	if err != nil {
		return "", fmt.Errorf("security: crear cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("security: crear GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("security: generar nonce: %w", err)
	}
	sellado := gcm.Seal(nonce, nonce, []byte(plano), nil)
	return base64.StdEncoding.EncodeToString(sellado), nil
}

// Descifrar revierte Cifrar. Falla si la clave no corresponde o el dato fue alterado.
func Descifrar(clave, cifradoB64 string) (string, error) {
	if clave == "" {
		return "", fmt.Errorf("security: clave de cifrado vacía")
	}
	datos, err := base64.StdEncoding.DecodeString(cifradoB64)
	if err != nil {
		return "", fmt.Errorf("security: decodificar Base64: %w", err)
	}
	block, err := aes.NewCipher(deriveKey(clave))
	if err != nil {
		return "", fmt.Errorf("security: crear cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("security: crear GCM: %w", err)
	}
	if len(datos) < gcm.NonceSize() {
		return "", fmt.Errorf("security: dato cifrado truncado")
	}
	nonce, ciphertext := datos[:gcm.NonceSize()], datos[gcm.NonceSize():]
	plano, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("security: descifrar: %w", err)
	}
	return string(plano), nil
}
