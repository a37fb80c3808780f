package security_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/mifiscal-api/pkg/security"
)

const claveTest = "clave-de-cifrado-de-prueba"

func TestCifrarDescifrar_RoundTrip(t *testing.T) {
	cifrado, err := security.Cifrar(claveTest, "contraseña-secreta")
	require.NoError(t, err)
	require.NotEmpty(t, cifrado)
	assert.NotContains(t, cifrado, "contraseña-secreta",
		"el texto cifrado no debe contener el secreto en claro")

	plano, err := security.Descifrar(claveTest, cifrado)
	require.NoError(t, err)
	assert.Equal(t, "contraseña-secreta", plano)
}

func TestCifrar_NoncesDistintos(t *testing.T) {
	// Dos cifrados del mismo texto deben diferir (nonce aleatorio).
	a, err := security.Cifrar(claveTest, "mismo-texto")
	require.NoError(t, err)
	b, err := security.Cifrar(claveTest, "mismo-texto")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "cada cifrado debe llevar un nonce distinto")
}

func TestDescifrar_ClaveIncorrecta(t *testing.T) {
	cifrado, err := security.Cifrar(claveTest, "secreto")
	require.NoError(t, err)

	_, err = security.Descifrar("otra-clave", cifrado)
	require.Error(t, err, "otra clave no debe poder descifrar")
}

func TestDescifrar_DatoAlterado(t *testing.T) {
	cifrado, err := security.Cifrar(claveTest, "secreto")
	require.NoError(t, err)

	alterado := "A" + cifrado[1:]
	_, err = security.Descifrar(claveTest, alterado)
	require.Error(t, err, "GCM debe detectar la alteración del dato")
}

func TestCifrar_ClaveVacia(t *testing.T) {
	_, err := security.Cifrar("", "secreto")
	require.Error(t, err)
	_, err = security.Descifrar("", "ZmFrZQ==")
	require.Error(t, err)
}
