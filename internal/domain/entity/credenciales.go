package entity

import "time"

// CredencialesSAT son las rutas a la e.firma del usuario y la contraseña
// cifrada de su llave privada. El descifrado ocurre al momento de usarla;
// este subsistema nunca retiene secretos en claro.
type CredencialesSAT struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	RFC string `json:"rfc"`

	CerPath string `json:"-"` // certificado .cer (DER) o .p12/.pfx
	KeyPath string `json:"-"` // llave privada .key (PKCS#8 DER cifrado)

	// PasswordCifrado es la contraseña de la llave, cifrada con AES-GCM.
	PasswordCifrado string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
