package main

import (
	"fmt"
	"os"
	"time"

	"github.com/tu-usuario/mifiscal-api/internal/infrastructure/efirma"
)

// Herramienta suelta de diagnóstico: verifica que una e.firma cargue con la
// contraseña dada antes de culpar a la app o al .env.
//
//	go run debug_cert.go <ruta.cer> <ruta.key> <contraseña>
func main() {
	if len(os.Args) != 4 {
		fmt.Println("uso: go run debug_cert.go <ruta.cer> <ruta.key> <contraseña>")
		os.Exit(1)
	}
	cerPath, keyPath, password := os.Args[1], os.Args[2], os.Args[3]

	fmt.Println("🔍 DIAGNÓSTICO DE e.firma (SAT)")
	fmt.Println("--------------------------------")
	fmt.Printf("📂 Certificado: %s\n", cerPath)
	fmt.Printf("🔑 Llave:       %s\n", keyPath)

	fir, err := efirma.Cargar(cerPath, keyPath, password)
	if err != nil {
		fmt.Println("\n❌ ERROR AL CARGAR:")
		fmt.Printf("   Detalle técnico: %v\n", err)
		fmt.Println("   Si el archivo existe, casi siempre es la contraseña de la llave.")
		os.Exit(1)
	}

	rfc, err := fir.RFC()
	if err != nil {
		fmt.Printf("\n⚠️  Certificado cargado pero sin RFC legible: %v\n", err)
	} else {
		fmt.Printf("\n✅ RFC del titular:   %s\n", rfc)
	}
	fmt.Printf("✅ Número de serie:  %s\n", fir.NumeroSerie())

	cert := fir.Certificado()
	fmt.Printf("📅 Vigencia:         %s → %s\n",
		cert.NotBefore.Format("2006-01-02"), cert.NotAfter.Format("2006-01-02"))
	if vigente, motivo := fir.Vigente(time.Now()); !vigente {
		fmt.Printf("\n❌ La e.firma %s. El SAT rechazará cualquier solicitud.\n", motivo)
		os.Exit(1)
	}

	fmt.Println("\n✨ ¡ÉXITO! La e.firma carga, firma y está vigente.")
}
