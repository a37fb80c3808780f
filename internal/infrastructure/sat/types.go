// Package sat implementa el cliente SOAP de descarga masiva de CFDIs del SAT.
//
// El SAT expone tres servicios:
//  1. SolicitaDescarga: crear la solicitud
//  2. VerificaSolicitud: consultar su estado (polling; no existe push)
//  3. DescargaMasiva: descargar cada paquete cuando la solicitud termina
package sat

import (
	"errors"

	"github.com/tu-usuario/mifiscal-api/internal/domain/entity"
)

// TipoSolicitudCFDI es el valor fijo del campo TipoSolicitud.
const TipoSolicitudCFDI = "CFDI"

// Errores terminales del ciclo de descarga.
var (
	ErrSolicitudRechazada  = errors.New("sat: el SAT rechazó la solicitud")
	ErrSolicitudVencida    = errors.New("sat: la solicitud venció antes de descargarse")
	ErrSolicitudFallida    = errors.New("sat: la solicitud terminó en error")
	ErrTiempoEsperaAgotado = errors.New("sat: se agotó el tiempo de espera de la solicitud")
)

// Endpoints son las URLs de los tres servicios. Configurables para apuntar a
// un servicio simulado en pruebas.
type Endpoints struct {
	Solicita string
	Verifica string
	Descarga string
}

// Verificacion es el resultado tipado de VerificaSolicitud. Aísla al resto del
// sistema de la forma del envelope SOAP.
type Verificacion struct {
	Estado         entity.EstadoSolicitud
	CodigoEstado   string // código crudo 1-6 del SAT
	NumeroArchivos int
	IdsPaquetes    []string
	Mensaje        string
}

// ResultadoDescarga es lo que produce el ciclo completo de una dirección:
// la solicitud en su estado final y los bytes de cada paquete ZIP.
type ResultadoDescarga struct {
	Solicitud *entity.SolicitudDescarga
	Paquetes  [][]byte
}

// mapearCodigoEstado traduce el código numérico del SAT al estado de dominio.
func mapearCodigoEstado(codigo string) entity.EstadoSolicitud {
	switch codigo {
	case "1":
		return entity.SolicitudAceptada
	case "2":
		return entity.SolicitudEnProceso
	case "3":
		return entity.SolicitudTerminada
	case "4":
		return entity.SolicitudError
	case "5":
		return entity.SolicitudRechazada
	case "6":
		return entity.SolicitudVencida
	default:
		return entity.SolicitudSolicitada
	}
}
