package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tu-usuario/mifiscal-api/internal/domain"
	"github.com/tu-usuario/mifiscal-api/internal/domain/entity"
	"github.com/tu-usuario/mifiscal-api/internal/domain/repository"
	"github.com/tu-usuario/mifiscal-api/internal/infrastructure/efirma"
	"github.com/tu-usuario/mifiscal-api/internal/infrastructure/sat"
	"github.com/tu-usuario/mifiscal-api/pkg/config"
	"github.com/tu-usuario/mifiscal-api/pkg/security"
)

// politicaEstado documenta la regla terminal de la corrida: solo se marca
// failed cuando ambas direcciones fallan (o un paso fatal impide iniciar);
// una dirección exitosa basta para completed, con los errores acumulados
// en results.
const politicaEstado = "failed solo si ambas direcciones fallan"

// UseCase orquesta el ciclo completo de sincronización con el SAT:
//
//	lock → credenciales → e.firma vigente → descarga emitidos + recibidos →
//	procesar paquetes → dedup + clasificación → historial terminal
//
// Cada método es síncrono; el handler HTTP decide si lo corre en goroutine.
type UseCase struct {
	credRepo      repository.CredencialesRepository
	cfdiRepo      repository.CFDIRepository
	historyRepo   repository.SyncHistoryRepository
	solicitudRepo repository.SolicitudRepository

	cliente    sat.DescargaClient
	procesador Procesador
	lock       SyncLock
	cache      EstadoCache

	satCfg config.SATConfig
}

// NewUseCase construye el orquestador con todas sus dependencias.
func NewUseCase(
	credRepo repository.CredencialesRepository,
	cfdiRepo repository.CFDIRepository,
	historyRepo repository.SyncHistoryRepository,
	solicitudRepo repository.SolicitudRepository,
	cliente sat.DescargaClient,
	procesador Procesador,
	lock SyncLock,
	cache EstadoCache,
	satCfg config.SATConfig,
) *UseCase {
	return &UseCase{
		credRepo:      credRepo,
		cfdiRepo:      cfdiRepo,
		historyRepo:   historyRepo,
		solicitudRepo: solicitudRepo,
		cliente:       cliente,
		procesador:    procesador,
		lock:          lock,
		cache:         cache,
		satCfg:        satCfg,
	}
}

// SyncAll sincroniza los últimos monthsBack meses (ambas direcciones).
// Devuelve domain.ErrSyncEnCurso si el usuario ya tiene una corrida activa.
func (u *UseCase) SyncAll(ctx context.Context, userID string, monthsBack int) (*entity.SyncHistory, error) {
	if monthsBack < 1 {
		monthsBack = 1
	}
	h := &entity.SyncHistory{
		UserID:     userID,
		SyncType:   entity.SyncTypeFull,
		MonthsBack: &monthsBack,
	}
	return u.ejecutar(ctx, h, monthsBack)
}

// SyncRecent sincroniza los últimos daysBack días. La ventana se redondea a
// meses completos hacia arriba con un mínimo de un mes, porque el SAT procesa
// solicitudes amplias con la misma latencia que las cortas.
func (u *UseCase) SyncRecent(ctx context.Context, userID string, daysBack int) (*entity.SyncHistory, error) {
	if daysBack < 1 {
		daysBack = 1
	}
	meses := daysBack / 30
	if meses < 1 {
		meses = 1
	}
	h := &entity.SyncHistory{
		UserID:   userID,
		SyncType: entity.SyncTypeQuick,
		DaysBack: &daysBack,
	}
	return u.ejecutar(ctx, h, meses)
}

// LastSyncStatus devuelve la corrida más reciente del usuario (cache-aside)
// junto con el conteo vivo de comprobantes persistidos, o nil si nunca ha
// sincronizado. El conteo siempre se consulta en DB: es barato y cachearlo
// mentiría mientras una corrida está insertando.
func (u *UseCase) LastSyncStatus(ctx context.Context, userID string) (*entity.SyncHistory, int, error) {
	h, err := u.estadoCacheAside(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if h == nil {
		return nil, 0, nil
	}
	total, err := u.cfdiRepo.CountByUser(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("contar comprobantes: %w", err)
	}
	return h, total, nil
}

func (u *UseCase) estadoCacheAside(ctx context.Context, userID string) (*entity.SyncHistory, error) {
	if cacheado, err := u.cache.ObtenerEstado(ctx, userID); err == nil && cacheado != nil {
		return cacheado, nil
	} else if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("caché de estado no disponible, consultando DB")
	}

	h, err := u.historyRepo.GetMostRecent(ctx, userID)
	if err != nil {
		return nil, err
	}
	if h != nil {
		if err := u.cache.GuardarEstado(ctx, userID, h); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("no se pudo cachear el estado de sync")
		}
	}
	return h, nil
}

// ejecutar es el núcleo síncrono de la corrida. Siempre deja el historial en
// un estado terminal y libera el lock, incluso ante panic.
func (u *UseCase) ejecutar(ctx context.Context, h *entity.SyncHistory, monthsBack int) (resultado *entity.SyncHistory, errFinal error) {
	// ═══════════════════════════════════════════════════════════════════════════
	// 0. Lock por usuario: una sola corrida concurrente
	// ═══════════════════════════════════════════════════════════════════════════
	token, ok, err := u.lock.AdquirirLock(ctx, h.UserID)
	if err != nil {
		return nil, fmt.Errorf("adquirir lock de sync: %w", err)
	}
	if !ok {
		return nil, domain.ErrSyncEnCurso
	}
	defer func() {
		if err := u.lock.LiberarLock(ctx, h.UserID, token); err != nil {
			log.Error().Err(err).Str("user_id", h.UserID).Msg("no se pudo liberar el lock de sync")
		}
	}()

	// ═══════════════════════════════════════════════════════════════════════════
	// 1. Registrar la corrida como running
	// ═══════════════════════════════════════════════════════════════════════════
	ahora := time.Now()
	h.Status = entity.SyncStatusRunning
	h.StartedAt = ahora
	h.CreatedAt = ahora
	h.Results = entity.SyncResultados{PoliticaEstado: politicaEstado}
	if err := u.historyRepo.Create(ctx, h); err != nil {
		return nil, fmt.Errorf("crear historial de sync: %w", err)
	}

	terminar := func(status string) {
		h.Terminar(status, time.Now())
		if err := u.historyRepo.Update(ctx, h); err != nil {
			log.Error().Err(err).Str("sync_id", h.ID).Msg("no se pudo persistir el estado terminal")
		}
		if err := u.cache.InvalidarEstado(ctx, h.UserID); err != nil {
			log.Warn().Err(err).Str("user_id", h.UserID).Msg("no se pudo invalidar el caché de estado")
		}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("sync_id", h.ID).Msg("panic durante la sincronización")
			h.ErrorMessage = fmt.Sprintf("panic: %v", r)
			terminar(entity.SyncStatusFailed)
			resultado, errFinal = h, nil
		}
	}()

	fatal := func(msg string, err error) (*entity.SyncHistory, error) {
		if err != nil {
			h.ErrorMessage = fmt.Sprintf("%s: %v", msg, err)
		} else {
			h.ErrorMessage = msg
		}
		log.Error().Err(err).Str("sync_id", h.ID).Str("user_id", h.UserID).Msg(msg)
		terminar(entity.SyncStatusFailed)
		return h, nil
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 2. Credenciales + e.firma (la contraseña solo vive en este frame)
	// ═══════════════════════════════════════════════════════════════════════════
	creds, err := u.credRepo.GetByUserID(ctx, h.UserID)
	if err != nil {
		return fatal("credenciales SAT no disponibles", err)
	}
	password, err := security.Descifrar(u.satCfg.ClaveCifrado, creds.PasswordCifrado)
	if err != nil {
		return fatal("descifrar contraseña de la llave", err)
	}
	fir, err := efirma.Cargar(creds.CerPath, creds.KeyPath, password)
	if err != nil {
		return fatal("cargar e.firma", err)
	}

	// Certificado vencido o aún no válido: abortar antes de tocar el SAT.
	if vigente, motivo := fir.Vigente(time.Now()); !vigente {
		return fatal("e.firma no vigente: "+motivo, nil)
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 3. Ventana de sincronización
	// ═══════════════════════════════════════════════════════════════════════════
	fin := time.Now()
	inicio := fin.AddDate(0, 0, -monthsBack*30)
	log.Info().
		Str("sync_id", h.ID).
		Str("user_id", h.UserID).
		Time("desde", inicio).
		Time("hasta", fin).
		Msg("iniciando sincronización con el SAT")

	// ═══════════════════════════════════════════════════════════════════════════
	// 4. Ambas direcciones, con fallas independientes
	// ═══════════════════════════════════════════════════════════════════════════
	direcciones := []entity.TipoDescarga{entity.DescargaEmitidos, entity.DescargaRecibidos}
	fallidas := 0
	for _, dir := range direcciones {
		if err := u.sincronizarDireccion(ctx, h, fir, dir, inicio, fin); err != nil {
			fallidas++
			h.Results.Errores = append(h.Results.Errores, entity.SyncError{
				Origen:  string(dir),
				Detalle: err.Error(),
			})
			log.Error().Err(err).Str("sync_id", h.ID).Str("direccion", string(dir)).
				Msg("falló la descarga de una dirección")
		}
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 5. Estado terminal
	// ═══════════════════════════════════════════════════════════════════════════
	status := entity.SyncStatusCompleted
	if fallidas == len(direcciones) {
		status = entity.SyncStatusFailed
		h.ErrorMessage = "ambas direcciones fallaron"
	}
	terminar(status)

	log.Info().
		Str("sync_id", h.ID).
		Str("status", h.Status).
		Int("descargados", h.Results.CfdisDescargados).
		Int("procesados", h.Results.CfdisProcesados).
		Int("omitidos", h.Results.CfdisOmitidos).
		Int("errores", len(h.Results.Errores)).
		Msg("sincronización terminada")
	return h, nil
}

// sincronizarDireccion ejecuta solicitud, polling, descarga y procesamiento de
// una dirección completa. Los errores por documento se acumulan en results;
// solo las fallas del ciclo SAT abortan la dirección.
func (u *UseCase) sincronizarDireccion(ctx context.Context, h *entity.SyncHistory,
	fir *efirma.Servicio, dir entity.TipoDescarga, inicio, fin time.Time) error {

	res, err := u.cliente.DescargaCompleta(ctx, fir, inicio, fin, dir,
		u.satCfg.MaxEspera(), u.satCfg.IntervaloPoll())

	// La solicitud puede existir aunque el ciclo haya fallado después
	// (rechazada, vencida, timeout): persistirla siempre para auditoría.
	if res != nil && res.Solicitud != nil {
		s := res.Solicitud
		s.UserID = h.UserID
		s.SyncHistoryID = h.ID
		if err := u.solicitudRepo.Create(ctx, s); err != nil {
			log.Error().Err(err).Str("id_solicitud", s.IDSolicitud).
				Msg("no se pudo persistir la solicitud de descarga")
		}
	}
	if err != nil {
		return err
	}

	for i, zipBytes := range res.Paquetes {
		origenPaquete := fmt.Sprintf("%s/paquete-%d", dir, i+1)
		resultados, err := u.procesador.ProcesarPaquete(zipBytes)
		if err != nil {
			// ZIP corrupto: se registra y se sigue con el resto de paquetes.
			h.Results.Errores = append(h.Results.Errores, entity.SyncError{
				Origen:  origenPaquete,
				Detalle: err.Error(),
			})
			continue
		}
		for _, r := range resultados {
			h.Results.CfdisDescargados++
			if r.Err != nil {
				h.Results.Errores = append(h.Results.Errores, entity.SyncError{
					Origen:  origenPaquete,
					Detalle: r.Err.Error(),
				})
				continue
			}
			u.registrarCFDI(ctx, h, dir, r.CFDI)
		}
	}
	return nil
}

// registrarCFDI clasifica y persiste un comprobante, actualizando los contadores.
func (u *UseCase) registrarCFDI(ctx context.Context, h *entity.SyncHistory,
	dir entity.TipoDescarga, c *entity.CFDI) {

	c.UserID = h.UserID
	c.CreatedAt = time.Now()
	c.Clasificar()

	insertado, err := u.cfdiRepo.InsertarSiNoExiste(ctx, c)
	if err != nil {
		h.Results.Errores = append(h.Results.Errores, entity.SyncError{
			Origen:  c.UUID,
			Detalle: fmt.Sprintf("persistir: %v", err),
		})
		return
	}
	if !insertado {
		h.Results.CfdisOmitidos++
		return
	}

	h.Results.CfdisProcesados++
	switch dir {
	case entity.DescargaEmitidos:
		h.Results.CfdisEmitidos++
		if c.EsIngreso {
			h.Results.TotalIngresos = h.Results.TotalIngresos.Add(c.Total)
		}
	case entity.DescargaRecibidos:
		h.Results.CfdisRecibidos++
		if c.EsIngreso {
			// Una factura de ingreso recibida es un gasto del contribuyente.
			h.Results.TotalEgresos = h.Results.TotalEgresos.Add(c.Total)
		}
	}
}
