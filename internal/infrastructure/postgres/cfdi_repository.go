package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tu-usuario/mifiscal-api/internal/domain"
	"github.com/tu-usuario/mifiscal-api/internal/domain/entity"
	"github.com/tu-usuario/mifiscal-api/internal/domain/repository"
)

var _ repository.CFDIRepository = (*CFDIRepo)(nil)

// CFDIRepo implementación de CFDIRepository (usable con pool o tx).
type CFDIRepo struct {
	q Querier
}

// NewCFDIRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCFDIRepository(q Querier) *CFDIRepo {
	return &CFDIRepo{q: q}
}

const columnasCFDI = `
	id, user_id, uuid, serie, folio, version, tipo_comprobante,
	fecha_emision, fecha_timbrado,
	emisor_rfc, emisor_nombre, emisor_regimen_fiscal,
	receptor_rfc, receptor_nombre, receptor_uso_cfdi,
	receptor_domicilio_fiscal, receptor_regimen_fiscal,
	moneda, tipo_cambio, subtotal, descuento, total,
	total_impuestos_trasladados, total_impuestos_retenidos,
	iva_trasladado, isr_retenido,
	metodo_pago, forma_pago,
	es_ingreso, es_egreso, es_nomina, es_deducible,
	status, conceptos, impuestos, timbre, xml_content, created_at`

// InsertarSiNoExiste persiste el comprobante con ON CONFLICT DO NOTHING sobre
// (user_id, uuid). Devuelve false sin error cuando el folio fiscal ya existía.
func (r *CFDIRepo) InsertarSiNoExiste(ctx context.Context, c *entity.CFDI) (bool, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	conceptos, err := json.Marshal(c.Conceptos)
	if err != nil {
		return false, fmt.Errorf("serializar conceptos: %w", err)
	}
	impuestos, err := json.Marshal(c.Impuestos)
	if err != nil {
		return false, fmt.Errorf("serializar impuestos: %w", err)
	}
	timbre, err := json.Marshal(c.Timbre)
	if err != nil {
		return false, fmt.Errorf("serializar timbre: %w", err)
	}

	query := `
		INSERT INTO cfdis (` + columnasCFDI + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28,
		        $29, $30, $31, $32, $33, $34, $35, $36, $37, $38)
		ON CONFLICT (user_id, uuid) DO NOTHING`
	tag, err := r.q.Exec(ctx, query,
		c.ID, c.UserID, c.UUID, nullIfEmpty(c.Serie), nullIfEmpty(c.Folio),
		c.Version, c.TipoComprobante,
		c.FechaEmision, c.FechaTimbrado,
		c.EmisorRFC, nullIfEmpty(c.EmisorNombre), nullIfEmpty(c.EmisorRegimenFiscal),
		c.ReceptorRFC, nullIfEmpty(c.ReceptorNombre), nullIfEmpty(c.ReceptorUsoCFDI),
		nullIfEmpty(c.ReceptorDomicilioFiscal), nullIfEmpty(c.ReceptorRegimenFiscal),
		c.Moneda, c.TipoCambio, c.Subtotal, c.Descuento, c.Total,
		c.TotalImpuestosTrasladados, c.TotalImpuestosRetenidos,
		c.IVATrasladado, c.ISRRetenido,
		nullIfEmpty(c.MetodoPago), nullIfEmpty(c.FormaPago),
		c.EsIngreso, c.EsEgreso, c.EsNomina, c.EsDeducible,
		c.Status, conceptos, impuestos, timbre, c.XMLContent, c.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert cfdi: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ExistePorUUID verifica si el folio fiscal ya está registrado para el usuario.
func (r *CFDIRepo) ExistePorUUID(ctx context.Context, userID, folioFiscal string) (bool, error) {
	var existe bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM cfdis WHERE user_id = $1 AND uuid = $2)`,
		userID, folioFiscal,
	).Scan(&existe)
	if err != nil {
		return false, fmt.Errorf("exists cfdi: %w", err)
	}
	return existe, nil
}

// GetByID obtiene un comprobante completo del usuario por su ID interno.
func (r *CFDIRepo) GetByID(ctx context.Context, userID, id string) (*entity.CFDI, error) {
	query := `SELECT ` + columnasCFDI + ` FROM cfdis WHERE user_id = $1 AND id = $2`
	c, err := escanearCFDI(r.q.QueryRow(ctx, query, userID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get cfdi: %w", err)
	}
	return c, nil
}

// List devuelve los comprobantes del usuario que cumplen el filtro, con el
// total sin paginar para construir la respuesta paginada.
func (r *CFDIRepo) List(ctx context.Context, userID string, filtro repository.FiltroCFDI, limit, offset int) ([]*entity.CFDI, int, error) {
	where := " WHERE user_id = $1"
	args := []any{userID}
	if filtro.FechaInicio != nil {
		args = append(args, *filtro.FechaInicio)
		where += fmt.Sprintf(" AND fecha_emision >= $%d", len(args))
	}
	if filtro.FechaFin != nil {
		args = append(args, *filtro.FechaFin)
		where += fmt.Sprintf(" AND fecha_emision <= $%d", len(args))
	}
	if filtro.TipoComprobante != "" {
		args = append(args, filtro.TipoComprobante)
		where += fmt.Sprintf(" AND tipo_comprobante = $%d", len(args))
	}
	if filtro.SoloDeducibles {
		where += " AND es_deducible"
	}

	var total int
	if err := r.q.QueryRow(ctx, "SELECT COUNT(*) FROM cfdis"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count cfdis: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(
		"SELECT "+columnasCFDI+" FROM cfdis%s ORDER BY fecha_emision DESC, uuid LIMIT $%d OFFSET $%d",
		where, len(args)-1, len(args),
	)
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list cfdis: %w", err)
	}
	defer rows.Close()

	var list []*entity.CFDI
	for rows.Next() {
		c, err := escanearCFDI(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan cfdi: %w", err)
		}
		list = append(list, c)
	}
	return list, total, rows.Err()
}

// CountByUser devuelve el total de comprobantes registrados para el usuario.
func (r *CFDIRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var total int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM cfdis WHERE user_id = $1`, userID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count cfdis: %w", err)
	}
	return total, nil
}

// escanearCFDI lee una fila con las columnas de columnasCFDI.
func escanearCFDI(row pgx.Row) (*entity.CFDI, error) {
	var c entity.CFDI
	var serie, folio, emisorNombre, emisorRegimen *string
	var receptorNombre, usoCFDI, domicilio, receptorRegimen *string
	var metodoPago, formaPago *string
	var conceptos, impuestos, timbre []byte
	err := row.Scan(
		&c.ID, &c.UserID, &c.UUID, &serie, &folio, &c.Version, &c.TipoComprobante,
		&c.FechaEmision, &c.FechaTimbrado,
		&c.EmisorRFC, &emisorNombre, &emisorRegimen,
		&c.ReceptorRFC, &receptorNombre, &usoCFDI, &domicilio, &receptorRegimen,
		&c.Moneda, &c.TipoCambio, &c.Subtotal, &c.Descuento, &c.Total,
		&c.TotalImpuestosTrasladados, &c.TotalImpuestosRetenidos,
		&c.IVATrasladado, &c.ISRRetenido,
		&metodoPago, &formaPago,
		&c.EsIngreso, &c.EsEgreso, &c.EsNomina, &c.EsDeducible,
		&c.Status, &conceptos, &impuestos, &timbre, &c.XMLContent, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	derefStr := func(p *string) string {
		if p != nil {
			return *p
		}
		return ""
	}
	c.Serie = derefStr(serie)
	c.Folio = derefStr(folio)
	c.EmisorNombre = derefStr(emisorNombre)
	c.EmisorRegimenFiscal = derefStr(emisorRegimen)
	c.ReceptorNombre = derefStr(receptorNombre)
	c.ReceptorUsoCFDI = derefStr(usoCFDI)
	c.ReceptorDomicilioFiscal = derefStr(domicilio)
	c.ReceptorRegimenFiscal = derefStr(receptorRegimen)
	c.MetodoPago = derefStr(metodoPago)
	c.FormaPago = derefStr(formaPago)
	if len(conceptos) > 0 {
		if err := json.Unmarshal(conceptos, &c.Conceptos); err != nil {
			return nil, fmt.Errorf("deserializar conceptos: %w", err)
		}
	}
	if len(impuestos) > 0 {
		if err := json.Unmarshal(impuestos, &c.Impuestos); err != nil {
			return nil, fmt.Errorf("deserializar impuestos: %w", err)
		}
	}
	if len(timbre) > 0 {
		if err := json.Unmarshal(timbre, &c.Timbre); err != nil {
			return nil, fmt.Errorf("deserializar timbre: %w", err)
		}
	}
	return &c, nil
}
