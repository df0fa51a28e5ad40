package calculator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type auditRepoPG struct{ conn queryable }

// NewAuditRepoPG stores records in the calculation_log table. conn is
// usually a *pgxpool.Pool.
func NewAuditRepoPG(conn queryable) AuditRepository {
	return &auditRepoPG{conn: conn}
}

const recordCols = `id, calculator_id, mode, status, error_kind, duration_ms, created_at`

func (r *auditRepoPG) scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.CalculatorID, &rec.Mode, &rec.Status,
		&rec.ErrorKind, &rec.DurationMS, &rec.CreatedAt)
	return &rec, err
}

func (r *auditRepoPG) Create(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := r.conn.Exec(ctx, `
		INSERT INTO calculation_log (id, calculator_id, mode, status, error_kind, duration_ms, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.ID, rec.CalculatorID, rec.Mode, rec.Status, rec.ErrorKind, rec.DurationMS, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert calculation_log: %w", err)
	}
	return nil
}

func (r *auditRepoPG) ListByCalculator(ctx context.Context, calculatorID string, limit, offset int) ([]*Record, int, error) {
	var total int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM calculation_log WHERE calculator_id = $1`, calculatorID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count calculation_log: %w", err)
	}
	rows, err := r.conn.Query(ctx, `SELECT `+recordCols+` FROM calculation_log WHERE calculator_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, calculatorID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query calculation_log: %w", err)
	}
	defer rows.Close()
	items := []*Record{}
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}
