package finalize

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Reconciliation is a settled payment whose application could not be
// finalized.
type Reconciliation struct {
	ApplicationID    string     `json:"applicationId"`
	PaymentReference string     `json:"paymentReference"`
	ReceiptNumber    string     `json:"receiptNumber,omitempty"`
	Amount           int64      `json:"amount"`
	PhoneNumber      string     `json:"phoneNumber,omitempty"`
	Reason           string     `json:"reason"`
	Attempts         int        `json:"attempts"`
	CreatedAt        time.Time  `json:"createdAt"`
	ResolvedAt       *time.Time `json:"resolvedAt,omitempty"`
}

// Ledger keeps partial failures until a later finalization resolves them.
type Ledger interface {
	Record(ctx context.Context, r Reconciliation) error
	Resolve(ctx context.Context, applicationID, paymentReference string) (bool, error)
}

const reconciliationSchema = `
CREATE TABLE IF NOT EXISTS payment_reconciliations (
	application_id    TEXT NOT NULL,
	payment_reference TEXT NOT NULL,
	receipt_number    TEXT NOT NULL DEFAULT '',
	amount            BIGINT NOT NULL DEFAULT 0,
	phone_number      TEXT NOT NULL DEFAULT '',
	reason            TEXT NOT NULL DEFAULT '',
	attempts          INTEGER NOT NULL DEFAULT 1,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	resolved_at       TIMESTAMPTZ,
	PRIMARY KEY (application_id, payment_reference)
)`

// PostgresLedger stores reconciliations in payment_reconciliations.
type PostgresLedger struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// EnsureSchema creates the table if it does not exist.
func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, reconciliationSchema); err != nil {
		return fmt.Errorf("create payment_reconciliations: %w", err)
	}
	return nil
}

// Record inserts r, or bumps attempts and reopens the row when the same
// payment failed to finalize before.
func (l *PostgresLedger) Record(ctx context.Context, r Reconciliation) error {
	now := l.now()
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO payment_reconciliations (
			application_id, payment_reference, receipt_number, amount,
			phone_number, reason, attempts, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $7)
		ON CONFLICT (application_id, payment_reference) DO UPDATE SET
			attempts = payment_reconciliations.attempts + 1,
			reason = EXCLUDED.reason,
			updated_at = EXCLUDED.updated_at,
			resolved_at = NULL`,
		r.ApplicationID,
		r.PaymentReference,
		r.ReceiptNumber,
		r.Amount,
		r.PhoneNumber,
		r.Reason,
		now,
	)
	if err != nil {
		return fmt.Errorf("record reconciliation: %w", err)
	}
	return nil
}

// Resolve marks an open row resolved and reports whether one existed.
func (l *PostgresLedger) Resolve(ctx context.Context, applicationID, paymentReference string) (bool, error) {
	res, err := l.db.ExecContext(ctx, `
		UPDATE payment_reconciliations
		SET resolved_at = $3, updated_at = $3
		WHERE application_id = $1 AND payment_reference = $2 AND resolved_at IS NULL`,
		applicationID, paymentReference, l.now(),
	)
	if err != nil {
		return false, fmt.Errorf("resolve reconciliation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve reconciliation: %w", err)
	}
	return n > 0, nil
}

// Open lists unresolved rows, oldest first.
func (l *PostgresLedger) Open(ctx context.Context, limit int) ([]Reconciliation, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT application_id, payment_reference, receipt_number, amount,
			phone_number, reason, attempts, created_at
		FROM payment_reconciliations
		WHERE resolved_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reconciliations: %w", err)
	}
	defer rows.Close()

	var out []Reconciliation
	for rows.Next() {
		var r Reconciliation
		if err := rows.Scan(
			&r.ApplicationID, &r.PaymentReference, &r.ReceiptNumber, &r.Amount,
			&r.PhoneNumber, &r.Reason, &r.Attempts, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan reconciliation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
