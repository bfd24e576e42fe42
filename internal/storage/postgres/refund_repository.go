package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tailorlink/negotiation/internal/domain"
)

type refundRepository struct {
	db *sql.DB
}

// NewRefundRepository создаёт PostgreSQL-реализацию RefundRepository.
func NewRefundRepository(store *Store) domain.RefundRepository {
	return &refundRepository{db: store.DB()}
}

// Create вставляет заявку; partial unique index по (order_id) WHERE status='pending'
// гарантирует не более одной открытой заявки на заказ.
func (r *refundRepository) Create(request domain.RefundRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refund_requests (
			id, order_id, customer_id, reason, currency, amount_minor, original_amount_minor,
			status, admin_notes, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		request.ID, request.OrderID, request.CustomerID, request.Reason, request.Currency,
		request.AmountMinor, request.OriginalAmountMinor,
		string(request.Status), request.AdminNotes, request.Version,
		request.CreatedAt, request.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateRequest
		}
		return fmt.Errorf("insert refund request: %w", err)
	}

	return nil
}

func (r *refundRepository) Get(id string) (domain.RefundRequest, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return scanRefundRequest(r.db.QueryRowContext(ctx, selectRefundQuery+` WHERE id = $1`, id))
}

func (r *refundRepository) ListByOrder(orderID string) ([]domain.RefundRequest, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, selectRefundQuery+`
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list refund requests: %w", err)
	}
	defer rows.Close()

	requests := make([]domain.RefundRequest, 0)
	for rows.Next() {
		request, err := scanRefundRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refund rows: %w", err)
	}

	return requests, nil
}

func (r *refundRepository) Save(request domain.RefundRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE refund_requests
		SET amount_minor = $1,
		    status = $2,
		    admin_notes = $3,
		    version = version + 1,
		    updated_at = $4
		WHERE id = $5
		  AND version = $6
	`,
		request.AmountMinor, string(request.Status), request.AdminNotes,
		request.UpdatedAt, request.ID, request.Version,
	)
	if err != nil {
		return fmt.Errorf("update refund request: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := rowExistsTx(ctx, tx, "refund_requests", request.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrRefundNotFound
		}
		return domain.ErrVersionConflict
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save refund request: %w", err)
	}

	return nil
}

const selectRefundQuery = `
		SELECT id, order_id, customer_id, reason, currency, amount_minor, original_amount_minor,
		       status, admin_notes, version, created_at, updated_at
		FROM refund_requests
`

func scanRefundRequest(row rowScanner) (domain.RefundRequest, error) {
	var (
		request domain.RefundRequest
		status  string
	)

	err := row.Scan(
		&request.ID, &request.OrderID, &request.CustomerID, &request.Reason, &request.Currency,
		&request.AmountMinor, &request.OriginalAmountMinor,
		&status, &request.AdminNotes, &request.Version,
		&request.CreatedAt, &request.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RefundRequest{}, domain.ErrRefundNotFound
		}
		return domain.RefundRequest{}, fmt.Errorf("scan refund request: %w", err)
	}
	request.Status = domain.RefundStatus(status)

	return request, nil
}

var _ domain.RefundRepository = (*refundRepository)(nil)
