package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tailorlink/negotiation/internal/domain"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(order domain.Order) error {
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

	if err = insertOrderTx(ctx, tx, order); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}

	return nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, selectOrderQuery+` WHERE id = $1`, id))
	if err != nil {
		return domain.Order{}, err
	}

	if err := r.loadServices(ctx, &order); err != nil {
		return domain.Order{}, err
	}

	return order, nil
}

func (r *orderRepository) ListByParty(partyID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := selectOrderQuery + `
		WHERE customer_id = $1 OR tailor_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)

	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", partyID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, partyID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		if err := r.loadServices(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}

	return orders, nil
}

func (r *orderRepository) Save(order domain.Order) error {
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
		UPDATE orders
		SET status = $1,
		    payment_status = $2,
		    payment_ref = $3,
		    subtotal_minor = $4,
		    voucher_discount_minor = $5,
		    tax_minor = $6,
		    shipping_minor = $7,
		    total_minor = $8,
		    version = version + 1,
		    updated_at = $9
		WHERE id = $10
		  AND version = $11
	`,
		string(order.Status), string(order.PaymentStatus), order.PaymentRef,
		order.Pricing.SubtotalMinor, order.Pricing.VoucherDiscountMinor,
		order.Pricing.TaxMinor, order.Pricing.ShippingMinor, order.Pricing.TotalMinor,
		order.UpdatedAt, order.ID, order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := rowExistsTx(ctx, tx, "orders", order.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrVersionConflict
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save order: %w", err)
	}

	return nil
}

const selectOrderQuery = `
		SELECT id, offer_id, customer_id, tailor_id, currency, status, payment_status, payment_ref,
		       subtotal_minor, voucher_discount_minor, tax_minor, shipping_minor, total_minor,
		       version, created_at, updated_at
		FROM orders
`

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order         domain.Order
		status        string
		paymentStatus string
	)

	err := row.Scan(
		&order.ID, &order.OfferID, &order.CustomerID, &order.TailorID, &order.Currency,
		&status, &paymentStatus, &order.PaymentRef,
		&order.Pricing.SubtotalMinor, &order.Pricing.VoucherDiscountMinor,
		&order.Pricing.TaxMinor, &order.Pricing.ShippingMinor, &order.Pricing.TotalMinor,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("scan order: %w", err)
	}
	order.Status = domain.OrderStatus(status)
	order.PaymentStatus = domain.PaymentStatus(paymentStatus)

	return order, nil
}

func (r *orderRepository) loadServices(ctx context.Context, order *domain.Order) error {
	base, extra, err := loadServiceLines(ctx, r.db, "order_services", "order_id", order.ID)
	if err != nil {
		return err
	}
	order.UtilizedServices = base
	order.ExtraServices = extra
	return nil
}

func insertOrderTx(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, offer_id, customer_id, tailor_id, currency, status, payment_status, payment_ref,
			subtotal_minor, voucher_discount_minor, tax_minor, shipping_minor, total_minor,
			version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`,
		order.ID, order.OfferID, order.CustomerID, order.TailorID, order.Currency,
		string(order.Status), string(order.PaymentStatus), order.PaymentRef,
		order.Pricing.SubtotalMinor, order.Pricing.VoucherDiscountMinor,
		order.Pricing.TaxMinor, order.Pricing.ShippingMinor, order.Pricing.TotalMinor,
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	return saveServiceLines(ctx, tx, "order_services", "order_id", order.ID, order.UtilizedServices, order.ExtraServices)
}

var _ domain.OrderRepository = (*orderRepository)(nil)
