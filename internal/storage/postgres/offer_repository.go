package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tailorlink/negotiation/internal/domain"
)

const (
	opTimeout = 5 * time.Second

	serviceKindBase  = "base"
	serviceKindExtra = "extra"
)

type offerRepository struct {
	db *sql.DB
}

// NewOfferRepository создаёт PostgreSQL-реализацию OfferRepository.
func NewOfferRepository(store *Store) domain.OfferRepository {
	return &offerRepository{db: store.DB()}
}

func (r *offerRepository) Create(offer domain.Offer) error {
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

	if err = insertOfferTx(ctx, tx, offer); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create offer: %w", err)
	}

	return nil
}

func (r *offerRepository) Get(id string) (domain.Offer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	offer, err := r.scanOffer(r.db.QueryRowContext(ctx, `
		SELECT id, customer_id, tailor_id, currency, amount_minor, status, order_id, version, created_at, updated_at
		FROM offers
		WHERE id = $1
	`, id))
	if err != nil {
		return domain.Offer{}, err
	}

	if err := r.loadChildren(ctx, &offer); err != nil {
		return domain.Offer{}, err
	}

	return offer, nil
}

func (r *offerRepository) ListByParty(partyID string, limit int) ([]domain.Offer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT id, customer_id, tailor_id, currency, amount_minor, status, order_id, version, created_at, updated_at
		FROM offers
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
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	offers := make([]domain.Offer, 0)
	for rows.Next() {
		offer, err := r.scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offer rows: %w", err)
	}

	for i := range offers {
		if err := r.loadChildren(ctx, &offers[i]); err != nil {
			return nil, err
		}
	}

	return offers, nil
}

func (r *offerRepository) Save(offer domain.Offer) error {
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

	if err = updateOfferTx(ctx, tx, offer); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save offer: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *offerRepository) scanOffer(row rowScanner) (domain.Offer, error) {
	var (
		offer  domain.Offer
		status string
	)

	err := row.Scan(
		&offer.ID, &offer.CustomerID, &offer.TailorID, &offer.Currency,
		&offer.AmountMinor, &status, &offer.OrderID, &offer.Version,
		&offer.CreatedAt, &offer.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Offer{}, domain.ErrOfferNotFound
		}
		return domain.Offer{}, fmt.Errorf("scan offer: %w", err)
	}
	offer.Status = domain.OfferStatus(status)

	return offer, nil
}

func (r *offerRepository) loadChildren(ctx context.Context, offer *domain.Offer) error {
	base, extra, err := loadServiceLines(ctx, r.db, "offer_services", "offer_id", offer.ID)
	if err != nil {
		return err
	}
	offer.SelectedServices = base
	offer.ExtraServices = extra

	history, err := r.loadHistory(ctx, offer.ID)
	if err != nil {
		return err
	}
	offer.History = history

	return nil
}

func (r *offerRepository) loadHistory(ctx context.Context, offerID string) ([]domain.NegotiationEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, party_id, party_role, amount_minor, message, accepted, created_at
		FROM negotiation_entries
		WHERE offer_id = $1
		ORDER BY created_at ASC, id ASC
	`, offerID)
	if err != nil {
		return nil, fmt.Errorf("load negotiation history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.NegotiationEntry, 0)
	for rows.Next() {
		var (
			entry domain.NegotiationEntry
			role  string
		)
		if err := rows.Scan(
			&entry.ID, &entry.By.ID, &role, &entry.AmountMinor,
			&entry.Message, &entry.Accepted, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan negotiation entry: %w", err)
		}
		entry.By.Role = domain.Role(role)
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate negotiation entries: %w", err)
	}

	return history, nil
}

// execer покрывает *sql.DB и *sql.Tx для переиспользования child-table helpers.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func insertOfferTx(ctx context.Context, tx *sql.Tx, offer domain.Offer) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO offers (
			id, customer_id, tailor_id, currency, amount_minor, status, order_id, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		offer.ID, offer.CustomerID, offer.TailorID, offer.Currency,
		offer.AmountMinor, string(offer.Status), offer.OrderID, offer.Version,
		offer.CreatedAt, offer.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("insert offer: %w", err)
	}

	if err := saveServiceLines(ctx, tx, "offer_services", "offer_id", offer.ID, offer.SelectedServices, offer.ExtraServices); err != nil {
		return err
	}

	return appendHistoryTx(ctx, tx, offer.ID, offer.History)
}

// updateOfferTx перезаписывает сервисные строки и дописывает новые записи истории.
// История append-only, повторная вставка существующей записи игнорируется по id.
func updateOfferTx(ctx context.Context, tx *sql.Tx, offer domain.Offer) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE offers
		SET currency = $1,
		    amount_minor = $2,
		    status = $3,
		    order_id = $4,
		    version = version + 1,
		    updated_at = $5
		WHERE id = $6
		  AND version = $7
	`,
		offer.Currency, offer.AmountMinor, string(offer.Status), offer.OrderID,
		offer.UpdatedAt, offer.ID, offer.Version,
	)
	if err != nil {
		return fmt.Errorf("update offer: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := rowExistsTx(ctx, tx, "offers", offer.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOfferNotFound
		}
		return domain.ErrVersionConflict
	}

	if err := saveServiceLines(ctx, tx, "offer_services", "offer_id", offer.ID, offer.SelectedServices, offer.ExtraServices); err != nil {
		return err
	}

	return appendHistoryTx(ctx, tx, offer.ID, offer.History)
}

func appendHistoryTx(ctx context.Context, tx *sql.Tx, offerID string, history []domain.NegotiationEntry) error {
	for _, entry := range history {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO negotiation_entries (
				id, offer_id, party_id, party_role, amount_minor, message, accepted, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (id) DO NOTHING
		`,
			entry.ID, offerID, entry.By.ID, string(entry.By.Role),
			entry.AmountMinor, entry.Message, entry.Accepted, entry.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert negotiation entry: %w", err)
		}
	}
	return nil
}

// saveServiceLines полностью перезаписывает строки услуг агрегата.
func saveServiceLines(ctx context.Context, db execer, table, fkColumn, ownerID string, base, extra []domain.ServiceLine) error {
	if _, err := db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table, fkColumn), ownerID,
	); err != nil {
		return fmt.Errorf("clear service lines: %w", err)
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (%s, kind, position, service_id, service_name, qty, unit_price_minor)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, table, fkColumn)

	for kind, lines := range map[string][]domain.ServiceLine{
		serviceKindBase:  base,
		serviceKindExtra: extra,
	} {
		for i, line := range lines {
			if _, err := db.ExecContext(ctx, insert,
				ownerID, kind, i, line.ServiceID, line.ServiceName, line.Qty, line.UnitPriceMinor,
			); err != nil {
				return fmt.Errorf("insert service line: %w", err)
			}
		}
	}

	return nil
}

func loadServiceLines(ctx context.Context, db execer, table, fkColumn, ownerID string) (base, extra []domain.ServiceLine, err error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT kind, service_id, service_name, qty, unit_price_minor
		FROM %s
		WHERE %s = $1
		ORDER BY kind, position
	`, table, fkColumn), ownerID)
	if err != nil {
		return nil, nil, fmt.Errorf("load service lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind string
			line domain.ServiceLine
		)
		if err := rows.Scan(&kind, &line.ServiceID, &line.ServiceName, &line.Qty, &line.UnitPriceMinor); err != nil {
			return nil, nil, fmt.Errorf("scan service line: %w", err)
		}
		switch kind {
		case serviceKindExtra:
			extra = append(extra, line)
		default:
			base = append(base, line)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate service lines: %w", err)
	}

	return base, extra, nil
}

func rowExistsTx(ctx context.Context, tx *sql.Tx, table, id string) (bool, error) {
	var found string
	err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE id = $1`, table), id).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check %s row exists: %w", table, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OfferRepository = (*offerRepository)(nil)
