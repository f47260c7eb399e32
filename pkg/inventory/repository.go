package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"vending/pkg/storage"
)

// querier is the subset of *sql.DB and *sql.Tx the repository needs.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository persists items and the change reserve through database/sql so storage backends
// stay swappable.
type Repository struct {
	db   *sql.DB
	q    querier
	inTx bool
	log  zerolog.Logger
}

// NewRepository wires the handle used by every Store call.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		q:   db,
		log: log.With().Str("component", "inventory").Logger(),
	}
}

// WithinTx runs fn against a Store bound to a single transaction. The transaction commits when
// fn returns nil and rolls back on error or panic. Calls made on a transaction-bound repository
// reuse the open transaction.
func (r *Repository) WithinTx(ctx context.Context, fn func(Store) error) error {
	if r.inTx {
		return fn(r)
	}
	return storage.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&Repository{db: r.db, q: tx, inTx: true, log: r.log})
	})
}

// ListItems returns every product in insertion order, including sold-out ones.
func (r *Repository) ListItems(ctx context.Context) ([]Item, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT name, price, quantity FROM items ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.Name, &item.Price, &item.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

// FindItemByName looks an item up ignoring case. The bool is false when no item matches.
func (r *Repository) FindItemByName(ctx context.Context, name string) (Item, bool, error) {
	var item Item
	err := r.q.QueryRowContext(ctx, "SELECT name, price, quantity FROM items WHERE name = ?", name).
		Scan(&item.Name, &item.Price, &item.Quantity)
	if errors.Is(err, sql.ErrNoRows) {
		r.log.Debug().Str("name", name).Msg("item lookup missed")
		return Item{}, false, nil
	}
	if err != nil {
		return Item{}, false, fmt.Errorf("failed to find item %s: %w", name, err)
	}
	return item, true, nil
}

// UpdateItem stores the new quantity for an existing item and ignores unknown names.
func (r *Repository) UpdateItem(ctx context.Context, item Item) error {
	res, err := r.q.ExecContext(ctx, "UPDATE items SET quantity = ? WHERE name = ?", item.Quantity, item.Name)
	if err != nil {
		return fmt.Errorf("failed to update item %s: %w", item.Name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		r.log.Warn().Str("name", item.Name).Msg("attempted to update non-existent item")
		return nil
	}
	r.log.Debug().Str("name", item.Name).Int("quantity", item.Quantity).Msg("item quantity updated")
	return nil
}

// ListDenominations returns the full reserve ordered by value, highest first.
func (r *Repository) ListDenominations(ctx context.Context) ([]Denomination, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT value, quantity FROM denominations ORDER BY value DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list denominations: %w", err)
	}
	defer rows.Close()

	denominations := make([]Denomination, 0)
	for rows.Next() {
		var d Denomination
		if err := rows.Scan(&d.Value, &d.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan denomination: %w", err)
		}
		denominations = append(denominations, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list denominations: %w", err)
	}
	return denominations, nil
}

// FindDenomination looks up the reserve entry for value. The bool is false when none exists.
func (r *Repository) FindDenomination(ctx context.Context, value int) (Denomination, bool, error) {
	var d Denomination
	err := r.q.QueryRowContext(ctx, "SELECT value, quantity FROM denominations WHERE value = ?", value).
		Scan(&d.Value, &d.Quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return Denomination{}, false, nil
	}
	if err != nil {
		return Denomination{}, false, fmt.Errorf("failed to find denomination %d: %w", value, err)
	}
	return d, true, nil
}

// UpdateDenomination stores the new reserve quantity and ignores unknown values.
func (r *Repository) UpdateDenomination(ctx context.Context, d Denomination) error {
	res, err := r.q.ExecContext(ctx, "UPDATE denominations SET quantity = ? WHERE value = ?", d.Quantity, d.Value)
	if err != nil {
		return fmt.Errorf("failed to update denomination %d: %w", d.Value, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		r.log.Warn().Int("denomination", d.Value).Msg("attempted to update non-existent denomination")
		return nil
	}
	r.log.Debug().Int("denomination", d.Value).Int("quantity", d.Quantity).Msg("reserve quantity updated")
	return nil
}

// Seed fills empty tables with the given catalog. Tables that already hold rows are left alone
// so state persisted by an earlier run survives a restart. It reports whether anything was written.
func (r *Repository) Seed(ctx context.Context, items []Item, denominations []Denomination) (bool, error) {
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return false, err
		}
	}
	for _, d := range denominations {
		if err := d.Validate(); err != nil {
			return false, err
		}
	}

	seeded := false
	err := r.WithinTx(ctx, func(s Store) error {
		tx := s.(*Repository)

		existingItems, err := tx.ListItems(ctx)
		if err != nil {
			return err
		}
		if len(existingItems) == 0 {
			for _, item := range items {
				if _, err := tx.q.ExecContext(ctx, "INSERT INTO items (name, price, quantity) VALUES (?, ?, ?)",
					item.Name, item.Price, item.Quantity); err != nil {
					return fmt.Errorf("failed to insert item %s: %w", item.Name, err)
				}
				seeded = true
			}
		}

		existingDenominations, err := tx.ListDenominations(ctx)
		if err != nil {
			return err
		}
		if len(existingDenominations) == 0 {
			for _, d := range denominations {
				if _, err := tx.q.ExecContext(ctx, "INSERT INTO denominations (value, quantity) VALUES (?, ?)",
					d.Value, d.Quantity); err != nil {
					return fmt.Errorf("failed to insert denomination %d: %w", d.Value, err)
				}
				seeded = true
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if seeded {
		r.log.Info().Int("items", len(items)).Int("denominations", len(denominations)).Msg("catalog seeded")
	}
	return seeded, nil
}
