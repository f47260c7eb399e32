package inventory

import "context"

// Store is the read/lookup/update surface the transaction engine relies on.
//
// Lookups return copies. Update calls are the only way to change stored state and silently do
// nothing when the target no longer exists.
type Store interface {
	ListItems(ctx context.Context) ([]Item, error)
	FindItemByName(ctx context.Context, name string) (Item, bool, error)
	UpdateItem(ctx context.Context, item Item) error
	ListDenominations(ctx context.Context) ([]Denomination, error)
	FindDenomination(ctx context.Context, value int) (Denomination, bool, error)
	UpdateDenomination(ctx context.Context, denomination Denomination) error
}
