package repository

import (
	"context"

	"github.com/and161185/timecards/internal/model"
)

// AccountRepository provides access to resource accounts.
type AccountRepository interface {
	// Create inserts a new account and assigns its Resource number.
	Create(ctx context.Context, a *model.Account) error
	// GetByResource loads an account by resource number.
	GetByResource(ctx context.Context, resource int) (*model.Account, error)
	// GetByUsername loads an account by username.
	GetByUsername(ctx context.Context, username string) (*model.Account, error)
}
