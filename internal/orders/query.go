package orders

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/storefront-sync/pkg/db"
	"github.com/angelmondragon/storefront-sync/pkg/db/models"
)

type identityLookup interface {
	LookupByEmail(ctx context.Context, email string) (*models.User, bool, error)
}

// UserOrders is the read model behind "my orders". User is nil when no
// account holds the email; Orders is never nil.
type UserOrders struct {
	User   *models.User
	Orders []models.Order
}

// QueryService resolves an email to a user, then reads that user's orders.
type QueryService struct {
	users   identityLookup
	repo    *Repository
	timeout time.Duration
}

func NewQueryService(users identityLookup, repo *Repository, callTimeout time.Duration) (*QueryService, error) {
	if users == nil {
		return nil, errors.New("identity lookup required")
	}
	if repo == nil {
		return nil, errors.New("orders repository required")
	}
	return &QueryService{users: users, repo: repo, timeout: callTimeout}, nil
}

// GetOrdersForUser returns the user's orders newest first. An unknown email
// is an empty result, not an error.
func (q *QueryService) GetOrdersForUser(ctx context.Context, email string) (*UserOrders, error) {
	user, found, err := q.users.LookupByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !found {
		return &UserOrders{Orders: []models.Order{}}, nil
	}

	ctx, cancel := db.WithCallTimeout(ctx, q.timeout)
	defer cancel()

	rows, err := q.repo.ListByUserID(ctx, user.ID)
	if err != nil {
		return nil, db.Persistence(err, "list orders for user")
	}
	if rows == nil {
		rows = []models.Order{}
	}
	return &UserOrders{User: user, Orders: rows}, nil
}
