package users

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-sync/pkg/db"
	"github.com/angelmondragon/storefront-sync/pkg/db/models"
	"github.com/angelmondragon/storefront-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-sync/pkg/errors"
	"github.com/angelmondragon/storefront-sync/pkg/logger"
	"github.com/angelmondragon/storefront-sync/pkg/outbox"
	"github.com/angelmondragon/storefront-sync/pkg/outbox/payloads"
)

const emailConstraint = "users_email_key"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams wires the identity resolver.
type ServiceParams struct {
	Repo        *Repository
	Tx          txRunner
	Outbox      outboxPublisher
	Logger      *logger.Logger
	CallTimeout time.Duration
	Now         func() time.Time
}

// Service maps platform customers to internal users.
type Service struct {
	repo     *Repository
	tx       txRunner
	outbox   outboxPublisher
	logg     *logger.Logger
	timeout  time.Duration
	now      func() time.Time
	validate *validator.Validate
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("users repository required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox publisher required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		logg:     params.Logger,
		timeout:  params.CallTimeout,
		now:      now,
		validate: validator.New(),
	}, nil
}

// ResolveOrCreate upserts the user for a customer event and queues a
// customer_synced event in the same transaction. Last write wins.
func (s *Service) ResolveOrCreate(ctx context.Context, in CustomerInput) (*models.User, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	ctx, cancel := db.WithCallTimeout(ctx, s.timeout)
	defer cancel()

	var user *models.User
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		resolved, err := s.ResolveOrCreateTx(ctx, tx, in)
		if err != nil {
			return err
		}
		user = resolved
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCustomerSynced,
			AggregateType: enums.AggregateCustomer,
			AggregateID:   resolved.ID,
			Data: payloads.CustomerSyncedEvent{
				UserID:             resolved.ID,
				ExternalCustomerID: resolved.ExternalCustomerID,
				Email:              resolved.Email,
			},
		})
	})
	if err != nil {
		return nil, db.Persistence(err, "resolve customer")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"user_id":              user.ID.String(),
			"external_customer_id": user.ExternalCustomerID,
		})
		s.logg.Info(logCtx, "customer resolved")
	}
	return user, nil
}

// ResolveOrCreateTx is ResolveOrCreate inside the caller's transaction,
// without emitting an event of its own.
func (s *Service) ResolveOrCreateTx(ctx context.Context, tx *gorm.DB, in CustomerInput) (*models.User, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	user, err := s.repo.WithTx(tx).UpsertByExternalCustomerID(ctx, in.toModel(), s.now().UTC())
	if err != nil {
		if db.IsUniqueViolation(err, emailConstraint) || db.IsUniqueViolation(err, "users.email") {
			return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "email already belongs to another customer").
				WithDetails(map[string]any{"external_customer_id": in.ExternalCustomerID})
		}
		return nil, db.Persistence(err, "upsert user")
	}
	return user, nil
}

// LookupByEmail is the read-only resolver used by the query path. Zero rows
// is (nil, false, nil); more than one row is a persistence error.
func (s *Service) LookupByEmail(ctx context.Context, email string) (*models.User, bool, error) {
	ctx, cancel := db.WithCallTimeout(ctx, s.timeout)
	defer cancel()
	return s.lookup(ctx, s.repo, email)
}

// LookupByEmailTx runs the same lookup on tx.
func (s *Service) LookupByEmailTx(ctx context.Context, tx *gorm.DB, email string) (*models.User, bool, error) {
	return s.lookup(ctx, s.repo.WithTx(tx), email)
}

// LookupByExternalIDTx loads the user holding the platform customer id on tx.
func (s *Service) LookupByExternalIDTx(ctx context.Context, tx *gorm.DB, externalID int64) (*models.User, bool, error) {
	if externalID <= 0 {
		return nil, false, nil
	}
	user, err := s.repo.WithTx(tx).FindByExternalCustomerID(ctx, externalID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, db.Persistence(err, "lookup user by customer id")
	}
	return user, true, nil
}

func (s *Service) lookup(ctx context.Context, repo *Repository, email string) (*models.User, bool, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, false, nil
	}
	rows, err := repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, db.Persistence(err, "lookup user by email")
	}
	switch len(rows) {
	case 0:
		return nil, false, nil
	case 1:
		return &rows[0], true, nil
	default:
		return nil, false, pkgerrors.New(pkgerrors.CodePersistence, "multiple users share one email")
	}
}

func (s *Service) validateInput(in CustomerInput) error {
	in.Email = NormalizeEmail(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "customer id and email are required")
	}
	return nil
}
