package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-sync/pkg/logger"
)

const (
	OutboxRetentionJobName     = "outbox-retention"
	defaultOutboxRetentionDays = 30
	defaultTerminalAttempts    = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeleteRetiredBefore(tx *gorm.DB, cutoff time.Time, terminalAttempts int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger           *logger.Logger
	Tx               txRunner
	Outbox           outboxPruner
	RetentionDays    int
	TerminalAttempts int
}

// OutboxRetentionJob deletes outbox rows that are done: published, or failed
// for good and already copied to the DLQ.
type OutboxRetentionJob struct {
	logg             *logger.Logger
	tx               txRunner
	outbox           outboxPruner
	retention        time.Duration
	terminalAttempts int
	now              func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (*OutboxRetentionJob, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox repository required")
	}
	days := params.RetentionDays
	if days <= 0 {
		days = defaultOutboxRetentionDays
	}
	attempts := params.TerminalAttempts
	if attempts <= 0 {
		attempts = defaultTerminalAttempts
	}
	return &OutboxRetentionJob{
		logg:             params.Logger,
		tx:               params.Tx,
		outbox:           params.Outbox,
		retention:        time.Duration(days) * 24 * time.Hour,
		terminalAttempts: attempts,
		now:              time.Now,
	}, nil
}

func (j *OutboxRetentionJob) Name() string { return OutboxRetentionJobName }

func (j *OutboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)

	var deleted int64
	err := j.tx.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.outbox.DeleteRetiredBefore(tx, cutoff, j.terminalAttempts)
		deleted = n
		return err
	})
	if err != nil {
		return fmt.Errorf("prune outbox: %w", err)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "outbox pruned")
	return nil
}
