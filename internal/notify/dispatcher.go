package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"trackline/internal/domain"
	"trackline/internal/engine"
)

const (
	defaultInterval    = 5 * time.Second
	defaultBatch       = 50
	defaultMaxAttempts = 5
)

// Dispatcher polls the notification table and pushes deliverable rows through
// the sender. Failed sends are retried on later passes until the attempt cap.
type Dispatcher struct {
	Engine      engine.Engine
	Sender      Sender
	Log         *zap.Logger
	Interval    time.Duration
	Batch       int
	MaxAttempts int
}

func NewDispatcher(e engine.Engine, s Sender, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		Engine:      e,
		Sender:      s,
		Log:         log,
		Interval:    defaultInterval,
		Batch:       defaultBatch,
		MaxAttempts: defaultMaxAttempts,
	}
}

// Run loops until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()
	for {
		if err := d.DispatchOnce(ctx); err != nil {
			d.Log.Warn("notification pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce drains one batch. Exposed separately so the CLI and tests can
// run a single deterministic pass.
func (d *Dispatcher) DispatchOnce(ctx context.Context) error {
	pending, err := d.Engine.Repo.ListDeliverable(ctx, d.MaxAttempts, d.Batch)
	if err != nil {
		return err
	}
	for _, n := range pending {
		if err := d.Sender.Send(n.RecipientEmail, n.Subject, n.Body); err != nil {
			d.Log.Warn("notification delivery failed",
				zap.String("id", n.ID),
				zap.String("recipient", n.RecipientEmail),
				zap.Int("attempts", n.Attempts+1),
				zap.Error(err))
			if markErr := d.Engine.Repo.MarkNotificationFailed(ctx, n.ID, err.Error()); markErr != nil {
				return markErr
			}
			continue
		}
		sentAt := d.Engine.Now().UTC().Format(time.RFC3339)
		if err := d.Engine.Repo.MarkNotificationSent(ctx, n.ID, sentAt); err != nil {
			return err
		}
		d.Log.Debug("notification sent",
			zap.String("id", n.ID),
			zap.String("recipient", n.RecipientEmail))
	}
	if len(pending) > 0 {
		backlog, err := d.Engine.Repo.CountNotifications(ctx, domain.NotifyPending)
		if err != nil {
			return err
		}
		d.Log.Info("notification pass complete",
			zap.Int("delivered_or_failed", len(pending)),
			zap.Int("backlog", backlog))
	}
	return nil
}
