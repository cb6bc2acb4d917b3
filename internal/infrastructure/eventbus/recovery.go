package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/modushop/internal/observability"
	"github.com/Zhima-Mochi/modushop/internal/observability/logctx"
)

// Scanner replays pending envelopes left behind by crashes or failed
// listeners. It runs once at startup, before the service accepts traffic,
// and then periodically in the background.
type Scanner struct {
	bus *Bus
}

func NewScanner(b *Bus) (*Scanner, error) {
	if b == nil {
		return nil, fmt.Errorf("eventbus: scanner requires a bus")
	}
	return &Scanner{bus: b}, nil
}

// RecoveryResult summarizes one recovery pass.
type RecoveryResult struct {
	Scanned     int
	Delivered   int
	StillFailed int
}

// Recover loads every pending envelope, oldest first, and attempts delivery.
// Individual delivery failures are counted but do not abort the pass; the
// envelope stays pending for the next pass. Only a failure to read the log
// itself is returned as an error.
func (s *Scanner) Recover(ctx context.Context) (RecoveryResult, error) {
	b := s.bus
	logger := logctx.FromOr(ctx, b.logger)

	pending, err := b.log.FindIncomplete(ctx)
	if err != nil {
		return RecoveryResult{}, fmt.Errorf("eventbus: scan pending envelopes: %w", err)
	}

	result := RecoveryResult{Scanned: len(pending)}
	for _, env := range pending {
		outcome := b.dispatcher.Deliver(ctx, env)
		if outcome.Delivered {
			result.Delivered++
		} else {
			result.StillFailed++
		}
	}

	b.tel.Counter(observability.MRecoveryPasses).Add(1)
	if result.Scanned > 0 {
		logger.Info("recovery_pass_finished",
			observability.F("scanned", result.Scanned),
			observability.F("delivered", result.Delivered),
			observability.F("still_failed", result.StillFailed),
		)
	}
	return result, nil
}

// Run executes Recover on a fixed interval until ctx is cancelled. Read
// failures are logged and retried on the next tick; after the initial
// startup pass they are no longer fatal.
func (s *Scanner) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := logctx.FromOr(ctx, s.bus.logger)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Recover(ctx); err != nil {
				logger.Error("recovery_pass_failed", observability.F("error", err.Error()))
			}
		}
	}
}
