package monitor

import (
	"context"
	"errors"
	"fmt"
	"indodax-monitor-bot/internal/metrics"
	"indodax-monitor-bot/internal/notifier"
	"indodax-monitor-bot/internal/statemanager"
	"time"

	"go.uber.org/zap"
)

const notifyTimeout = 10 * time.Second

// Loop reconciles one collection against market state, one tick at a time.
//
// A tick reads a snapshot, evaluates every active record without holding the
// store lock, then commits the decided records in a single Mutate that
// re-reads the current content. Records added or changed in the meantime are
// preserved, and a decision is only applied to a record that is still active.
// Notifications go out after the commit succeeded, never before.
//
// When the tick deadline passes, evaluation stops and the decisions gathered
// so far are committed. Only a cancelled context abandons the tick.
type Loop[T, R any] struct {
	name          string
	interval      time.Duration
	recordTimeout time.Duration
	store         *statemanager.Store[T]
	coll          Collection[T, R]
	policy        Policy[R]
	notifier      notifier.Notifier
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// NewLoop builds a loop that ticks every interval.
func NewLoop[T, R any](
	interval time.Duration,
	store *statemanager.Store[T],
	coll Collection[T, R],
	policy Policy[R],
	n notifier.Notifier,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Loop[T, R] {
	return &Loop[T, R]{
		name:     policy.Name(),
		interval: interval,
		store:    store,
		coll:     coll,
		policy:   policy,
		notifier: n,
		metrics:  m,
		logger:   logger.With(zap.String("loop", policy.Name())),
	}
}

// WithRecordTimeout bounds the evaluation of each record, so one hung fetch
// fails alone instead of consuming the whole tick.
func (l *Loop[T, R]) WithRecordTimeout(d time.Duration) *Loop[T, R] {
	l.recordTimeout = d
	return l
}

func (l *Loop[T, R]) Name() string            { return l.name }
func (l *Loop[T, R]) Interval() time.Duration { return l.interval }

type outgoing struct {
	owner   string
	message string
}

func recordID(owner, key string) string {
	return owner + "\x00" + key
}

// Tick runs one reconciliation pass. It returns an error wrapping
// statemanager.ErrStoreIO when the commit failed, the context error when the
// tick was abandoned, or a context.DeadlineExceeded error after committing a
// partial batch. Per-record failures are logged and never returned.
func (l *Loop[T, R]) Tick(ctx context.Context) error {
	start := time.Now()
	defer func() { l.metrics.ObserveTick(l.name, time.Since(start)) }()

	entries := l.coll.Entries(l.store.Read())
	ctx = withTickMemo(ctx)

	decisions := make(map[string]Verdict)
	evaluated, visited := 0, 0
	var deadlineErr error
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				l.logger.Info("Tick abandoned", zap.Error(err))
				return err
			}
			deadlineErr = err
			break
		}
		visited++
		if !l.policy.Active(e.Record) {
			continue
		}
		evaluated++

		verdict, err := l.evaluate(ctx, e)
		if err != nil {
			l.metrics.IncFetchError(l.name)
			l.logger.Warn("Skipping record",
				zap.String("owner", e.Owner),
				zap.String("key", l.policy.Key(e.Record)),
				zap.Error(err))
			continue
		}
		if verdict.Decision == Keep {
			continue
		}
		decisions[recordID(e.Owner, l.policy.Key(e.Record))] = verdict
	}
	l.metrics.AddEvaluated(l.name, evaluated)

	if deadlineErr != nil {
		l.logger.Warn("Tick deadline reached, committing partial batch",
			zap.Int("visited", visited), zap.Int("records", len(entries)))
		deadlineErr = fmt.Errorf("%s: tick deadline reached after %d of %d records: %w",
			l.name, visited, len(entries), deadlineErr)
	}

	if len(decisions) == 0 {
		return deadlineErr
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		l.logger.Info("Tick abandoned before commit", zap.Error(err))
		return err
	}

	var (
		notifications []outgoing
		removed       int
	)
	err := l.store.Mutate(func(current T) (T, bool) {
		notifications, removed = nil, 0
		changed := false

		currentEntries := l.coll.Entries(current)
		kept := make([]Entry[R], 0, len(currentEntries))
		for _, e := range currentEntries {
			d, ok := decisions[recordID(e.Owner, l.policy.Key(e.Record))]
			if !ok || !l.policy.Active(e.Record) {
				kept = append(kept, e)
				continue
			}
			changed = true
			switch d.Decision {
			case Remove:
				removed++
			case Trigger:
				if rec, keep := l.policy.Apply(e.Record); keep {
					kept = append(kept, Entry[R]{Owner: e.Owner, Record: rec})
				}
				notifications = append(notifications, outgoing{owner: e.Owner, message: d.Message})
			}
		}
		if !changed {
			return current, false
		}
		return l.coll.Build(kept), true
	})
	if err != nil {
		return fmt.Errorf("%s commit: %w", l.name, err)
	}

	l.metrics.AddRemoved(l.name, removed)
	l.metrics.AddTriggered(l.name, len(notifications))
	if removed > 0 {
		l.logger.Info("Removed records for unknown pairs", zap.Int("count", removed))
	}

	// Delivery still runs if the tick is cancelled after the commit.
	notifyCtx := context.WithoutCancel(ctx)
	for _, n := range notifications {
		l.logger.Info("Record triggered", zap.String("owner", n.owner), zap.String("message", n.message))
		sendCtx, cancel := context.WithTimeout(notifyCtx, notifyTimeout)
		if err := l.notifier.Send(sendCtx, n.owner, n.message); err != nil {
			l.metrics.IncNotificationFailed()
			l.logger.Warn("Notification failed", zap.String("owner", n.owner), zap.Error(err))
		}
		cancel()
	}
	return deadlineErr
}

// evaluate isolates a panicking policy to the record it was evaluating.
func (l *Loop[T, R]) evaluate(ctx context.Context, e Entry[R]) (v Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.metrics.IncPanic(l.name)
			err = fmt.Errorf("panic while evaluating record: %v", r)
		}
	}()
	if l.recordTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.recordTimeout)
		defer cancel()
	}
	return l.policy.Evaluate(ctx, e.Record)
}
