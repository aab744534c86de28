// Package worker drives conversations forward when work events arrive on
// the hub.
//
// A WorkNew event advances its conversation by one Resolve and one Run. An
// ongoing traversal publishes WorkNew again, so a conversation keeps moving
// one hop per event until its closer step records the answer and WorkDone is
// published. Events for the same conversation are handled one at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/tendril/internal/codec"
	"github.com/aretw0/tendril/internal/logging"
	"github.com/aretw0/tendril/internal/runtime"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/observability"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/aretw0/tendril/pkg/store"
)

// Worker consumes conv.work events.
type Worker struct {
	hub     ports.Hub
	store   *store.Store
	runner  *runtime.Runner
	lanes   *lanes
	logger  *slog.Logger
	metrics *observability.Metrics

	wg   sync.WaitGroup
	done chan struct{}
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the worker logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
			w.lanes.logger = l
		}
	}
}

// WithMetrics counts handled events.
func WithMetrics(m *observability.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithLocker holds a cross-process lock on each conversation while its
// event is handled, so several workers can share one hub.
func WithLocker(locker ports.Locker, ttl time.Duration) Option {
	return func(w *Worker) {
		w.lanes.locker = locker
		if ttl > 0 {
			w.lanes.lockTTL = ttl
		}
	}
}

// New creates a worker. Start or Run must be called to consume events.
func New(hub ports.Hub, s *store.Store, r *runtime.Runner, opts ...Option) *Worker {
	nop := logging.NewNop()
	w := &Worker{
		hub:    hub,
		store:  s,
		runner: r,
		lanes:  newLanes(nop),
		logger: nop,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start subscribes to work events and handles them in the background until
// ctx is done. Events published after Start returns are not missed.
func (w *Worker) Start(ctx context.Context) error {
	ch, err := w.hub.Subscribe(ctx, domain.TopicConvWork)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", domain.TopicConvWork, err)
	}
	w.done = make(chan struct{})
	go w.loop(ctx, ch)
	return nil
}

// Wait blocks until the event loop and every in-flight handler have
// returned.
func (w *Worker) Wait() {
	if w.done != nil {
		<-w.done
	}
	w.wg.Wait()
}

// Run is Start followed by Wait.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	w.logger.Info("Worker started", "topic", domain.TopicConvWork)
	w.Wait()
	w.logger.Info("Worker stopped")
	return nil
}

func (w *Worker) loop(ctx context.Context, ch <-chan []byte) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			ev, err := codec.DecodeWorkEvent(payload)
			if err != nil {
				w.logger.Warn("Dropping malformed work event", "err", err)
				continue
			}
			w.metrics.ObserveWork(string(ev.Kind))

			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				if err := w.Handle(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
					w.logger.Error("Work event failed", "kind", ev.Kind, "conv_id", ev.ConvID, "err", err)
				}
			}()
		}
	}
}

// Handle processes one work event while holding the conversation lane.
func (w *Worker) Handle(ctx context.Context, ev domain.WorkEvent) error {
	return w.lanes.withLock(ctx, ev.ConvID, func(ctx context.Context) error {
		switch ev.Kind {
		case domain.WorkNew:
			return w.advance(ctx, ev.ConvID)
		case domain.WorkDone:
			return w.recheck(ctx, ev.ConvID)
		}
		return nil
	})
}

func (w *Worker) advance(ctx context.Context, convID int64) error {
	log := w.logger.With("conv_id", convID)

	res, ran, err := w.runner.Advance(ctx, convID)
	if err != nil {
		return err
	}
	if !ran {
		log.Debug("No step to run")
		return nil
	}

	if res == domain.RunEnded {
		if err := w.store.Convs.TouchWorkDone(ctx, convID); err != nil {
			return err
		}
		log.Info("Conversation answered")
		return Notify(ctx, w.hub, domain.WorkDone, convID)
	}
	return Notify(ctx, w.hub, domain.WorkNew, convID)
}

// recheck picks up messages that arrived while a previous traversal of the
// conversation was still running.
func (w *Worker) recheck(ctx context.Context, convID int64) error {
	_, err := w.store.Steps.SeekNextToResolve(ctx, convID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return Notify(ctx, w.hub, domain.WorkNew, convID)
}

// Recover publishes WorkNew for every conversation with steps left to
// resolve or run. It is meant to be called once at startup, after Start.
func (w *Worker) Recover(ctx context.Context) (int, error) {
	ids, err := w.store.Steps.PendingConvIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to scan pending conversations: %w", err)
	}
	for _, id := range ids {
		if err := Notify(ctx, w.hub, domain.WorkNew, id); err != nil {
			return 0, err
		}
	}
	if len(ids) > 0 {
		w.logger.Info("Recovered pending conversations", "count", len(ids))
	}
	return len(ids), nil
}
