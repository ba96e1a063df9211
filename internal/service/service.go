// Package service is the work-item orchestrator. It is the only writer of
// item state: every mutation runs under a per-item lock, goes through the
// state machine or dependency graph as appropriate, and is persisted through
// the Store collaborator.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/baiirun/workdesk/internal/deadline"
	"github.com/baiirun/workdesk/internal/model"
	"github.com/baiirun/workdesk/internal/recurrence"
)

const maxTitleLen = 500

type Service struct {
	store     Store
	identity  Identity
	clock     Clock
	log       *slog.Logger
	deadlines deadline.Calculator
	newID     func(prefix string) string
	metrics   *metrics

	locks *keyedMutex
	// graphMu orders edge changes against completions within this process.
	// The store's AddEdge and SaveTransition repeat the checks under its own
	// write lock for other processes sharing the file.
	graphMu sync.RWMutex
}

type Option func(*Service)

func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithDeadlines sets the SLA table and warning threshold.
func WithDeadlines(c deadline.Calculator) Option {
	return func(s *Service) { s.deadlines = c }
}

// WithRegisterer registers the service's metrics with reg. Without it the
// metrics go to a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Service) { s.metrics = newMetrics(reg) }
}

// WithIDGenerator overrides model.GenerateID.
func WithIDGenerator(fn func(prefix string) string) Option {
	return func(s *Service) { s.newID = fn }
}

func New(store Store, identity Identity, opts ...Option) *Service {
	s := &Service{
		store:     store,
		identity:  identity,
		clock:     ClockFunc(time.Now),
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		deadlines: deadline.New(),
		newID:     model.GenerateID,
		locks:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = newMetrics(prometheus.NewRegistry())
	}
	return s
}

func (s *Service) now() time.Time {
	return s.clock.Now()
}

// Now reports the service clock's current time.
func (s *Service) Now() time.Time {
	return s.now()
}

func (s *Service) scheduler() recurrence.Scheduler {
	return recurrence.Scheduler{Deadlines: s.deadlines, NewID: s.newID}
}

// reject records a failed mutation and passes err through.
func (s *Service) reject(op string, err error, attrs ...any) error {
	kind := model.KindOf(err)
	s.metrics.rejections.WithLabelValues(op, string(kind)).Inc()
	s.log.Debug("rejected", append([]any{"op", op, "kind", kind, "err", err}, attrs...)...)
	return err
}

// requireUser checks that id names a known user.
func (s *Service) requireUser(ctx context.Context, field, id string) (model.User, error) {
	if id == "" {
		return model.User{}, model.Invalid(field, "user is required")
	}
	u, err := s.identity.ResolveUser(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return model.User{}, model.Invalid(field, "unknown user %s", id)
	}
	return u, err
}

// EvaluateDeadlineStatus classifies now against a deadline spanning total,
// using the service's warning threshold.
func (s *Service) EvaluateDeadlineStatus(deadlineAt time.Time, total time.Duration, now time.Time) deadline.Evaluation {
	return s.deadlines.Evaluate(deadlineAt, total, now)
}

// Deadlines returns the calculator in use.
func (s *Service) Deadlines() deadline.Calculator {
	return s.deadlines
}
