// Package sweep periodically delivers due reminders and reports items whose
// deadline is close or already missed.
package sweep

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/baiirun/workdesk/internal/deadline"
	"github.com/baiirun/workdesk/internal/model"
	"github.com/baiirun/workdesk/internal/service"
)

// NoticeKind says why a notice was raised.
type NoticeKind string

const (
	NoticeReminder NoticeKind = "reminder"
	NoticeWarning  NoticeKind = "deadline_warning"
	NoticeBreach   NoticeKind = "deadline_breached"
)

// Notice is one thing a person should hear about.
type Notice struct {
	Kind NoticeKind
	Item *model.WorkItem
	// Deadline is set for warning and breach notices.
	Deadline *deadline.Evaluation
	At       time.Time
}

// Notifier delivers notices. A failed reminder is retried on the next sweep.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice) error

func (f NotifierFunc) Notify(ctx context.Context, n Notice) error { return f(ctx, n) }

// LogNotifier writes notices to a structured log.
type LogNotifier struct {
	Log *slog.Logger
}

func (l LogNotifier) Notify(_ context.Context, n Notice) error {
	attrs := []any{"kind", n.Kind, "item", n.Item.ID, "title", n.Item.Title, "priority", n.Item.Priority}
	if n.Item.AssigneeID != nil {
		attrs = append(attrs, "assignee", *n.Item.AssigneeID)
	}
	if n.Deadline != nil {
		attrs = append(attrs, "deadline", n.Deadline.Deadline, "remaining", n.Deadline.Remaining)
	}
	level := slog.LevelInfo
	if n.Kind == NoticeBreach {
		level = slog.LevelWarn
	}
	l.Log.Log(context.Background(), level, "notice", attrs...)
	return nil
}

// StatusCounter reports how many items sit in each status.
type StatusCounter interface {
	StatusCounts(ctx context.Context) (map[model.Status]int, error)
}

// Report summarizes one sweep.
type Report struct {
	RemindersSent   int      `json:"reminders_sent"`
	RemindersFailed int      `json:"reminders_failed"`
	Warning         []string `json:"warning"`
	Breached        []string `json:"breached"`
}

// maxInFlight bounds concurrent reminder deliveries.
const maxInFlight = 4

type Sweeper struct {
	svc     *service.Service
	counts  StatusCounter
	notify  Notifier
	log     *slog.Logger
	metrics *metrics

	mu sync.Mutex
	// announced remembers the last deadline state reported per item so a
	// warning or breach is raised once, not on every sweep.
	announced map[string]deadline.State
}

type Option func(*Sweeper)

func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.log = l }
}

func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Sweeper) { s.metrics = newMetrics(reg) }
}

func New(svc *service.Service, counts StatusCounter, notify Notifier, opts ...Option) *Sweeper {
	s := &Sweeper{
		svc:       svc,
		counts:    counts,
		notify:    notify,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		announced: make(map[string]deadline.State),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = newMetrics(prometheus.NewRegistry())
	}
	return s
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	var report Report

	sent, failed, err := s.deliverReminders(ctx)
	if err != nil {
		return report, err
	}
	report.RemindersSent, report.RemindersFailed = sent, failed

	if report.Warning, report.Breached, err = s.checkDeadlines(ctx); err != nil {
		return report, err
	}

	if s.counts != nil {
		counts, err := s.counts.StatusCounts(ctx)
		if err != nil {
			return report, err
		}
		for _, st := range model.Statuses() {
			s.metrics.items.WithLabelValues(string(st)).Set(float64(counts[st]))
		}
	}

	s.metrics.runs.Inc()
	s.metrics.lastRun.SetToCurrentTime()
	s.log.Debug("sweep finished", "reminders", sent, "failed", failed,
		"warning", len(report.Warning), "breached", len(report.Breached))
	return report, nil
}

func (s *Sweeper) deliverReminders(ctx context.Context) (sent, failed int, err error) {
	due, err := s.svc.DueReminders(ctx)
	if err != nil {
		return 0, 0, err
	}

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxInFlight)
	for _, item := range due {
		g.Go(func() error {
			n := Notice{Kind: NoticeReminder, Item: item, At: s.svc.Now()}
			if err := s.notify.Notify(gCtx, n); err != nil {
				// Left unsent; the next sweep retries it.
				s.log.Warn("reminder delivery failed", "item", item.ID, "err", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			if err := s.svc.MarkReminderSent(gCtx, item.ID); err != nil {
				if errors.Is(err, model.ErrNotFound) {
					return nil
				}
				return err
			}
			s.metrics.reminders.Inc()
			mu.Lock()
			sent++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sent, failed, err
	}
	return sent, failed, nil
}

func (s *Sweeper) checkDeadlines(ctx context.Context) (warning, breached []string, err error) {
	items, err := s.svc.ListItems(ctx, service.ListFilter{})
	if err != nil {
		return nil, nil, err
	}

	calc := s.svc.Deadlines()
	now := s.svc.Now()
	live := make(map[string]bool, len(items))

	for _, item := range items {
		ev, ok := calc.EvaluateItem(item, now)
		if !ok {
			continue
		}
		live[item.ID] = true

		var kind NoticeKind
		switch ev.State {
		case deadline.StateWarning:
			warning = append(warning, item.ID)
			kind = NoticeWarning
		case deadline.StateBreached:
			breached = append(breached, item.ID)
			kind = NoticeBreach
		}
		if kind == "" || !s.markAnnounced(item.ID, ev.State) {
			continue
		}
		if err := s.notify.Notify(ctx, Notice{Kind: kind, Item: item, Deadline: &ev, At: now}); err != nil {
			s.log.Warn("deadline notice failed", "item", item.ID, "state", ev.State, "err", err)
			s.forget(item.ID)
		}
	}
	s.prune(live)

	s.metrics.deadlines.WithLabelValues(string(deadline.StateWarning)).Set(float64(len(warning)))
	s.metrics.deadlines.WithLabelValues(string(deadline.StateBreached)).Set(float64(len(breached)))
	return warning, breached, nil
}

// markAnnounced records state for id and reports whether it changed.
func (s *Sweeper) markAnnounced(id string, state deadline.State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.announced[id] == state {
		return false
	}
	s.announced[id] = state
	return true
}

func (s *Sweeper) forget(id string) {
	s.mu.Lock()
	delete(s.announced, id)
	s.mu.Unlock()
}

// prune drops finished and deleted items.
func (s *Sweeper) prune(live map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.announced {
		if !live[id] {
			delete(s.announced, id)
		}
	}
}

// Run sweeps immediately and then every interval until ctx is cancelled.
// A failed sweep is logged and does not stop the loop.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("sweeper started", "interval", interval)
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Error("sweep failed", "err", err)
		}
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}
