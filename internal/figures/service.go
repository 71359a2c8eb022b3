// Package figures turns experiment store queries into render-ready figures.
// Each operation fetches through ephys.Store, aligns and normalizes with the
// aggregate package and returns a Figure value.
package figures

import (
	"context"
	"fmt"
	"time"

	"ephyscore/internal/config"
	"ephyscore/pkg/ephys"
)

// Logger is the structured logger used by the service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsRecorder observes the outcome and latency of each figure operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type serviceOptions struct {
	logger   Logger
	metrics  MetricsRecorder
	settings config.Settings
	now      func() time.Time
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		logger:   noopLogger{},
		metrics:  noopMetricsRecorder{},
		settings: config.Defaults(),
		now:      time.Now,
	}
}

// ServiceOption customizes a Service.
type ServiceOption func(*serviceOptions)

// WithLogger sets the service logger.
func WithLogger(l Logger) ServiceOption {
	return func(o *serviceOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsRecorder sets the recorder observing each operation.
func WithMetricsRecorder(m MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithSettings replaces the marker scale, fetch timeout and size overrides.
func WithSettings(s config.Settings) ServiceOption {
	return func(o *serviceOptions) {
		if s.MarkerScale <= 0 {
			s.MarkerScale = config.DefaultMarkerScale
		}
		o.settings = s
	}
}

// Service builds figures from a store.
type Service struct {
	store ephys.Store
	opts  serviceOptions
}

// NewService constructs a figure service backed by store.
func NewService(store ephys.Store, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{store: store, opts: o}
}

// Settings returns the effective settings.
func (s *Service) Settings() config.Settings { return s.opts.settings }

// run wraps one operation with logging and metrics.
func (s *Service) run(ctx context.Context, op string, build func(ctx context.Context) (Figure, error)) (Figure, error) {
	start := s.opts.now()
	fig, err := build(ctx)
	s.opts.metrics.Observe(ctx, op, err == nil, s.opts.now().Sub(start))
	if err != nil {
		s.opts.logger.Error("figure failed", "figure", op, "error", err)
		return Figure{}, fmt.Errorf("%s: %w", op, err)
	}
	fig.Name = op
	fig.MarkerScale = s.opts.settings.MarkerScale
	if w := s.opts.settings.FigureWidth; w > 0 {
		fig.Width = w
	}
	if h := s.opts.settings.FigureHeight; h > 0 {
		fig.Height = h
	}
	for _, note := range fig.Notes {
		s.opts.logger.Warn(note, "figure", op)
	}
	s.opts.logger.Debug("figure built", "figure", op, "panels", len(fig.Panels))
	return fig, nil
}

// fetch bounds a single store call by the configured timeout.
func fetch[T any](ctx context.Context, s *Service, call func(ctx context.Context) (T, error)) (T, error) {
	if d := s.opts.settings.FetchTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return call(ctx)
}

func (s *Service) units(ctx context.Context, filter ephys.UnitFilter) ([]ephys.UnitRecord, error) {
	return fetch(ctx, s, func(ctx context.Context) ([]ephys.UnitRecord, error) {
		return s.store.Units(ctx, filter)
	})
}

func (s *Service) psth(ctx context.Context, filter ephys.UnitFilter, condition string) ([]ephys.PSTHSeries, error) {
	return fetch(ctx, s, func(ctx context.Context) ([]ephys.PSTHSeries, error) {
		return s.store.PSTH(ctx, ephys.PSTHQuery{Units: filter, Condition: condition})
	})
}

func (s *Service) unitSelectivity(ctx context.Context, filter ephys.UnitFilter) ([]ephys.UnitSelectivity, error) {
	return fetch(ctx, s, func(ctx context.Context) ([]ephys.UnitSelectivity, error) {
		return s.store.UnitSelectivity(ctx, filter)
	})
}

func (s *Service) periodSelectivity(ctx context.Context, q ephys.SelectivityQuery) ([]ephys.PeriodSelectivity, error) {
	return fetch(ctx, s, func(ctx context.Context) ([]ephys.PeriodSelectivity, error) {
		return s.store.PeriodSelectivity(ctx, q)
	})
}

func (s *Service) conditionNames(ctx context.Context) ([]string, error) {
	return fetch(ctx, s, s.store.TrialConditionNames)
}

func (s *Service) condition(ctx context.Context, name string) (ephys.TrialCondition, error) {
	return fetch(ctx, s, func(ctx context.Context) (ephys.TrialCondition, error) {
		return s.store.TrialCondition(ctx, name)
	})
}

func (s *Service) photostimEvents(ctx context.Context, q ephys.PhotostimQuery) ([]ephys.PhotostimEvent, error) {
	return fetch(ctx, s, func(ctx context.Context) ([]ephys.PhotostimEvent, error) {
		return s.store.PhotostimEvents(ctx, q)
	})
}

func (s *Service) projection(ctx context.Context, group string) (ephys.Projection, error) {
	return fetch(ctx, s, func(ctx context.Context) (ephys.Projection, error) {
		return s.store.Projection(ctx, group)
	})
}

// periodStarts returns the start of sample, delay and response in task order.
func (s *Service) periodStarts(ctx context.Context) ([]float64, error) {
	periods, err := fetch(ctx, s, func(ctx context.Context) ([]ephys.PeriodBoundary, error) {
		return s.store.Periods(ctx, ephys.TaskPeriods...)
	})
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(periods))
	for i, p := range periods {
		out[i] = p.Start
	}
	return out, nil
}

// requireConditions fails with ErrNoData unless every named condition exists.
func (s *Service) requireConditions(ctx context.Context, names ...string) error {
	for _, name := range names {
		if _, err := s.condition(ctx, name); err != nil {
			return err
		}
	}
	return nil
}
