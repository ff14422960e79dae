/*
Package orchestrator drives one extraction run: the primary source is tried a bounded number of
times, then the backup source once, and the first snapshot the validator accepts wins. Every step
is a method returning the next State, so each path can be exercised on its own.
*/
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shanehull/bullionscraper/internal/logger"
	"github.com/shanehull/bullionscraper/internal/source"
	"github.com/shanehull/bullionscraper/internal/types"
)

// ErrRejected means no source produced an accepted snapshot.
var ErrRejected = errors.New("no source produced an accepted snapshot")

// Resolver reads one price out of a located field. Implemented by extract.Extractor.
type Resolver interface {
	Resolve(ctx context.Context, f types.Field) types.Price
}

type Validator interface {
	Validate(s types.Snapshot) types.Verdict
}

type Metrics interface {
	RecordAttempt(source, result string)
	RecordFields(source, outcome string, n int)
	RecordCoverage(source string, coverage float64)
	RecordLatency(op string, seconds float64)
}

type Config struct {
	Instruments     []types.InstrumentKey
	PrimaryAttempts int
	RetryPause      time.Duration
	Workers         int
	FieldTimeout    time.Duration
}

// Attempt records one pass over a source.
type Attempt struct {
	Source  string
	Number  int
	Verdict types.Verdict
	Err     error
	Elapsed time.Duration
}

// Outcome is the result of Run. Snapshot is only set when State is Accepted.
type Outcome struct {
	State    State
	Snapshot types.Snapshot
	Attempts []Attempt
}

// Source returns the name of the source whose snapshot was accepted.
func (o Outcome) Source() string {
	if o.State != Accepted {
		return ""
	}
	return o.Snapshot.Source()
}

type Option func(*Machine)

func WithMetrics(metrics Metrics) Option {
	return func(m *Machine) { m.metrics = metrics }
}

// WithClock replaces time.Now for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

type Machine struct {
	cfg       Config
	primary   source.Source
	backup    source.Source
	resolver  Resolver
	validator Validator
	log       *logger.Logger
	metrics   Metrics
	now       func() time.Time

	attempt int
	current types.Snapshot
	outcome Outcome
}

// New creates a machine. backup may be nil, in which case exhausting the primary rejects the run.
func New(cfg Config, primary, backup source.Source, resolver Resolver, validator Validator, log *logger.Logger, opts ...Option) *Machine {
	if cfg.PrimaryAttempts < 1 {
		cfg.PrimaryAttempts = 1
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.FieldTimeout <= 0 {
		cfg.FieldTimeout = 90 * time.Second
	}

	m := &Machine{
		cfg:       cfg,
		primary:   primary,
		backup:    backup,
		resolver:  resolver,
		validator: validator,
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logger.Nop()
	}
	return m
}

// Run drives the machine from TryPrimary to a terminal state. It returns ErrRejected when both
// sources were rejected and the context error when cancelled.
func (m *Machine) Run(ctx context.Context) (Outcome, error) {
	m.attempt = 0
	m.current = types.Snapshot{}
	m.outcome = Outcome{}

	start := time.Now()
	defer func() {
		m.recordLatency("run", time.Since(start))
	}()

	state := TryPrimary
	for !state.Terminal() {
		if err := ctx.Err(); err != nil {
			m.outcome.State = Rejected
			return m.outcome, fmt.Errorf("extraction cancelled in %s: %w", state, err)
		}

		next := m.step(ctx, state)
		if next != state {
			m.log.Info("state transition", logger.String("from", state.String()), logger.String("to", next.String()))
		}
		state = next
	}

	m.outcome.State = state
	if state == Rejected {
		if err := ctx.Err(); err != nil {
			return m.outcome, fmt.Errorf("extraction cancelled: %w", err)
		}
		return m.outcome, ErrRejected
	}
	m.outcome.Snapshot = m.current
	return m.outcome, nil
}

func (m *Machine) step(ctx context.Context, s State) State {
	switch s {
	case TryPrimary:
		return m.TryPrimary(ctx)
	case ValidatePrimary:
		return m.ValidatePrimary()
	case RetryPrimary:
		return m.RetryPrimary(ctx)
	case TryBackup:
		return m.TryBackup(ctx)
	case ValidateBackup:
		return m.ValidateBackup()
	default:
		return Rejected
	}
}

// TryPrimary builds one snapshot from the primary source. A fetch or structural failure counts
// as a rejected attempt.
func (m *Machine) TryPrimary(ctx context.Context) State {
	m.attempt++
	if m.tryFrom(ctx, m.primary, m.attempt) {
		return ValidatePrimary
	}
	return m.afterPrimaryRejection()
}

func (m *Machine) ValidatePrimary() State {
	if m.validateCurrent(m.primary.Name()) {
		return Accepted
	}
	return m.afterPrimaryRejection()
}

// RetryPrimary pauses before the next primary attempt. The pause ends early on cancellation, which
// Run reports.
func (m *Machine) RetryPrimary(ctx context.Context) State {
	if m.cfg.RetryPause <= 0 {
		return TryPrimary
	}

	timer := time.NewTimer(m.cfg.RetryPause)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Rejected
	case <-timer.C:
		return TryPrimary
	}
}

// TryBackup builds the single backup snapshot.
func (m *Machine) TryBackup(ctx context.Context) State {
	if m.backup == nil {
		m.log.Warn("primary exhausted and no backup source configured")
		return Rejected
	}
	if m.tryFrom(ctx, m.backup, 1) {
		return ValidateBackup
	}
	return Rejected
}

func (m *Machine) ValidateBackup() State {
	if m.validateCurrent(m.backup.Name()) {
		return Accepted
	}
	return Rejected
}

func (m *Machine) afterPrimaryRejection() State {
	if m.attempt < m.cfg.PrimaryAttempts {
		return RetryPrimary
	}
	return TryBackup
}

// tryFrom builds a snapshot from src into m.current. On failure the attempt is recorded as
// rejected and false is returned.
func (m *Machine) tryFrom(ctx context.Context, src source.Source, number int) bool {
	m.log.Info("extraction attempt", logger.String("source", src.Name()), logger.Int("attempt", number))

	start := time.Now()
	snap, err := m.buildSnapshot(ctx, src)
	elapsed := time.Since(start)
	m.recordLatency("attempt", elapsed)

	if err != nil {
		m.log.Warn("extraction attempt failed", logger.String("source", src.Name()), logger.Int("attempt", number), logger.Error(err))
		m.outcome.Attempts = append(m.outcome.Attempts, Attempt{Source: src.Name(), Number: number, Err: err, Elapsed: elapsed})
		if m.metrics != nil {
			m.metrics.RecordAttempt(src.Name(), "error")
		}
		m.current = types.Snapshot{}
		return false
	}

	m.current = snap
	m.outcome.Attempts = append(m.outcome.Attempts, Attempt{Source: src.Name(), Number: number, Elapsed: elapsed})
	return true
}

// validateCurrent runs the validator on m.current and completes the last attempt record.
func (m *Machine) validateCurrent(name string) bool {
	v := m.validator.Validate(m.current)
	if n := len(m.outcome.Attempts); n > 0 {
		m.outcome.Attempts[n-1].Verdict = v
	}

	fields := []logger.Field{
		logger.String("source", name),
		logger.Bool("accepted", v.Accepted),
		logger.Int("valid", v.ValidFields),
		logger.Int("total", v.TotalFields),
		logger.Float("coverage", v.Coverage),
	}
	if len(v.Suspicious) > 0 {
		suspicious := make([]string, len(v.Suspicious))
		for i, k := range v.Suspicious {
			suspicious[i] = fmt.Sprintf("%s=%s", k, m.current.Price(k))
		}
		fields = append(fields, logger.Strings("suspicious", suspicious))
	}
	if v.Reason != "" {
		fields = append(fields, logger.String("reason", v.Reason))
	}
	m.log.Info("snapshot validated", fields...)

	if m.metrics != nil {
		result := "rejected"
		if v.Accepted {
			result = "accepted"
		}
		m.metrics.RecordAttempt(name, result)
		m.metrics.RecordCoverage(name, v.Coverage)
		m.metrics.RecordFields(name, "valid", v.ValidFields)
		m.metrics.RecordFields(name, "suspicious", len(v.Suspicious))
		m.metrics.RecordFields(name, "absent", v.TotalFields-v.ValidFields-len(v.Suspicious))
	}
	return v.Accepted
}

func (m *Machine) recordLatency(op string, d time.Duration) {
	if m.metrics != nil {
		m.metrics.RecordLatency(op, d.Seconds())
	}
}
