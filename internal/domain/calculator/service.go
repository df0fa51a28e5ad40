package calculator

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medcalc/medcalc/internal/platform/apperr"
)

// Recorder receives calculation and reload observations.
type Recorder interface {
	ObserveCalculation(calculator, outcome string, d time.Duration)
	ObserveReload(outcome string, calculators int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCalculation(string, string, time.Duration) {}
func (nopRecorder) ObserveReload(string, int)                        {}

// Service is the calculation surface used by transports and the CLI.
type Service struct {
	store   *Store
	engine  *Engine
	audit   AuditRepository
	metrics Recorder
	logger  zerolog.Logger
	now     func() time.Time
}

// NewService wires a store and engine. audit may be nil.
func NewService(store *Store, engine *Engine, audit AuditRepository, logger zerolog.Logger) *Service {
	return &Service{
		store:   store,
		engine:  engine,
		audit:   audit,
		metrics: nopRecorder{},
		logger:  logger,
		now:     time.Now,
	}
}

// SetRecorder attaches a metrics recorder.
func (s *Service) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	s.metrics = r
}

// ListFilter narrows GetCalculators. Category matches case-insensitively;
// Search is a case-insensitive substring of the name or description.
type ListFilter struct {
	Category string
	Search   string
}

// GetCalculators lists calculators ordered by id.
func (s *Service) GetCalculators(f ListFilter) []Summary {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := []Summary{}
	for _, sc := range s.store.List() {
		if f.Category != "" && !strings.EqualFold(sc.Category, f.Category) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(sc.Name), search) &&
			!strings.Contains(strings.ToLower(sc.Description), search) {
			continue
		}
		out = append(out, Summary{
			ID:          sc.ID,
			Name:        sc.Name,
			Description: sc.Description,
			Category:    sc.Category,
			Modes:       sc.ModeNames(),
		})
	}
	return out
}

// GetCalculatorSchema returns the schema for id.
func (s *Service) GetCalculatorSchema(id string) (*Schema, error) {
	sc, ok := s.store.Get(id)
	if !ok {
		return nil, apperr.New(apperr.UnknownCalculator, "Calculator not found: %s", id)
	}
	return sc, nil
}

// Compute evaluates a calculator. The schema is resolved once so a reload
// during the calculation does not affect it.
func (s *Service) Compute(ctx context.Context, id string, inputs map[string]any, mode string) (*Calculation, error) {
	sc, err := s.GetCalculatorSchema(id)
	if err != nil {
		return nil, err
	}
	if inputs == nil {
		inputs = map[string]any{}
	}

	start := s.now()
	results, err := s.engine.Compute(ctx, sc, inputs, mode)
	elapsed := s.now().Sub(start)

	reported := mode
	if reported == "" {
		reported = DefaultMode
	}
	s.record(ctx, id, reported, elapsed, err)
	if err != nil {
		return nil, err
	}
	return &Calculation{
		Success:      true,
		Results:      results,
		CalculatorID: id,
		Mode:         reported,
		Timestamp:    s.now().UTC(),
	}, nil
}

func (s *Service) record(ctx context.Context, id, mode string, elapsed time.Duration, err error) {
	outcome := StatusSuccess
	rec := &Record{
		ID:           uuid.New(),
		CalculatorID: id,
		Mode:         mode,
		Status:       StatusSuccess,
		DurationMS:   float64(elapsed.Microseconds()) / 1000,
		CreatedAt:    s.now().UTC(),
	}
	if err != nil {
		kind := apperr.KindOf(err)
		outcome = strings.ToLower(string(kind))
		rec.Status = StatusFailed
		rec.ErrorKind = string(kind)
		s.logger.Warn().Err(err).Str("calculator", id).Str("mode", mode).Msg("calculation failed")
	}
	s.metrics.ObserveCalculation(id, outcome, elapsed)

	if s.audit == nil {
		return
	}
	if aerr := s.audit.Create(ctx, rec); aerr != nil {
		s.logger.Error().Err(aerr).Str("calculator", id).Msg("failed to record calculation")
	}
}

// ReloadSchemas re-reads the schema repository. The previous schemas stay
// active when the reload fails.
func (s *Service) ReloadSchemas() (int, error) {
	n, err := s.store.Reload()
	if err != nil {
		s.metrics.ObserveReload("failure", n)
		return n, err
	}
	s.metrics.ObserveReload("success", n)
	return n, nil
}

// History returns recorded calculations for a calculator, newest first.
func (s *Service) History(ctx context.Context, id string, limit, offset int) ([]*Record, int, error) {
	if s.audit == nil {
		return []*Record{}, 0, nil
	}
	return s.audit.ListByCalculator(ctx, id, limit, offset)
}
