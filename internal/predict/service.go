// Package predict turns a window of daily health records into an insomnia
// risk score.
package predict

import (
	"context"
	"fmt"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kartoza/somnia/internal/history"
	"github.com/kartoza/somnia/internal/models"
)

// SuccessMessage accompanies every computed risk.
const SuccessMessage = "Insomnia risk computed successfully."

const tracerName = "github.com/kartoza/somnia/internal/predict"

// Recorder persists computed risks.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) (history.Entry, error)
}

// Service runs the inference pipeline against a loaded Bundle.
type Service struct {
	name     string
	bundle   *Bundle
	logger   *zap.Logger
	recorder Recorder
	tracer   trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for recording failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithRecorder stores every computed risk in r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// NewService creates a service named name. The bundle must already be
// validated.
func NewService(name string, b *Bundle, opts ...Option) *Service {
	s := &Service{
		name:   name,
		bundle: b,
		logger: zap.NewNop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Predict computes the risk for personID from exactly SeqLen days, oldest
// first. A wrong day count returns *SequenceLengthError.
func (s *Service) Predict(ctx context.Context, personID string, days []models.DayRecord) (*models.PredictResponse, error) {
	ctx, span := s.tracer.Start(ctx, "predict", trace.WithAttributes(
		attribute.Int("seq_len", s.bundle.Schema.SeqLen()),
		attribute.Int("n_features", s.bundle.Schema.Len()),
	))
	defer span.End()

	risk, err := s.Score(days)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if s.recorder != nil {
		_, err := s.recorder.Record(ctx, history.Entry{
			PersonID:   personID,
			Risk:       risk,
			WindowDays: s.bundle.Schema.SeqLen(),
		})
		if err != nil {
			s.logger.Warn("failed to record prediction", zap.Error(err))
		}
	}

	return &models.PredictResponse{
		PersonID:     personID,
		InsomniaRisk: risk,
		Message:      SuccessMessage,
	}, nil
}

// Score runs assemble, normalize and forward and returns the risk in [0,1].
func (s *Service) Score(days []models.DayRecord) (float64, error) {
	x, err := Assemble(s.bundle.Schema, days)
	if err != nil {
		return 0, err
	}
	scaled, err := s.bundle.Scaler.Transform(x)
	if err != nil {
		return 0, fmt.Errorf("normalize: %w", err)
	}
	logit, err := s.bundle.Model.Forward(scaled)
	if err != nil {
		return 0, fmt.Errorf("inference: %w", err)
	}
	return riskFromLogit(logit), nil
}

// riskFromLogit applies the sigmoid and clamps to [0,1]. A NaN logit maps to 0.
func riskFromLogit(z float64) float64 {
	if math.IsNaN(z) {
		return 0
	}
	r := 1 / (1 + math.Exp(-z))
	return math.Max(0, math.Min(1, r))
}

// Info describes the loaded service.
type Info struct {
	Service         string                 `json:"service" yaml:"service"`
	SeqLen          int                    `json:"seq_len" yaml:"seq_len"`
	NFeatures       int                    `json:"n_features" yaml:"n_features"`
	FeatureNames    []string               `json:"feature_names" yaml:"feature_names"`
	ScalerKind      string                 `json:"scaler_kind" yaml:"scaler_kind"`
	Model           map[string]interface{} `json:"model" yaml:"model"`
	ArtifactVersion string                 `json:"artifact_version,omitempty" yaml:"artifact_version,omitempty"`
	HistoryEnabled  bool                   `json:"history_enabled" yaml:"history_enabled"`
}

// Info reports the service name, sequence shape and model dimensions.
func (s *Service) Info() Info {
	info := Info{
		Service:        s.name,
		SeqLen:         s.bundle.Schema.SeqLen(),
		NFeatures:      s.bundle.Schema.Len(),
		FeatureNames:   s.bundle.Schema.Names(),
		ScalerKind:     string(s.bundle.Scaler.Kind()),
		Model:          s.bundle.Model.Info(),
		HistoryEnabled: s.recorder != nil,
	}
	if m := s.bundle.Manifest; m != nil {
		info.ArtifactVersion = m.Version
	}
	return info
}
