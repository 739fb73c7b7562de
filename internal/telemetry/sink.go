// Package telemetry is the pipeline's attempt/outcome event sink: an
// in-process, ambient shape over the same slog logger every other
// component uses.
package telemetry

import (
	"log/slog"
)

// Sink receives structured pipeline events. The default
// implementation logs through slog; a metrics-backed implementation
// can wrap or replace it.
type Sink interface {
	OpportunityFound(pair string, profitLamports, tipLamports uint64, aggregator string)
	AttemptStarted(lander string, endpoint string, variantID uint32, pass int)
	AttemptSucceeded(lander string, endpoint string, variantID uint32, signature string)
	AttemptFailed(lander string, endpoint string, variantID uint32, err error)
	ErrorKind(kind string, op string, err error)
}

// SlogSink is the default Sink, logging component-tagged events.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger.With("component", "telemetry")}
}

func (s *SlogSink) OpportunityFound(pair string, profitLamports, tipLamports uint64, aggregator string) {
	s.logger.Info("opportunity found",
		"pair", pair,
		"profit_lamports", profitLamports,
		"tip_lamports", tipLamports,
		"aggregator", aggregator,
	)
}

func (s *SlogSink) AttemptStarted(lander, endpoint string, variantID uint32, pass int) {
	s.logger.Info("lander attempt started",
		"lander", lander,
		"endpoint", endpoint,
		"variant_id", variantID,
		"pass", pass,
	)
}

func (s *SlogSink) AttemptSucceeded(lander, endpoint string, variantID uint32, signature string) {
	s.logger.Info("lander attempt succeeded",
		"lander", lander,
		"endpoint", endpoint,
		"variant_id", variantID,
		"signature", signature,
	)
}

func (s *SlogSink) AttemptFailed(lander, endpoint string, variantID uint32, err error) {
	s.logger.Warn("lander attempt failed",
		"lander", lander,
		"endpoint", endpoint,
		"variant_id", variantID,
		"error", err,
	)
}

func (s *SlogSink) ErrorKind(kind, op string, err error) {
	s.logger.Error("pipeline error",
		"kind", kind,
		"op", op,
		"error", err,
	)
}

// Noop discards every event; used by tests that don't care about
// telemetry output.
type Noop struct{}

func (Noop) OpportunityFound(string, uint64, uint64, string)       {}
func (Noop) AttemptStarted(string, string, uint32, int)            {}
func (Noop) AttemptSucceeded(string, string, uint32, string)       {}
func (Noop) AttemptFailed(string, string, uint32, error)           {}
func (Noop) ErrorKind(string, string, error)                       {}
