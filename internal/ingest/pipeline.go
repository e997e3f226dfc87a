package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/XavierBriggs/fortuna/services/tip-relay/internal/extractor"
	"github.com/XavierBriggs/fortuna/services/tip-relay/internal/ledger"
	"github.com/XavierBriggs/fortuna/services/tip-relay/internal/normalizer"
	"github.com/XavierBriggs/fortuna/services/tip-relay/pkg/models"
	"go.uber.org/zap"
)

const (
	// ReasonLedgerUnavailable is reported when the dedup backend cannot answer
	ReasonLedgerUnavailable = "LedgerUnavailable"

	// ReasonEncodeFailed is reported when a built command has no wire form
	ReasonEncodeFailed = "EncodeFailed"
)

// Outbox receives serialized commands for delivery
type Outbox interface {
	Enqueue(payload []byte)
}

// Recorder keeps an audit trail of outcomes
type Recorder interface {
	Record(ctx context.Context, outcome models.Outcome) error
}

// Pipeline turns feed messages into relayed commands:
// extract → normalize → dedup → enqueue
type Pipeline struct {
	normalizer *normalizer.Normalizer
	ledger     ledger.Ledger
	outbox     Outbox
	recorder   Recorder
	logger     *zap.Logger

	// Metrics
	delivered  int64
	suppressed int64
	rejected   int64
	mu         sync.Mutex
}

// NewPipeline creates a pipeline. recorder may be nil.
func NewPipeline(n *normalizer.Normalizer, l ledger.Ledger, outbox Outbox, recorder Recorder, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		normalizer: n,
		ledger:     l,
		outbox:     outbox,
		recorder:   recorder,
		logger:     logger.Named("ingest"),
	}
}

// OnFeedMessage runs one message through the pipeline. Failed messages are
// dropped: the same text would fail the same way on retry.
func (p *Pipeline) OnFeedMessage(ctx context.Context, msg models.RawMessage) models.Outcome {
	log := p.logger.With(zap.String("source", msg.Source), zap.Int64("message_id", msg.ID))
	log.Info("processing feed message", zap.String("text", msg.Text))

	outcome := models.Outcome{
		MessageID: msg.ID,
		Source:    msg.Source,
		At:        time.Now(),
	}

	cmd, err := p.build(msg.Text)
	if err != nil {
		outcome.Status = models.OutcomeRejected
		outcome.Reason = rejectReason(err)
		log.Warn("message rejected",
			zap.String("reason", outcome.Reason),
			zap.Error(err),
			zap.String("text", msg.Text))
		return p.finish(ctx, outcome)
	}

	match := cmd.Bet.Match
	outcome.Match = &match

	// Encode before admitting: a match only enters the ledger with a sendable command
	payload, err := cmd.Encode()
	if err != nil {
		outcome.Status = models.OutcomeRejected
		outcome.Reason = ReasonEncodeFailed
		log.Error("failed to encode command", zap.Stringer("match", match), zap.Error(err))
		return p.finish(ctx, outcome)
	}

	admitted, err := p.ledger.Admit(ctx, match)
	if err != nil {
		outcome.Status = models.OutcomeRejected
		outcome.Reason = ReasonLedgerUnavailable
		log.Error("dedup check failed, dropping message", zap.Stringer("match", match), zap.Error(err))
		return p.finish(ctx, outcome)
	}
	if !admitted {
		outcome.Status = models.OutcomeSuppressed
		log.Info("ignoring, bet already received", zap.Stringer("match", match))
		return p.finish(ctx, outcome)
	}

	p.outbox.Enqueue(payload)

	outcome.Status = models.OutcomeDelivered
	outcome.CommandID = cmd.ID
	log.Info("new bet queued for relay",
		zap.Stringer("match", match),
		zap.String("command_id", cmd.ID),
		zap.String("command", pretty(payload)))
	return p.finish(ctx, outcome)
}

// build runs extraction and normalization
func (p *Pipeline) build(text string) (*models.BetCommand, error) {
	fields, err := extractor.Extract(text)
	if err != nil {
		return nil, err
	}
	return p.normalizer.Normalize(fields)
}

// finish counts and records an outcome
func (p *Pipeline) finish(ctx context.Context, outcome models.Outcome) models.Outcome {
	p.mu.Lock()
	switch outcome.Status {
	case models.OutcomeDelivered:
		p.delivered++
	case models.OutcomeSuppressed:
		p.suppressed++
	case models.OutcomeRejected:
		p.rejected++
	}
	p.mu.Unlock()

	if p.recorder != nil {
		if err := p.recorder.Record(ctx, outcome); err != nil {
			p.logger.Warn("failed to record outcome", zap.Int64("message_id", outcome.MessageID), zap.Error(err))
		}
	}
	return outcome
}

// GetMetrics returns pipeline counters
func (p *Pipeline) GetMetrics() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	return map[string]interface{}{
		"delivered":  p.delivered,
		"suppressed": p.suppressed,
		"rejected":   p.rejected,
	}
}

// LedgerSize returns the number of matches admitted so far
func (p *Pipeline) LedgerSize(ctx context.Context) (int, error) {
	return p.ledger.Len(ctx)
}

// rejectReason maps a pipeline error to the reason reported in the outcome
func rejectReason(err error) string {
	var perr *extractor.ParseError
	if errors.As(err, &perr) {
		return "ParseError:" + string(perr.Stage)
	}
	var nerr *normalizer.NormalizationError
	if errors.As(err, &nerr) {
		return string(nerr.Reason)
	}
	return err.Error()
}

// pretty indents a JSON document, returning it unchanged if it is not JSON
func pretty(payload []byte) string {
	var v interface{}
	if err := json.Unmarshal(payload, &v); err != nil {
		return string(payload)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(payload)
	}
	return string(out)
}
