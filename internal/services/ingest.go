// Package services – Gateway
//
// Gateway is the ingestion path for camera detections. For each message it
// resolves the owning barrier, applies duplicate suppression, appends the
// row to the ledger and, when reactive dispatch is on, pulses the barrier
// for that exact row.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/barrier-gateway/internal/domain"
)

// IngestOutcome classifies an accepted detection.
type IngestOutcome int

const (
	// Saved means the detection was appended to the ledger.
	Saved IngestOutcome = iota
	// Suppressed means the detection repeated a recent one and was dropped.
	Suppressed
)

func (o IngestOutcome) String() string {
	if o == Suppressed {
		return "suppressed"
	}
	return "saved"
}

// IngestResult reports what happened to one detection.
type IngestResult struct {
	Outcome IngestOutcome
	Barrier string
	Txn     *domain.Transaction
	// Pulsed is true when reactive dispatch actuated the barrier.
	Pulsed bool
}

// BatchResult aggregates IngestBatch outcomes.
type BatchResult struct {
	Saved      int
	Suppressed int
	Failed     int
	Errors     []error
}

// Gateway holds its collaborators explicitly; it is safe for concurrent use
// across requests.
type Gateway struct {
	fleet      *Fleet
	ledger     Ledger
	suppressor *DuplicateSuppressor
	reactive   bool

	now func() time.Time
	log zerolog.Logger
}

// NewGateway constructs a Gateway. A nil suppressor disables suppression.
func NewGateway(fleet *Fleet, ledger Ledger, suppressor *DuplicateSuppressor, reactive bool) *Gateway {
	return &Gateway{
		fleet:      fleet,
		ledger:     ledger,
		suppressor: suppressor,
		reactive:   reactive,
		now:        time.Now,
		log:        log.With().Str("component", "ingest").Logger(),
	}
}

// Ingest processes one normalized detection.
func (g *Gateway) Ingest(ctx context.Context, msg CameraMessage) (IngestResult, error) {
	ctx, span := otel.Tracer("services/ingest").Start(ctx, "Gateway.Ingest")
	defer span.End()

	if !msg.HasIdentity() {
		ingestTotal.WithLabelValues("rejected").Inc()
		return IngestResult{}, ErrNoIdentity
	}

	b := g.resolve(msg)
	if b == nil {
		g.log.Error().Str("camera", msg.CameraSerial).Str("plate", msg.Vrm).Msg("no barrier matches detection and none is enabled")
		ingestTotal.WithLabelValues("rejected").Inc()
		return IngestResult{}, ErrNoBarrier
	}
	dir := msg.ResolveDirection(b.DefaultDirection())
	span.SetAttributes(
		attribute.String("barrier.name", b.Name()),
		attribute.Int("lane.id", b.LaneID()),
		attribute.String("direction", dir.String()),
	)

	res := IngestResult{Barrier: b.Name()}
	if g.suppressor != nil && g.suppressor.IsDuplicate(msg.Vrm, b.LaneID(), dir) {
		g.log.Info().Str("plate", msg.Vrm).Int("lane", b.LaneID()).Str("direction", dir.String()).Msg("duplicate detection suppressed")
		ingestTotal.WithLabelValues("suppressed").Inc()
		res.Outcome = Suppressed
		return res, nil
	}

	row := msg.ToTransaction(g.now(), b.LaneID(), dir)
	saved, err := g.ledger.Append(ctx, &row)
	if err != nil {
		// A retry of this detection must not be mistaken for a repeat.
		if g.suppressor != nil {
			g.suppressor.Forget(msg.Vrm, b.LaneID(), dir)
		}
		ingestTotal.WithLabelValues("failed").Inc()
		return IngestResult{}, fmt.Errorf("%w: %v", ErrNotStored, err)
	}
	ingestTotal.WithLabelValues("saved").Inc()
	res.Outcome = Saved
	res.Txn = saved
	g.log.Info().Uint("txn", saved.ID).Str("plate", saved.Plate).Str("barrier", b.Name()).Msg("detection saved")

	if g.reactive {
		// The gate pulse outlives the camera's request; the actuator's
		// per-attempt timeout bounds it.
		res.Pulsed = b.SendPulse(context.WithoutCancel(ctx), PulseRequest{Source: SourceCamera, Txn: saved})
	}
	return res, nil
}

// resolve matches by camera identity, then by an explicit lane, then falls
// back to the first enabled barrier.
func (g *Gateway) resolve(msg CameraMessage) *Barrier {
	b, fallback := g.fleet.Resolve(msg.CameraSerial)
	if fallback && msg.LaneID > 0 {
		if byLane := g.fleet.ByLane(msg.LaneID); byLane != nil {
			return byLane
		}
	}
	return b
}

// IngestBatch processes msgs in order. Failing entries are skipped and
// counted; they never stop the batch.
func (g *Gateway) IngestBatch(ctx context.Context, msgs []CameraMessage) BatchResult {
	var out BatchResult
	for i, m := range msgs {
		res, err := g.Ingest(ctx, m)
		if err != nil {
			g.log.Warn().Err(err).Int("index", i).Msg("batch entry skipped")
			out.Failed++
			out.Errors = append(out.Errors, err)
			continue
		}
		switch res.Outcome {
		case Suppressed:
			out.Suppressed++
		default:
			out.Saved++
		}
	}
	return out
}
