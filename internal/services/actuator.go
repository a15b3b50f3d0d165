// Package services – HTTPActuator
//
// HTTPActuator talks to barrier controllers: Pulse triggers the gate with an
// empty POST, Probe checks liveness with a GET. Neither returns an error;
// transient failures are retried (Pulse only), logged, and reported as a
// negative result.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/barrier-gateway/internal/domain"
)

// HTTPActuator is stateless apart from its client and is safe for concurrent use.
type HTTPActuator struct {
	Client *http.Client

	// InitialInterval and MaxInterval shape the exponential retry backoff.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	log zerolog.Logger
}

// NewHTTPActuator returns an actuator whose every attempt is bounded by timeout.
func NewHTTPActuator(timeout time.Duration) *HTTPActuator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPActuator{
		Client:          &http.Client{Timeout: timeout},
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		log:             log.With().Str("component", "actuator").Logger(),
	}
}

var errTransient = errors.New("transient controller failure")

// Pulse POSTs an empty body to endpoint. Network errors and 5xx responses are
// retried up to retries extra times; any 2xx ends with true, any other status
// stops immediately with false.
func (a *HTTPActuator) Pulse(ctx context.Context, endpoint, name string, retries int) bool {
	ctx, span := otel.Tracer("services/actuator").Start(ctx, "HTTPActuator.Pulse")
	defer span.End()
	span.SetAttributes(attribute.String("barrier.name", name), attribute.Int("pulse.retries", retries))

	if endpoint == "" {
		a.log.Warn().Str("barrier", name).Msg("pulse skipped: no endpoint")
		return false
	}
	if retries < 0 {
		retries = 0
	}

	b := backoff.NewExponentialBackOff()
	if a.InitialInterval > 0 {
		b.InitialInterval = a.InitialInterval
	}
	if a.MaxInterval > 0 {
		b.MaxInterval = a.MaxInterval
	}

	attempt := 0
	op := func() (int, error) {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, http.NoBody)
		if err != nil {
			return 0, backoff.Permanent(err)
		}
		resp, err := a.Client.Do(req)
		if err != nil {
			a.log.Warn().Err(err).Str("barrier", name).Int("attempt", attempt).Msg("pulse attempt failed")
			return 0, err
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode <= 299:
			return resp.StatusCode, nil
		case resp.StatusCode >= 500:
			a.log.Warn().Str("barrier", name).Int("status", resp.StatusCode).Int("attempt", attempt).Msg("pulse attempt failed")
			return resp.StatusCode, fmt.Errorf("%w: status %d", errTransient, resp.StatusCode)
		default:
			return resp.StatusCode, backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}
	}

	start := time.Now()
	status, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(retries)+1),
	)
	pulseLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("pulse.attempts", attempt))

	if err != nil {
		a.log.Error().Err(err).Str("barrier", name).Int("attempts", attempt).Msg("pulse failed")
		return false
	}
	a.log.Info().Str("barrier", name).Int("status", status).Int("attempts", attempt).Msg("pulse sent")
	return true
}

// Probe GETs endpoint and classifies 2xx as Up and anything else as Down.
// An empty endpoint yields Unknown.
func (a *HTTPActuator) Probe(ctx context.Context, endpoint, name string) domain.Liveness {
	ctx, span := otel.Tracer("services/actuator").Start(ctx, "HTTPActuator.Probe")
	defer span.End()
	span.SetAttributes(attribute.String("barrier.name", name))

	if endpoint == "" {
		barrierUp.WithLabelValues(name).Set(-1)
		return domain.LivenessUnknown
	}

	state := domain.LivenessDown
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err == nil {
		var resp *http.Response
		resp, err = a.Client.Do(req)
		if err == nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
				state = domain.LivenessUp
			} else {
				err = fmt.Errorf("status %d", resp.StatusCode)
			}
		}
	}

	if state == domain.LivenessUp {
		barrierUp.WithLabelValues(name).Set(1)
	} else {
		barrierUp.WithLabelValues(name).Set(0)
		a.log.Warn().Err(err).Str("barrier", name).Msg("barrier probe failed")
	}
	return state
}
