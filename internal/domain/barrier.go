package domain

import (
	"strings"
	"time"
)

// APIDownBehavior is the per-barrier policy applied to inbound traffic when
// deciding whether a plate may pass.
type APIDownBehavior string

const (
	UseHistoric APIDownBehavior = "UseHistoric"
	OpenAny     APIDownBehavior = "OpenAny"
	DontOpen    APIDownBehavior = "DontOpen"
)

// ParseAPIDownBehavior is case-insensitive; unknown values fall back to UseHistoric.
func ParseAPIDownBehavior(s string) APIDownBehavior {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openany":
		return OpenAny
	case "dontopen":
		return DontOpen
	default:
		return UseHistoric
	}
}

// Indicator is the cosmetic outcome light of a barrier.
type Indicator int

const (
	IndicatorIdle Indicator = iota
	IndicatorSending
	IndicatorSucceeded
	IndicatorFailed
)

func (i Indicator) String() string {
	switch i {
	case IndicatorSending:
		return "sending"
	case IndicatorSucceeded:
		return "succeeded"
	case IndicatorFailed:
		return "failed"
	default:
		return "idle"
	}
}

// MarshalText renders the indicator as its label in JSON.
func (i Indicator) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

// Liveness is the result of the latest probe against a barrier controller.
type Liveness int

const (
	LivenessUnknown Liveness = iota
	LivenessUp
	LivenessDown
)

func (l Liveness) String() string {
	switch l {
	case LivenessUp:
		return "up"
	case LivenessDown:
		return "down"
	default:
		return "unknown"
	}
}

// MarshalText renders the liveness as its label in JSON.
func (l Liveness) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// BarrierStatus is a point-in-time snapshot of a barrier unit, suitable for
// polling observers and API responses.
type BarrierStatus struct {
	Name            string          `json:"name"`
	LaneID          int             `json:"lane_id"`
	Enabled         bool            `json:"enabled"`
	APIDownBehavior APIDownBehavior `json:"api_down_behavior"`
	Indicator       Indicator       `json:"indicator"`
	Liveness        Liveness        `json:"liveness"`
	Cursor          time.Time       `json:"cursor"`
	LastPlate       string          `json:"last_plate,omitempty"`
	LastPulseAt     *time.Time      `json:"last_pulse_at,omitempty"`
}
