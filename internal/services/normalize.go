// Package services – camera payload normalization
//
// Camera firmware varies in how it encodes the same detection: numbers as
// strings or bare numbers, keys in different cases, optional blocks missing.
// Decoding here is deliberately loose. Every field is optional and a field
// with an unexpected shape is dropped rather than failing the message.
package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/barrier-gateway/internal/domain"
	"github.com/tbourn/barrier-gateway/internal/utils"
)

// batchKey holds the array of detections in a batched payload.
const batchKey = "vrmmessages"

// CameraMessage is the normalized form of one camera detection.
type CameraMessage struct {
	MessageType      string            `json:"messageType,omitempty"`
	CaptureTimeStamp string            `json:"captureTimeStamp,omitempty"`
	Vrm              string            `json:"vrm,omitempty"`
	Confidence       string            `json:"confidence,omitempty"`
	Direction        string            `json:"direction,omitempty"`
	LogicalDirection string            `json:"logicalDirection,omitempty"`
	CameraSerial     string            `json:"cameraSerial,omitempty"`
	Country          string            `json:"country,omitempty"`
	TrackingID       string            `json:"trackingId,omitempty"`
	LaneID           int               `json:"laneId,omitempty"`
	Images           map[string]string `json:"images,omitempty"`
}

// HasIdentity reports whether the message carries a plate or a camera serial.
func (m CameraMessage) HasIdentity() bool {
	return m.Vrm != "" || m.CameraSerial != ""
}

// NormalizePayload decodes a single detection object or a batch under
// "vrmMessages". It fails when the body is not a JSON object, or when a
// single detection has no identity. Batch entries are returned as decoded;
// entries without identity are rejected later, one by one, by Ingest.
func NormalizePayload(raw []byte) (msgs []CameraMessage, batch bool, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, false, ErrEmptyPayload
	}
	fields, ok := objectFields(raw)
	if !ok {
		return nil, false, ErrEmptyPayload
	}

	if arr, present := fields[batchKey]; present {
		var items []json.RawMessage
		if err := json.Unmarshal(arr, &items); err == nil {
			msgs = make([]CameraMessage, 0, len(items))
			for _, it := range items {
				m, _ := decodeMessage(it)
				msgs = append(msgs, m)
			}
			return msgs, true, nil
		}
	}

	m := messageFromFields(fields)
	if !m.HasIdentity() {
		return nil, false, ErrNoIdentity
	}
	return []CameraMessage{m}, false, nil
}

// objectFields decodes a JSON object into lower-cased keys.
func objectFields(raw []byte) (map[string]json.RawMessage, bool) {
	var in map[string]json.RawMessage
	if err := json.Unmarshal(raw, &in); err != nil || in == nil {
		return nil, false
	}
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = v
	}
	return out, true
}

func decodeMessage(raw json.RawMessage) (CameraMessage, bool) {
	fields, ok := objectFields(raw)
	if !ok {
		return CameraMessage{}, false
	}
	return messageFromFields(fields), true
}

func messageFromFields(f map[string]json.RawMessage) CameraMessage {
	m := CameraMessage{
		MessageType:      flexText(f["messagetype"]),
		CaptureTimeStamp: flexText(f["capturetimestamp"]),
		Vrm:              flexText(f["vrm"]),
		Confidence:       flexText(f["confidence"]),
		Direction:        flexText(f["direction"]),
		LogicalDirection: flexText(f["logicaldirection"]),
		CameraSerial:     flexText(f["cameraserial"]),
		Country:          flexText(f["country"]),
		TrackingID:       flexText(f["trackingid"]),
	}
	if lane, err := strconv.Atoi(flexText(f["laneid"])); err == nil && lane > 0 {
		m.LaneID = lane
	}
	if imgs, ok := objectFields(f["images"]); ok {
		m.Images = make(map[string]string, len(imgs))
		for k, v := range imgs {
			if s := flexText(v); s != "" {
				m.Images[k] = s
			}
		}
	}
	return m
}

// flexText renders a JSON scalar as trimmed text. Objects, arrays and null
// yield "".
func flexText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

var captureLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// parseCaptureTime accepts RFC 3339, zone-less ISO layouts (read as local
// time) and Unix epochs in seconds or milliseconds.
func parseCaptureTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e11 {
			return time.UnixMilli(n), nil
		}
		return time.Unix(n, 0), nil
	}
	for _, layout := range captureLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func parseConfidence(s string) int {
	if n, err := strconv.Atoi(s); err == nil {
		return utils.ClampInt(n, 0, 100)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) {
		// Clamp before converting; out-of-range float to int is undefined.
		return int(math.Round(math.Max(0, math.Min(100, f))))
	}
	return 100
}

// ResolveDirection returns the message's explicit direction, falling back to
// its logical direction and then to def.
func (m CameraMessage) ResolveDirection(def domain.Direction) domain.Direction {
	if d, ok := domain.ParseDirection(m.Direction); ok {
		return d
	}
	if d, ok := domain.ParseDirection(m.LogicalDirection); ok {
		return d
	}
	return def
}

// ToTransaction maps the message onto a ledger row for laneID.
func (m CameraMessage) ToTransaction(created time.Time, laneID int, dir domain.Direction) domain.Transaction {
	t := domain.Transaction{
		Created:    created,
		ObservedAt: created,
		Plate:      m.Vrm,
		Confidence: parseConfidence(m.Confidence),
		Direction:  dir,
		LaneID:     laneID,
		CameraID:   1,
	}
	if obs, err := parseCaptureTime(m.CaptureTimeStamp); err == nil {
		t.ObservedAt = obs
	}
	if id, err := strconv.Atoi(m.CameraSerial); err == nil {
		t.CameraID = id
	}

	keys := make([]string, 0, len(m.Images))
	for k := range m.Images {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	slots := []*string{&t.Image1, &t.Image2, &t.Image3}
	for i, k := range keys {
		if i == len(slots) {
			break
		}
		*slots[i] = m.Images[k]
	}
	return t
}
