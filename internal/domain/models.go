// Package domain defines the persistence models and value types of the
// barrier gateway: ledger transactions, barrier state enums, and whitelist
// entries. Transaction is mapped with GORM and forms the append-only ledger.
package domain

import (
	"strings"
	"time"
)

// Direction is the travel direction reported by a camera for a detection.
type Direction int

const (
	// Outbound traffic leaves the site and is never authorization-checked.
	Outbound Direction = 0
	// Inbound traffic enters the site and is checked against the whitelist.
	Inbound Direction = 1
)

// String returns a lowercase label for logs and JSON payloads.
func (d Direction) String() string {
	if d == Inbound {
		return "inbound"
	}
	return "outbound"
}

// ParseDirection maps the direction spellings seen on camera payloads and in
// configuration onto a Direction. The second return value reports whether the
// input was recognised.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "in", "inbound", "towards", "entry":
		return Inbound, true
	case "0", "out", "outbound", "away", "exit":
		return Outbound, true
	}
	return Outbound, false
}

// Transaction is one persisted plate-detection event.
//
// Fields:
//   - ID: autoincrement primary key; returned by insert and used for mark-sent.
//   - Created: ingest wall-clock; the sweep cursor compares against it.
//   - ObservedAt: camera capture time, falls back to Created when unparsable.
//   - Plate: OCR output, possibly empty or noisy.
//   - Confidence: OCR confidence, 100 when unparsable.
//   - Direction / LaneID / CameraID: routing metadata.
//   - Image1..Image3: optional image references.
//   - Sent / SentAt: set once after a confirmed successful actuation.
type Transaction struct {
	ID         uint       `json:"id"          gorm:"primaryKey;autoIncrement"`
	Created    time.Time  `json:"created"     gorm:"not null;index:idx_lane_created,priority:2"`
	ObservedAt time.Time  `json:"observed_at" gorm:"not null"`
	Plate      string     `json:"plate"       gorm:"type:varchar(32);not null;default:''"`
	Confidence int        `json:"confidence"  gorm:"not null;default:100"`
	Direction  Direction  `json:"direction"   gorm:"not null"`
	LaneID     int        `json:"lane_id"     gorm:"not null;index:idx_lane_created,priority:1"`
	CameraID   int        `json:"camera_id"   gorm:"not null;default:1"`
	Image1     string     `json:"image1,omitempty"`
	Image2     string     `json:"image2,omitempty"`
	Image3     string     `json:"image3,omitempty"`
	Sent       bool       `json:"sent"        gorm:"not null;default:false"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
}

// TableName returns the database table name for Transaction.
func (Transaction) TableName() string { return "transactions" }

// AuthorizationEntry is one whitelisted plate with its validity window.
type AuthorizationEntry struct {
	Plate  string    `json:"plate"`
	Start  time.Time `json:"start"`
	Finish time.Time `json:"finish"`
}

// ActiveAt reports whether the entry covers t (start <= t <= finish).
func (e AuthorizationEntry) ActiveAt(t time.Time) bool {
	return !t.Before(e.Start) && !t.After(e.Finish)
}
