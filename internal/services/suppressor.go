// Package services – DuplicateSuppressor
//
// Cameras often report the same vehicle several times while it sits in the
// capture zone. DuplicateSuppressor rejects repeat detections of the same
// (plate, lane, direction) inside a configurable window so they are neither
// persisted nor actuated twice.
package services

import (
	"strconv"
	"sync"
	"time"

	"github.com/tbourn/barrier-gateway/internal/domain"
)

// DuplicateSuppressor is a time-windowed last-seen cache. It is safe for
// concurrent use; check-and-record is atomic per key.
type DuplicateSuppressor struct {
	window  time.Duration
	horizon time.Duration
	now     func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewDuplicateSuppressor builds a suppressor. window <= 0 disables
// suppression; horizon bounds how long idle keys are retained (default 24h).
func NewDuplicateSuppressor(window, horizon time.Duration) *DuplicateSuppressor {
	if horizon <= 0 {
		horizon = 24 * time.Hour
	}
	return &DuplicateSuppressor{
		window:   window,
		horizon:  horizon,
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
	}
}

// IsDuplicate reports whether the key was recorded strictly less than window
// ago. When it was not, the current instant is recorded and false returned.
func (s *DuplicateSuppressor) IsDuplicate(plate string, laneID int, dir domain.Direction) bool {
	if s.window <= 0 {
		return false
	}
	key := suppressionKey(plate, laneID, dir)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, seen := range s.lastSeen {
		if now.Sub(seen) > s.horizon {
			delete(s.lastSeen, k)
		}
	}

	if seen, ok := s.lastSeen[key]; ok && now.Sub(seen) < s.window {
		return true
	}
	s.lastSeen[key] = now
	return false
}

// Forget drops the record for a key so the next detection is accepted. The
// gateway calls it when a detection that was just recorded fails to persist.
func (s *DuplicateSuppressor) Forget(plate string, laneID int, dir domain.Direction) {
	if s.window <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastSeen, suppressionKey(plate, laneID, dir))
}

func suppressionKey(plate string, laneID int, dir domain.Direction) string {
	return plate + "\x00" + strconv.Itoa(laneID) + "\x00" + strconv.Itoa(int(dir))
}

// Len returns the number of tracked keys.
func (s *DuplicateSuppressor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lastSeen)
}
