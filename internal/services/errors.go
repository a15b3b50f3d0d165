// Package services defines the dispatch and validation engine of the
// barrier gateway. This file centralizes service-level error values so that
// they can be consistently returned by service methods and checked by callers.
//
// Translation into HTTP status codes is performed at the handler layer.
// Transient upstream failures (gate controller, whitelist authority) are never
// surfaced as errors; they are downgraded to boolean results and logged.
package services

import "errors"

var (
	// ErrEmptyPayload is returned when an ingestion body is empty or not a JSON object.
	ErrEmptyPayload = errors.New("payload must be a JSON object")

	// ErrNoIdentity is returned for a detection carrying neither plate nor
	// camera serial; such records are never persisted.
	ErrNoIdentity = errors.New("detection has no plate or camera identity")

	// ErrNoBarrier is returned when a detection cannot be routed because no
	// barrier matches the camera and none is enabled.
	ErrNoBarrier = errors.New("no barrier available for detection")

	// ErrNotStored wraps a ledger failure while persisting a detection.
	ErrNotStored = errors.New("detection could not be stored")

	// ErrBarrierNotFound indicates that a named barrier does not exist.
	ErrBarrierNotFound = errors.New("barrier not found")
)
