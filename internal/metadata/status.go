package metadata

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownStatus is returned when a status tag or ordinal does not name
// one of the five transform states.
var ErrUnknownStatus = errors.New("unknown transform status")

// Status is the run-state of a transform job.
//
// Typical flow is INIT → STARTED → {STOPPED, FINISHED, FAILED} with
// STOPPED → STARTED on resume. Nothing here enforces that order; the
// execution engine owns it.
type Status uint8

const (
	StatusInit Status = iota
	StatusStarted
	StatusStopped
	StatusFinished
	StatusFailed
)

var statusTags = [...]string{
	StatusInit:     "init",
	StatusStarted:  "started",
	StatusStopped:  "stopped",
	StatusFinished: "finished",
	StatusFailed:   "failed",
}

var statusByName = map[string]Status{
	"INIT":     StatusInit,
	"STARTED":  StatusStarted,
	"STOPPED":  StatusStopped,
	"FINISHED": StatusFinished,
	"FAILED":   StatusFailed,
}

// String returns the lowercase wire tag.
func (s Status) String() string {
	if int(s) < len(statusTags) {
		return statusTags[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

func (s Status) Valid() bool { return int(s) < len(statusTags) }

// Terminal reports whether a run in this state has ended.
func (s Status) Terminal() bool { return s == StatusFinished || s == StatusFailed }

// ParseStatus matches text against the enum names after upper-casing it, so
// "started", "Started" and "STARTED" all resolve to StatusStarted.
func ParseStatus(text string) (Status, error) {
	if s, ok := statusByName[strings.ToUpper(text)]; ok {
		return s, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStatus, text)
}

// StatusFromOrdinal is the inverse of uint8(s) for the binary form.
func StatusFromOrdinal(n int) (Status, error) {
	if n < 0 || n >= len(statusTags) {
		return 0, fmt.Errorf("%w: ordinal %d", ErrUnknownStatus, n)
	}
	return Status(n), nil
}
