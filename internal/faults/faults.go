// Package faults defines the failure taxonomy shared by every pipeline stage.
//
// Errors carry the stage that failed and a Kind; errors.Is matches two
// *Error values when their kinds are equal, so callers can test against the
// exported sentinels:
//
//	if errors.Is(err, faults.ErrInvalidConfig) { ... }
package faults

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind string

const (
	KindDetectorTimeout      Kind = "detector_timeout"
	KindDetectorFailure      Kind = "detector_failure"
	KindNoViableCandidates   Kind = "no_viable_candidates"
	KindSourceUnreadable     Kind = "source_unreadable"
	KindExtractionFailure    Kind = "extraction_failure"
	KindConcatenationFailure Kind = "concatenation_failure"
	KindInvalidConfig        Kind = "invalid_config"
)

// Stage names the pipeline stage an error originated in.
type Stage string

const (
	StageConfig     Stage = "config"
	StageDetect     Stage = "detect"
	StageNormalize  Stage = "normalize"
	StageCandidates Stage = "candidates"
	StageSelect     Stage = "select"
	StageAssemble   Stage = "assemble"
)

// Sentinels for errors.Is.
var (
	ErrDetectorTimeout      = &Error{Kind: KindDetectorTimeout}
	ErrDetectorFailure      = &Error{Kind: KindDetectorFailure}
	ErrNoViableCandidates   = &Error{Kind: KindNoViableCandidates}
	ErrSourceUnreadable     = &Error{Kind: KindSourceUnreadable}
	ErrExtractionFailure    = &Error{Kind: KindExtractionFailure}
	ErrConcatenationFailure = &Error{Kind: KindConcatenationFailure}
	ErrInvalidConfig        = &Error{Kind: KindInvalidConfig}
)

// Error is a stage-aware pipeline failure.
type Error struct {
	Kind   Kind
	Stage  Stage
	Detail string

	// Segment is the zero-based cut plan index the failure refers to, or -1.
	Segment int

	// Source names the detector for detector failures.
	Source string

	// Succeeded lists the segment files that were produced before the failure.
	Succeeded []string

	Err error
}

// New builds an Error without a segment reference.
func New(kind Kind, stage Stage, detail string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Detail: detail, Segment: -1, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Stage != "" {
		fmt.Fprintf(&b, "%s: ", e.Stage)
	}
	b.WriteString(string(e.Kind))
	if e.Source != "" {
		fmt.Fprintf(&b, " (%s)", e.Source)
	}
	if e.Segment >= 0 {
		fmt.Fprintf(&b, " for segment %d", e.Segment)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so sentinels match any error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// StageOf returns the Stage of the first *Error in err's chain, or "".
func StageOf(err error) Stage {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Stage
	}
	return ""
}
