package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure
type Kind string

const (
	KindInputNotFound    Kind = "input not found"
	KindSchemaValidation Kind = "schema validation"
	KindParse            Kind = "parse"
	KindSerialization    Kind = "serialization"
	KindIO               Kind = "io"
	KindFormat           Kind = "format"
)

// Stage names used in errors, logs and stage metrics
const (
	StageIngestion   = "ingestion"
	StageCleaning    = "cleaning"
	StageDerivation  = "derivation"
	StageWrite       = "write"
	StageRead        = "read"
	StageAggregation = "aggregation"
	StageExport      = "export"
)

// Error is a fatal pipeline failure carrying the originating stage and the
// offending column, row or path.
type Error struct {
	Kind    Kind
	Stage   string
	Subject string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s error", e.Stage, e.Kind)
	if e.Subject != "" {
		msg += ": " + e.Subject
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors of the same kind, so errors.Is(err, ErrParse) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Stage == "" && t.Subject == "" && t.Err == nil
}

// Sentinels for errors.Is
var (
	ErrInputNotFound    = &Error{Kind: KindInputNotFound}
	ErrSchemaValidation = &Error{Kind: KindSchemaValidation}
	ErrParse            = &Error{Kind: KindParse}
	ErrSerialization    = &Error{Kind: KindSerialization}
	ErrIO               = &Error{Kind: KindIO}
	ErrFormat           = &Error{Kind: KindFormat}
)

func newError(kind Kind, stage, subject string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Subject: subject, Err: err}
}

// KindOf returns the kind of a pipeline error, or "" for foreign errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
