package mirnaprep

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure. Every Kind is fatal to the run.
type Kind int

const (
	KindUnknown Kind = iota

	// IngestionError: missing or malformed input, duplicate key rows, no
	// matching files.
	IngestionError

	// JoinError: the annotation/counts join is unusable, e.g. empty.
	JoinError

	// AlignmentError: sample metadata rows and matrix columns disagree.
	AlignmentError

	// ParseError: a sample identifier matches no time point or group.
	ParseError

	// ConfigError: invalid parameters.
	ConfigError

	// NormalizationError: library sizes that TMM cannot work with.
	NormalizationError

	// OutputError: a checkpoint artifact could not be written.
	OutputError
)

var kindNames = map[Kind]string{
	KindUnknown:        "UnknownError",
	IngestionError:     "IngestionError",
	JoinError:          "JoinError",
	AlignmentError:     "AlignmentError",
	ParseError:         "ParseError",
	ConfigError:        "ConfigError",
	NormalizationError: "NormalizationError",
	OutputError:        "OutputError",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error lets a Kind be used as an errors.Is target.
func (k Kind) Error() string {
	return k.String()
}

// Stage names, as reported in errors and logs.
const (
	StageConfig    = "config"
	StageDiscover  = "discover"
	StageLoad      = "load"
	StagePivot     = "pivot"
	StageAnnotate  = "annotate"
	StageMerge     = "merge"
	StageMetadata  = "metadata"
	StageFilter    = "filter"
	StageNormalize = "normalize"
	StageReport    = "report"
	StageSnapshot  = "snapshot"
)

// Error is the error type returned by every stage. Record names the file,
// feature or sample that triggered the failure, when there is one.
type Error struct {
	Kind   Kind
	Stage  string
	Record string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Stage + ": " + e.Kind.String()
	if e.Record != "" {
		msg += ": " + e.Record
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a bare Kind, so callers can write errors.Is(err, ParseError).
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// Errorf builds an *Error with a formatted cause.
func Errorf(kind Kind, stage, record, format string, args ...interface{}) error {
	return &Error{
		Kind:   kind,
		Stage:  stage,
		Record: record,
		Err:    fmt.Errorf(format, args...),
	}
}

// Wrap classifies err. A nil err stays nil, and an err that is already an
// *Error is returned untouched so the innermost classification wins.
func Wrap(kind Kind, stage, record string, err error) error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		return err
	}

	return &Error{Kind: kind, Stage: stage, Record: record, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
