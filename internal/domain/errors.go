package domain

import (
	"errors"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidConfig = errors.New("invalid config")
	ErrMissingVar    = errors.New("missing variable")
	ErrExecution     = errors.New("execution error")
	// ErrUnsupported means the executor cannot host a cell's platform.
	ErrUnsupported = errors.New("unsupported platform")
)

// ErrorKind groups failures by what the user has to fix: a missing file,
// a bad workflow, an unset variable, or a command that could not run.
type ErrorKind string

const (
	KindNotFound      ErrorKind = "not_found"
	KindInvalidConfig ErrorKind = "invalid_config"
	KindMissingVar    ErrorKind = "missing_variable"
	KindExecution     ErrorKind = "execution"
)

var kindSentinels = map[ErrorKind]error{
	KindNotFound:      ErrNotFound,
	KindInvalidConfig: ErrInvalidConfig,
	KindMissingVar:    ErrMissingVar,
	KindExecution:     ErrExecution,
}

// OpError records which gate operation failed, on what path, and how the
// failure is classified. errors.Is(err, ErrNotFound) and friends match on
// Kind even when Err does not wrap the sentinel itself.
type OpError struct {
	Op   string
	Kind ErrorKind
	Path string
	Err  error
}

func (e *OpError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.Path != "" {
		b.WriteString(" (path=")
		b.WriteString(e.Path)
		b.WriteByte(')')
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *OpError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *OpError) Is(target error) bool {
	if e == nil {
		return false
	}
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

// KindOf returns the kind of the outermost OpError in err's chain, or ""
// when err carries none.
func KindOf(err error) ErrorKind {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return kind != "" && KindOf(err) == kind
}
