package model

import "errors"

// Error classes. Wrap them with fmt.Errorf("%w: ...") and test with errors.Is.
var (
	// ErrConfig marks missing or inconsistent report parameters; fatal for that report id.
	ErrConfig = errors.New("configuration error")
	// ErrIO marks unreadable inputs or unwritable outputs; fatal for that report id.
	ErrIO = errors.New("i/o error")
	// ErrData marks malformed source rows.
	ErrData = errors.New("data error")
)

// ErrorType classifies err for storage and metrics.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrData):
		return "data"
	default:
		return "internal"
	}
}
