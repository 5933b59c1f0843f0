package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("duplicate")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrRateLimit    = fmt.Errorf("rate limit exceeded")
)

// Sentinel errors for the annotation flow.
var (
	ErrConfigLoad    = fmt.Errorf("failed to load configuration")
	ErrURLDerivation = fmt.Errorf("annotation endpoint url derivation failed")
	ErrFetch         = fmt.Errorf("annotation fetch failed")
	ErrCircuitOpen   = fmt.Errorf("annotation endpoint circuit open")
	ErrSinkClosed    = fmt.Errorf("annotation sink closed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Resolver.fetch")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "annotation"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for logs and events.
type ErrorCode string

const (
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeDuplicate     ErrorCode = "DUPLICATE"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeRateLimit     ErrorCode = "RATE_LIMIT"
	CodeConfigLoad    ErrorCode = "CONFIG_LOAD"
	CodeURLDerivation ErrorCode = "URL_DERIVATION"
	CodeFetchFailed   ErrorCode = "FETCH_FAILED"
	CodeCircuitOpen   ErrorCode = "CIRCUIT_OPEN"
	CodeSinkClosed    ErrorCode = "SINK_CLOSED"

	// Subsystem-specific codes.
	CodeAnnotationNotFound ErrorCode = "ANNOTATION_NOT_FOUND"
	CodeAnnotationTimeout  ErrorCode = "ANNOTATION_TIMEOUT"
	CodeAnnotationInvalid  ErrorCode = "ANNOTATION_INVALID_JSON"
	CodePluginDuplicate    ErrorCode = "PLUGIN_DUPLICATE"
	CodePluginNotFound     ErrorCode = "PLUGIN_NOT_FOUND"
)

var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:      CodeNotFound,
	ErrDuplicate:     CodeDuplicate,
	ErrTimeout:       CodeTimeout,
	ErrInvalidInput:  CodeInvalidInput,
	ErrRateLimit:     CodeRateLimit,
	ErrConfigLoad:    CodeConfigLoad,
	ErrURLDerivation: CodeURLDerivation,
	ErrFetch:         CodeFetchFailed,
	ErrCircuitOpen:   CodeCircuitOpen,
	ErrSinkClosed:    CodeSinkClosed,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"annotation": CodeAnnotationNotFound,
		"plugin":     CodePluginNotFound,
	},
	ErrTimeout: {
		"annotation": CodeAnnotationTimeout,
	},
	ErrInvalidInput: {
		"annotation": CodeAnnotationInvalid,
	},
	ErrDuplicate: {
		"plugin": CodePluginDuplicate,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// DomainErrors with a SubSystem are resolved through subSystemCodeMap first.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
