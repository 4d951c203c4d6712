package domain

import (
	"errors"
	"fmt"
)

// Category sentinels shared by stores, tools and the HTTP layer.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrDuplicate        = fmt.Errorf("duplicate")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrDisabled         = fmt.Errorf("disabled")
	ErrInvalidInput     = fmt.Errorf("invalid input")
)

// Sentinel errors for the chat core.
var (
	ErrModelUnavailable       = fmt.Errorf("model unavailable")
	ErrContextTooLarge        = fmt.Errorf("context too large")
	ErrToolLoopExceeded       = fmt.Errorf("tool loop exceeded")
	ErrToolInvocationFailed   = fmt.Errorf("tool invocation failed")
	ErrUnknownTool            = fmt.Errorf("unknown tool")
	ErrMalformedResponse      = fmt.Errorf("malformed model response")
	ErrSchemaValidationFailed = fmt.Errorf("schema validation failed")

	ErrRateLimit        = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid      = fmt.Errorf("authentication failed")
	ErrUnsupportedMedia = fmt.Errorf("unsupported media type")
	ErrPayloadTooLarge  = fmt.Errorf("payload too large")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
	ErrDecryption       = fmt.Errorf("decryption failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Orchestrator.Run")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
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

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout)
}

// ErrorCode is a machine-parseable error category for clients and monitoring.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeDuplicate         ErrorCode = "DUPLICATE"
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodePermissionDenied  ErrorCode = "PERMISSION_DENIED"
	CodeDisabled          ErrorCode = "DISABLED"
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
	CodeModelUnavailable  ErrorCode = "MODEL_UNAVAILABLE"
	CodeContextTooLarge   ErrorCode = "CONTEXT_TOO_LARGE"
	CodeToolLoopExceeded  ErrorCode = "TOOL_LOOP_EXCEEDED"
	CodeToolFailure       ErrorCode = "TOOL_INVOCATION_FAILED"
	CodeUnknownTool       ErrorCode = "UNKNOWN_TOOL"
	CodeMalformedResponse ErrorCode = "MALFORMED_RESPONSE"
	CodeSchemaValidation  ErrorCode = "SCHEMA_VALIDATION_FAILED"
	CodeRateLimit         ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid       ErrorCode = "AUTH_INVALID"
	CodeUnsupportedMedia  ErrorCode = "UNSUPPORTED_MEDIA"
	CodePayloadTooLarge   ErrorCode = "PAYLOAD_TOO_LARGE"
	CodeConfigLoad        ErrorCode = "CONFIG_LOAD"
	CodeDecryption        ErrorCode = "DECRYPTION"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:         CodeNotFound,
	ErrDuplicate:        CodeDuplicate,
	ErrTimeout:          CodeTimeout,
	ErrPermissionDenied: CodePermissionDenied,
	ErrDisabled:         CodeDisabled,
	ErrInvalidInput:     CodeInvalidInput,

	ErrModelUnavailable:       CodeModelUnavailable,
	ErrContextTooLarge:        CodeContextTooLarge,
	ErrToolLoopExceeded:       CodeToolLoopExceeded,
	ErrToolInvocationFailed:   CodeToolFailure,
	ErrUnknownTool:            CodeUnknownTool,
	ErrMalformedResponse:      CodeMalformedResponse,
	ErrSchemaValidationFailed: CodeSchemaValidation,
	ErrRateLimit:              CodeRateLimit,
	ErrAuthInvalid:            CodeAuthInvalid,
	ErrUnsupportedMedia:       CodeUnsupportedMedia,
	ErrPayloadTooLarge:        CodePayloadTooLarge,
	ErrConfigLoad:             CodeConfigLoad,
	ErrDecryption:             CodeDecryption,
}

// codePriority orders the chain walk so that a core condition wins over the
// category it may also wrap (e.g. a model timeout is MODEL_UNAVAILABLE).
var codePriority = []error{
	ErrModelUnavailable,
	ErrContextTooLarge,
	ErrToolLoopExceeded,
	ErrMalformedResponse,
	ErrSchemaValidationFailed,
	ErrUnknownTool,
	ErrToolInvocationFailed,
	ErrAuthInvalid,
	ErrRateLimit,
	ErrUnsupportedMedia,
	ErrPayloadTooLarge,
	ErrNotFound,
	ErrDuplicate,
	ErrTimeout,
	ErrPermissionDenied,
	ErrDisabled,
	ErrInvalidInput,
	ErrConfigLoad,
	ErrDecryption,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Walked with errors.Is rather than a map lookup: err's dynamic type
	// may not be comparable.
	for _, sentinel := range codePriority {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
