package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Combine with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrTimeout          = fmt.Errorf("operation timed out")
)

// Sentinel errors for the domain layer.
var (
	// Source parsing.
	ErrParse  = fmt.Errorf("source parse failed")
	ErrSchema = fmt.Errorf("parameter schema invalid")

	// Parameter validation.
	ErrNoOp         = fmt.Errorf("value unchanged")
	ErrTypeMismatch = fmt.Errorf("value type mismatch")
	ErrOutOfBounds  = fmt.Errorf("value out of bounds")

	// Renderer process.
	ErrBusy               = fmt.Errorf("renderer busy")
	ErrExecutableNotFound = fmt.Errorf("renderer executable not found")
	ErrResource           = fmt.Errorf("renderer process resources unavailable")
	ErrNonZeroExit        = fmt.Errorf("renderer exited with non-zero status")
	ErrCrashSignal        = fmt.Errorf("renderer crashed")

	// Preset, export and journal files.
	ErrPersistence = fmt.Errorf("persistence failed")

	ErrConfigLoad = fmt.Errorf("failed to load configuration")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Store.Set")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "render", "preset"); used for ErrorCode dispatch
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

// IsValidationError reports whether err rejects a parameter value.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoOp) ||
		errors.Is(err, ErrTypeMismatch) || errors.Is(err, ErrOutOfBounds)
}

// IsSpawnError reports whether err prevented a renderer process from starting.
func IsSpawnError(err error) bool {
	return errors.Is(err, ErrExecutableNotFound) || errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrResource)
}

// ErrorCode is a machine-parseable error category for logs and exit reporting.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeParse              ErrorCode = "PARSE"
	CodeSchema             ErrorCode = "SCHEMA"
	CodeNoOp               ErrorCode = "NO_OP"
	CodeTypeMismatch       ErrorCode = "TYPE_MISMATCH"
	CodeOutOfBounds        ErrorCode = "OUT_OF_BOUNDS"
	CodeBusy               ErrorCode = "RENDER_BUSY"
	CodeExecutableNotFound ErrorCode = "EXECUTABLE_NOT_FOUND"
	CodeResource           ErrorCode = "RESOURCE"
	CodeNonZeroExit        ErrorCode = "NON_ZERO_EXIT"
	CodeCrashSignal        ErrorCode = "CRASH_SIGNAL"
	CodePersistence        ErrorCode = "PERSISTENCE"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"

	// Subsystem-specific codes used by subSystemCodeMap.
	CodeParamNotFound    ErrorCode = "PARAM_NOT_FOUND"
	CodePresetNotFound   ErrorCode = "PRESET_NOT_FOUND"
	CodeRunNotFound      ErrorCode = "RUN_NOT_FOUND"
	CodeRenderPermission ErrorCode = "RENDER_PERMISSION"

	// Category error codes, used when no subsystem-specific code matches.
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeTimeout          ErrorCode = "TIMEOUT"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:         CodeNotFound,
	ErrInvalidInput:     CodeInvalidInput,
	ErrPermissionDenied: CodePermissionDenied,
	ErrTimeout:          CodeTimeout,

	ErrParse:              CodeParse,
	ErrSchema:             CodeSchema,
	ErrNoOp:               CodeNoOp,
	ErrTypeMismatch:       CodeTypeMismatch,
	ErrOutOfBounds:        CodeOutOfBounds,
	ErrBusy:               CodeBusy,
	ErrExecutableNotFound: CodeExecutableNotFound,
	ErrResource:           CodeResource,
	ErrNonZeroExit:        CodeNonZeroExit,
	ErrCrashSignal:        CodeCrashSignal,
	ErrPersistence:        CodePersistence,
	ErrConfigLoad:         CodeConfigLoad,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"paramstore": CodeParamNotFound,
		"preset":     CodePresetNotFound,
		"runlog":     CodeRunNotFound,
	},
	ErrPermissionDenied: {
		"render": CodeRenderPermission,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
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
		return de.Code()
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
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
	for sentinel, code := range errorCodeMap {
		if errors.Is(e.Err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}
