package errors

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents internal error codes for store operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Client errors (4xx equivalent)
	ErrCodeInvalidArgument  ErrorCode = 1000
	ErrCodeNotFound         ErrorCode = 1001
	ErrCodeConflict         ErrorCode = 1002
	ErrCodeOutOfRetention   ErrorCode = 1003
	ErrCodeCastFailed       ErrorCode = 1004
	ErrCodeCycleDetected    ErrorCode = 1005
	ErrCodePrivilegeDenied  ErrorCode = 1006
	ErrCodeInvalidTableName ErrorCode = 1007
	ErrCodeBatchTooLarge    ErrorCode = 1008
	ErrCodeChecksumFailed   ErrorCode = 1009

	// Server errors (5xx equivalent)
	ErrCodeInternal          ErrorCode = 2000
	ErrCodeUnavailable       ErrorCode = 2001
	ErrCodeDiskFull          ErrorCode = 2002
	ErrCodeDiskThrottled     ErrorCode = 2003
	ErrCodeJournalFailed     ErrorCode = 2004
	ErrCodeSegmentFailed     ErrorCode = 2005
	ErrCodeCorruptedData     ErrorCode = 2006
	ErrCodeResourceExhausted ErrorCode = 2007
)

// StoreError represents a structured error with code and context
type StoreError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// ToGRPCStatus converts StoreError to gRPC status
func (e *StoreError) ToGRPCStatus() *status.Status {
	return status.New(e.toGRPCCode(), e.Error())
}

// toGRPCCode maps internal error codes to gRPC codes
func (e *StoreError) toGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeInvalidArgument, ErrCodeCastFailed,
		ErrCodeInvalidTableName, ErrCodeBatchTooLarge:
		return codes.InvalidArgument
	case ErrCodeNotFound:
		return codes.NotFound
	case ErrCodeConflict:
		return codes.Aborted
	case ErrCodeOutOfRetention:
		return codes.OutOfRange
	case ErrCodeCycleDetected:
		return codes.FailedPrecondition
	case ErrCodePrivilegeDenied:
		return codes.PermissionDenied
	case ErrCodeDiskFull, ErrCodeResourceExhausted:
		return codes.ResourceExhausted
	case ErrCodeDiskThrottled, ErrCodeUnavailable:
		return codes.Unavailable
	case ErrCodeChecksumFailed, ErrCodeCorruptedData:
		return codes.DataLoss
	default:
		return codes.Internal
	}
}

// NewStoreError creates a new StoreError
func NewStoreError(code ErrorCode, message string, cause error) *StoreError {
	return &StoreError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *StoreError) WithDetail(key string, value interface{}) *StoreError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *StoreError {
	return NewStoreError(ErrCodeInvalidArgument, message, cause)
}

func TableNotFound(name string) *StoreError {
	return NewStoreError(ErrCodeNotFound, fmt.Sprintf("table not found: %s", name), nil).
		WithDetail("table", name)
}

func SegmentNotFound(id string) *StoreError {
	return NewStoreError(ErrCodeNotFound, fmt.Sprintf("segment not found: %s", id), nil).
		WithDetail("segment_id", id)
}

func StateNotFound(tableID, stateID uint64) *StoreError {
	return NewStoreError(ErrCodeNotFound, fmt.Sprintf("state %d not found for table %d", stateID, tableID), nil).
		WithDetail("table_id", tableID).
		WithDetail("state_id", stateID)
}

func RoleNotFound(role string) *StoreError {
	return NewStoreError(ErrCodeNotFound, fmt.Sprintf("role not found: %s", role), nil).
		WithDetail("role", role)
}

func StaleHead(tableID, parentStateID, headStateID uint64) *StoreError {
	return NewStoreError(ErrCodeConflict,
		fmt.Sprintf("append against stale head: parent %d, current head %d", parentStateID, headStateID), nil).
		WithDetail("table_id", tableID).
		WithDetail("parent_state_id", parentStateID).
		WithDetail("head_state_id", headStateID)
}

func OutOfRetention(tableID uint64, locator string) *StoreError {
	return NewStoreError(ErrCodeOutOfRetention,
		fmt.Sprintf("locator %s predates retained history for table %d", locator, tableID), nil).
		WithDetail("table_id", tableID).
		WithDetail("locator", locator)
}

func CastFailed(from, to string) *StoreError {
	return NewStoreError(ErrCodeCastFailed, fmt.Sprintf("cannot cast %s to %s", from, to), nil).
		WithDetail("from", from).
		WithDetail("to", to)
}

func CycleDetected(role, parent string) *StoreError {
	return NewStoreError(ErrCodeCycleDetected,
		fmt.Sprintf("granting role %s to %s would create a cycle", parent, role), nil).
		WithDetail("role", role).
		WithDetail("parent", parent)
}

func PrivilegeDenied(role, privilege, objectRef string) *StoreError {
	return NewStoreError(ErrCodePrivilegeDenied,
		fmt.Sprintf("role %s lacks %s on %s", role, privilege, objectRef), nil).
		WithDetail("role", role).
		WithDetail("privilege", privilege).
		WithDetail("object_ref", objectRef)
}

func InvalidTableName(name, reason string) *StoreError {
	return NewStoreError(ErrCodeInvalidTableName, fmt.Sprintf("invalid table name '%s': %s", name, reason), nil).
		WithDetail("name", name).
		WithDetail("reason", reason)
}

func BatchTooLarge(rows, maxRows int) *StoreError {
	return NewStoreError(ErrCodeBatchTooLarge, fmt.Sprintf("batch of %d rows exceeds maximum %d", rows, maxRows), nil).
		WithDetail("rows", rows).
		WithDetail("max_rows", maxRows)
}

func ChecksumFailed(expected, actual uint32) *StoreError {
	return NewStoreError(ErrCodeChecksumFailed, fmt.Sprintf("checksum validation failed: expected %d, got %d", expected, actual), nil).
		WithDetail("expected", expected).
		WithDetail("actual", actual)
}

func InternalError(message string, cause error) *StoreError {
	return NewStoreError(ErrCodeInternal, message, cause)
}

func Unavailable(message string, cause error) *StoreError {
	return NewStoreError(ErrCodeUnavailable, message, cause)
}

func DiskFull(usagePercent float64, availableBytes uint64) *StoreError {
	return NewStoreError(ErrCodeDiskFull, fmt.Sprintf("disk full: %.2f%% used, %d bytes available", usagePercent, availableBytes), nil).
		WithDetail("usage_percent", usagePercent).
		WithDetail("available_bytes", availableBytes)
}

func DiskThrottled(usagePercent float64) *StoreError {
	return NewStoreError(ErrCodeDiskThrottled, fmt.Sprintf("disk write throttled: %.2f%% used", usagePercent), nil).
		WithDetail("usage_percent", usagePercent)
}

func JournalFailed(message string, cause error) *StoreError {
	return NewStoreError(ErrCodeJournalFailed, message, cause)
}

func SegmentFailed(message string, cause error) *StoreError {
	return NewStoreError(ErrCodeSegmentFailed, message, cause)
}

func CorruptedData(message string, cause error) *StoreError {
	return NewStoreError(ErrCodeCorruptedData, message, cause)
}

func ResourceExhausted(resource string, current, limit int) *StoreError {
	return NewStoreError(ErrCodeResourceExhausted, fmt.Sprintf("%s exhausted: %d/%d", resource, current, limit), nil).
		WithDetail("resource", resource).
		WithDetail("current", current).
		WithDetail("limit", limit)
}

// IsStoreError checks if an error is a StoreError
func IsStoreError(err error) bool {
	_, ok := err.(*StoreError)
	return ok
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if se, ok := err.(*StoreError); ok {
		return se.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err is a StoreError carrying the given code
func HasCode(err error, code ErrorCode) bool {
	se, ok := err.(*StoreError)
	return ok && se.Code == code
}
