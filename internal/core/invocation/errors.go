package invocation

import (
	"errors"
	"fmt"
	"time"

	"github.com/zeusync/zeuswire/internal/core/interfacedef"
)

// Core invocation errors
var (
	// Chain errors

	ErrNoInvocationChain = errors.New("no invocation chain for operation")
	ErrChainSealed       = errors.New("invocation chain is sealed")
	ErrUnknownPhase      = errors.New("unknown interceptor phase")
	ErrNoTargetInvoker   = errors.New("invocation chain has no target invoker")

	// Conversation errors

	ErrConversationEnded = errors.New("conversation has ended")

	// Callback errors

	ErrNoRegisteredCallback = errors.New("no registered callback")
	ErrNoCallbackWire       = errors.New("no callback wire found")

	// Policy errors

	ErrUnauthenticated = errors.New("unauthenticated")
	ErrRateLimited     = errors.New("rate limit exceeded")

	// Target errors

	ErrOperationNotFound = errors.New("operation not found")
	ErrTargetUnavailable = errors.New("target unavailable")
)

// ErrorCode is a numeric classification of invocation errors.
type ErrorCode int

const (
	ErrorCodeSuccess ErrorCode = 0

	// Chain error codes (1000-1999)

	ErrorCodeNoInvocationChain ErrorCode = 1001
	ErrorCodeChainSealed       ErrorCode = 1002
	ErrorCodeUnknownPhase      ErrorCode = 1003
	ErrorCodeNoTargetInvoker   ErrorCode = 1004

	// Conversation error codes (2000-2999)

	ErrorCodeConversationEnded ErrorCode = 2001

	// Callback error codes (3000-3999)

	ErrorCodeNoRegisteredCallback ErrorCode = 3001
	ErrorCodeNoCallbackWire       ErrorCode = 3002

	// Policy error codes (4000-4999)

	ErrorCodeUnauthenticated ErrorCode = 4001
	ErrorCodeRateLimited     ErrorCode = 4002

	// Target error codes (5000-5999)

	ErrorCodeOperationNotFound ErrorCode = 5001
	ErrorCodeTargetUnavailable ErrorCode = 5002

	ErrorCodeUnknown ErrorCode = 9999
)

var errorCodeMap = map[error]ErrorCode{
	ErrNoInvocationChain:    ErrorCodeNoInvocationChain,
	ErrChainSealed:          ErrorCodeChainSealed,
	ErrUnknownPhase:         ErrorCodeUnknownPhase,
	ErrNoTargetInvoker:      ErrorCodeNoTargetInvoker,
	ErrConversationEnded:    ErrorCodeConversationEnded,
	ErrNoRegisteredCallback: ErrorCodeNoRegisteredCallback,
	ErrNoCallbackWire:       ErrorCodeNoCallbackWire,
	ErrUnauthenticated:      ErrorCodeUnauthenticated,
	ErrRateLimited:          ErrorCodeRateLimited,
	ErrOperationNotFound:    ErrorCodeOperationNotFound,
	ErrTargetUnavailable:    ErrorCodeTargetUnavailable,
}

// Error is a coded invocation error carrying optional context.
type Error struct {
	Code      ErrorCode
	Message   string
	Cause     error
	Context   map[string]any
	Timestamp time.Time
}

func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// GetErrorCode classifies err using the sentinel table and coded errors.
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ErrorCodeSuccess
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ErrorCodeUnknown
}

// SentinelFor returns the sentinel error classified by code, or nil.
func SentinelFor(code ErrorCode) error {
	for sentinel, c := range errorCodeMap {
		if c == code {
			return sentinel
		}
	}
	return nil
}

// WrapError wraps err into a coded Error.
func WrapError(err error, message string) *Error {
	return NewError(GetErrorCode(err), message, err)
}

// InvocationTargetError reports a fault returned by the invocation chain.
// Fault is the fault body; business faults are *FaultException values or
// declared fault types, anything else is a system fault.
type InvocationTargetError struct {
	Fault error
}

func (e *InvocationTargetError) Error() string {
	return "invocation target fault: " + e.Fault.Error()
}

func (e *InvocationTargetError) Unwrap() error {
	return e.Fault
}

// ServiceRuntimeError reports a configuration problem or an unexpected
// failure inside the runtime.
type ServiceRuntimeError struct {
	Operation string
	Cause     error
}

func (e *ServiceRuntimeError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("service runtime error in %s: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("service runtime error: %v", e.Cause)
}

func (e *ServiceRuntimeError) Unwrap() error {
	return e.Cause
}

// ConversationEndedError is returned when a call targets an expired
// conversation.
type ConversationEndedError struct {
	ConversationID string
}

func (e *ConversationEndedError) Error() string {
	return fmt.Sprintf("conversation %s has expired", e.ConversationID)
}

func (e *ConversationEndedError) Is(target error) bool {
	return target == ErrConversationEnded
}

// FaultException is a declared business fault. FaultInfo carries the fault
// payload and Logical the logical type of that payload.
type FaultException struct {
	Message   string
	FaultInfo any
	Logical   any
	Cause     error
}

func NewFaultException(message string, faultInfo any, logical any) *FaultException {
	return &FaultException{Message: message, FaultInfo: faultInfo, Logical: logical}
}

func (e *FaultException) Error() string {
	return e.Message
}

func (e *FaultException) Unwrap() error {
	return e.Cause
}

// IsMatchingType reports whether the fault was raised for the given logical
// type. Element names are compared with trailing slash tolerance.
func (e *FaultException) IsMatchingType(logical any) bool {
	if e.Logical == nil {
		return false
	}
	if faultType, ok := logical.(*interfacedef.DataType); ok {
		logical = faultType.Logical
	}
	return interfacedef.TypesMatch(e.Logical, logical)
}

// FaultError converts a fault body to an error.
func FaultError(body any) error {
	switch f := body.(type) {
	case nil:
		return errors.New("fault without body")
	case *InvocationTargetError:
		return f.Fault
	case error:
		return f
	default:
		return fmt.Errorf("fault: %v", f)
	}
}
