package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInvalidInput marks malformed or missing caller parameters.
	// Raised before any network call and never retried.
	ErrorTypeInvalidInput  ErrorType = "InvalidInput"
	ErrorTypeNetwork       ErrorType = "Network"
	ErrorTypePersistence   ErrorType = "Persistence"
	ErrorTypeConfiguration ErrorType = "Configuration"
	ErrorTypeBackend       ErrorType = "Backend"
)

// Service identifies the collaborator an error came from
type Service string

const (
	ServiceViaCEP    Service = "ViaCEP"
	ServiceNominatim Service = "Nominatim"
	ServiceStorage   Service = "Storage"
	ServiceBackend   Service = "Backend"
	ServiceCache     Service = "Cache"
	ServiceUnknown   Service = "Unknown"
)

// MobilityError is a user-facing error with optional guidance
type MobilityError struct {
	Type      ErrorType
	Service   Service
	Message   string
	Cause     string
	Solutions []string
	Help      string
	Err       error
}

// Error implements the error interface
func (e *MobilityError) Error() string {
	var sb strings.Builder

	sb.WriteString(e.Message)

	if e.Cause != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Cause)
	}

	return sb.String()
}

// Unwrap exposes the underlying error to errors.Is / errors.As
func (e *MobilityError) Unwrap() error {
	return e.Err
}

// Format implements fmt.Formatter for custom formatting
func (e *MobilityError) Format(f fmt.State, verb rune) {
	switch verb {
	case 's':
		fmt.Fprintf(f, "%s", e.Error())
	case 'q':
		fmt.Fprintf(f, "%q", e.Error())
	case 'v':
		if f.Flag('+') {
			fmt.Fprintf(f, "[%s/%s] %s", e.Type, e.Service, e.Error())
			if len(e.Solutions) > 0 {
				fmt.Fprintf(f, " (solutions: %s)", strings.Join(e.Solutions, "; "))
			}
		} else {
			fmt.Fprintf(f, "%s", e.Error())
		}
	}
}

// New creates a new MobilityError
func New(errType ErrorType, service Service, message string) *MobilityError {
	return &MobilityError{
		Type:    errType,
		Service: service,
		Message: message,
	}
}

// Wrap creates a MobilityError carrying err as its cause
func Wrap(errType ErrorType, service Service, message string, err error) *MobilityError {
	e := New(errType, service, message)
	if err != nil {
		e.Err = err
		e.Cause = err.Error()
	}
	return e
}

// WithCause adds cause information
func (e *MobilityError) WithCause(cause string) *MobilityError {
	e.Cause = cause
	return e
}

// WithSolutions adds solution steps
func (e *MobilityError) WithSolutions(solutions ...string) *MobilityError {
	e.Solutions = append(e.Solutions, solutions...)
	return e
}

// WithHelp adds help command
func (e *MobilityError) WithHelp(help string) *MobilityError {
	e.Help = help
	return e
}

// InvalidInput creates an input validation error
func InvalidInput(service Service, message string) *MobilityError {
	return New(ErrorTypeInvalidInput, service, message)
}

// Network creates a transport or HTTP status error
func Network(service Service, message string, err error) *MobilityError {
	return Wrap(ErrorTypeNetwork, service, message, err).
		WithSolutions("Check your internet connection", "Retry the lookup")
}

// Persistence creates a durable storage error
func Persistence(message string, err error) *MobilityError {
	return Wrap(ErrorTypePersistence, ServiceStorage, message, err)
}

// Backend creates a document store error
func Backend(message string, err error) *MobilityError {
	return Wrap(ErrorTypeBackend, ServiceBackend, message, err)
}

// TypeOf returns the ErrorType of err, or "" when err is not a MobilityError
func TypeOf(err error) ErrorType {
	var me *MobilityError
	if stderrors.As(err, &me) {
		return me.Type
	}
	return ""
}

// IsType reports whether err (or anything it wraps) has the given type
func IsType(err error, errType ErrorType) bool {
	return err != nil && TypeOf(err) == errType
}

// IsUserError checks if error requires user action
func IsUserError(err error) bool {
	var me *MobilityError
	return stderrors.As(err, &me)
}

// GetExitCode returns appropriate exit code for error type
func GetExitCode(err error) int {
	switch TypeOf(err) {
	case ErrorTypeInvalidInput:
		return 64 // EX_USAGE
	case ErrorTypeNetwork:
		return 69 // EX_UNAVAILABLE
	case ErrorTypePersistence:
		return 74 // EX_IOERR
	case ErrorTypeConfiguration:
		return 78 // EX_CONFIG
	default:
		return 1
	}
}
