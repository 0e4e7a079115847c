// Package errors defines the typed application errors shared by the bot core.
// Every error carries a code so callers can report failures without string matching.
package errors

import (
	"errors"
	"fmt"
)

// Standard error codes for the application.
const (
	CodeUnknown       = "UNKNOWN"
	CodeValidation    = "VALIDATION"
	CodeAuthorization = "AUTHORIZATION"
	CodeTransport     = "TRANSPORT"
	CodePersistence   = "PERSISTENCE"
	CodeTimeSource    = "TIME_SOURCE"
)

// ApplicationError is the interface that all our custom errors implement.
type ApplicationError interface {
	error
	Code() string
	Unwrap() error
}

// Error represents a basic application error.
type Error struct {
	code    string
	message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}

	return e.message
}

func (e *Error) Code() string {
	return e.code
}

func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the code of the first ApplicationError in the chain,
// or CodeUnknown if it doesn't.
func Code(err error) string {
	var appErr ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}

	return CodeUnknown
}

// ValidationError reports malformed, user-correctable input. It never
// accompanies a state mutation.
type ValidationError struct {
	base Error
}

func (e *ValidationError) Error() string {
	return e.base.Error()
}

func (e *ValidationError) Code() string {
	return e.base.Code()
}

func (e *ValidationError) Unwrap() error {
	return e.base.Unwrap()
}

func NewValidationError(message string, cause error) error {
	return &ValidationError{
		base: Error{
			code:    CodeValidation,
			message: message,
			err:     cause,
		},
	}
}

// AuthorizationError reports an operator-only action attempted by someone else.
type AuthorizationError struct {
	base Error
}

func (e *AuthorizationError) Error() string {
	return e.base.Error()
}

func (e *AuthorizationError) Code() string {
	return e.base.Code()
}

func (e *AuthorizationError) Unwrap() error {
	return e.base.Unwrap()
}

func NewAuthorizationError(message string) error {
	return &AuthorizationError{
		base: Error{
			code:    CodeAuthorization,
			message: message,
		},
	}
}

// TransportError reports a failed outbound send to a single destination.
type TransportError struct {
	base Error
	// ChatID is the destination the send was addressed to.
	ChatID int64
}

func (e *TransportError) Error() string {
	return e.base.Error()
}

func (e *TransportError) Code() string {
	return e.base.Code()
}

func (e *TransportError) Unwrap() error {
	return e.base.Unwrap()
}

func NewTransportError(chatID int64, message string, cause error) error {
	return &TransportError{
		base: Error{
			code:    CodeTransport,
			message: message,
			err:     cause,
		},
		ChatID: chatID,
	}
}

type PersistenceError struct {
	base Error
}

func (e *PersistenceError) Error() string {
	return e.base.Error()
}

func (e *PersistenceError) Code() string {
	return e.base.Code()
}

func (e *PersistenceError) Unwrap() error {
	return e.base.Unwrap()
}

func NewPersistenceError(message string, cause error) error {
	return &PersistenceError{
		base: Error{
			code:    CodePersistence,
			message: message,
			err:     cause,
		},
	}
}

type TimeSourceError struct {
	base Error
}

func (e *TimeSourceError) Error() string {
	return e.base.Error()
}

func (e *TimeSourceError) Code() string {
	return e.base.Code()
}

func (e *TimeSourceError) Unwrap() error {
	return e.base.Unwrap()
}

func NewTimeSourceError(message string, cause error) error {
	return &TimeSourceError{
		base: Error{
			code:    CodeTimeSource,
			message: message,
			err:     cause,
		},
	}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsAuthorization(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}

func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

func IsPersistence(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}

func IsTimeSource(err error) bool {
	var target *TimeSourceError
	return errors.As(err, &target)
}
