package gwcrypto

import (
	"fmt"

	"github.com/pkg/errors"
)

// HandshakeError means the key agreement failed and no frame of the connection can be trusted
type HandshakeError struct {
	err error
}

func handshakeError(err error) error {
	return &HandshakeError{err: err}
}

func (e *HandshakeError) Error() string {
	return "handshake failed: " + e.err.Error()
}

// Cause returns the underlying error
func (e *HandshakeError) Cause() error {
	return e.err
}

// Unwrap returns the underlying error
func (e *HandshakeError) Unwrap() error {
	return e.err
}

// Format prints the causal chain with %+v
func (e *HandshakeError) Format(s fmt.State, verb rune) {
	formatChain(s, verb, "handshake failed", e.err)
}

// AuthenticationError means a frame failed MAC verification
type AuthenticationError struct {
	err error
}

func authenticationError(err error) error {
	return &AuthenticationError{err: err}
}

func (e *AuthenticationError) Error() string {
	return "authentication failed: " + e.err.Error()
}

// Cause returns the underlying error
func (e *AuthenticationError) Cause() error {
	return e.err
}

// Unwrap returns the underlying error
func (e *AuthenticationError) Unwrap() error {
	return e.err
}

// Format prints the causal chain with %+v
func (e *AuthenticationError) Format(s fmt.State, verb rune) {
	formatChain(s, verb, "authentication failed", e.err)
}

// IsHandshakeError checks if err is or wraps a HandshakeError
func IsHandshakeError(err error) bool {
	var he *HandshakeError
	return errors.As(err, &he)
}

// IsAuthenticationError checks if err is or wraps an AuthenticationError
func IsAuthenticationError(err error) bool {
	var ae *AuthenticationError
	return errors.As(err, &ae)
}

func formatChain(s fmt.State, verb rune, msg string, err error) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "%s: %+v", msg, err)
		return
	}
	fmt.Fprintf(s, "%s: %s", msg, err.Error())
}

// WrapHandshakeError marks err as a handshake failure
func WrapHandshakeError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if IsHandshakeError(err) {
		return err
	}
	return handshakeError(errors.Wrap(err, msg))
}
