package proto

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// ProtocolViolation means the peer sent something the protocol does not allow in its current state
type ProtocolViolation struct {
	MsgType MsgType
	Reason  string
}

func protocolViolation(msgtype MsgType, format string, args ...interface{}) error {
	return errors.WithStack(&ProtocolViolation{MsgType: msgtype, Reason: fmt.Sprintf(format, args...)})
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation on %s: %s", e.MsgType, e.Reason)
}

// Format prints the violation
func (e *ProtocolViolation) Format(s fmt.State, verb rune) {
	io.WriteString(s, e.Error())
}

// IsProtocolViolation checks if err is or wraps a ProtocolViolation
func IsProtocolViolation(err error) bool {
	var pv *ProtocolViolation
	return errors.As(err, &pv)
}

// Violation builds a ProtocolViolation for handlers outside this package
func Violation(msgtype MsgType, format string, args ...interface{}) error {
	return protocolViolation(msgtype, format, args...)
}
