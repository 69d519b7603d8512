package directory

import (
	"errors"
	"fmt"

	"github.com/go-ldap/ldap/v3"
)

// Kind tags directory errors so callers can dispatch without string matching.
type Kind int

const (
	KindBindFailed Kind = iota + 1
	KindSearchFailed
	KindModifyFailed
	KindCreateFailed
	KindDeleteFailed
	KindMoveFailed
	KindNotFound
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindBindFailed:
		return "bind failed"
	case KindSearchFailed:
		return "search failed"
	case KindModifyFailed:
		return "modify failed"
	case KindCreateFailed:
		return "create failed"
	case KindDeleteFailed:
		return "delete failed"
	case KindMoveFailed:
		return "move failed"
	case KindNotFound:
		return "not found"
	case KindInvalidArgument:
		return "invalid argument"
	}
	return "unknown"
}

// Error is the structured error returned by every directory operation.
type Error struct {
	Kind   Kind
	Op     string
	DN     string
	Server string // server-provided diagnostic, when present
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("directory %s: %s", e.Op, e.Kind)
	if e.DN != "" {
		msg += " (" + e.DN + ")"
	}
	if e.Server != "" {
		msg += ": " + e.Server
	}
	if e.Err != nil && e.Server == "" {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func opError(kind Kind, op, dn string, err error) *Error {
	return &Error{Kind: kind, Op: op, DN: dn, Server: serverMessage(err), Err: err}
}

// serverMessage extracts the server diagnostic from a go-ldap error.
func serverMessage(err error) string {
	var lerr *ldap.Error
	if errors.As(err, &lerr) && lerr.Err != nil {
		return fmt.Sprintf("code %d: %s", lerr.ResultCode, lerr.Err.Error())
	}
	return ""
}

// IsNotFound reports whether err is a directory lookup miss.
func IsNotFound(err error) bool {
	var derr *Error
	return errors.As(err, &derr) && derr.Kind == KindNotFound
}
