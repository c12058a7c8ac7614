package ipc

import (
	"errors"
	"fmt"

	"github.com/railmon/powerstats/internal/parcel"
)

// Code is the exception code carried in a reply's status header.
type Code int32

const (
	CodeOK              Code = 0
	CodeSecurity        Code = -1
	CodeIllegalArgument Code = -3
	CodeIllegalState    Code = -5
	CodeUnsupported     Code = -7
	CodeServiceSpecific Code = -8
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeSecurity:
		return "security"
	case CodeIllegalArgument:
		return "illegal argument"
	case CodeIllegalState:
		return "illegal state"
	case CodeUnsupported:
		return "unsupported operation"
	case CodeServiceSpecific:
		return "service-specific"
	}
	return fmt.Sprintf("code %d", int32(c))
}

// Sentinels matching the non-OK status codes, for errors.Is.
var (
	ErrSecurity        = errors.New("ipc: security exception")
	ErrIllegalArgument = errors.New("ipc: illegal argument")
	ErrIllegalState    = errors.New("ipc: illegal state")
	ErrUnsupported     = errors.New("ipc: unsupported operation")
)

// Status is a service-raised exception decoded from a reply. A nil *Status
// means OK; Transact returns non-OK statuses as errors.
type Status struct {
	Code        Code
	Message     string
	ServiceCode int32
}

// Errorf builds a Status with a formatted message. Stubs return it from
// Transact to control the reply's status header.
func Errorf(code Code, format string, a ...any) *Status {
	return &Status{Code: code, Message: fmt.Sprintf(format, a...)}
}

// ServiceError builds a service-specific Status carrying a service-defined
// code alongside the message.
func ServiceError(code int32, msg string) *Status {
	return &Status{Code: CodeServiceSpecific, Message: msg, ServiceCode: code}
}

func (s *Status) Error() string {
	msg := fmt.Sprintf("ipc: %s exception", s.Code)
	if s.Code == CodeServiceSpecific {
		msg = fmt.Sprintf("%s (%d)", msg, s.ServiceCode)
	}
	if s.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, s.Message)
	}
	return msg
}

// Is matches the sentinel corresponding to the status code.
func (s *Status) Is(target error) bool {
	switch target {
	case ErrSecurity:
		return s.Code == CodeSecurity
	case ErrIllegalArgument:
		return s.Code == CodeIllegalArgument
	case ErrIllegalState:
		return s.Code == CodeIllegalState
	case ErrUnsupported:
		return s.Code == CodeUnsupported
	}
	return false
}

// writeStatus writes the reply status header. nil encodes as OK.
func writeStatus(w *parcel.Writer, s *Status) {
	if s == nil || s.Code == CodeOK {
		w.WriteInt32(int32(CodeOK))
		return
	}
	w.WriteInt32(int32(s.Code))
	w.WriteString16(s.Message)
	if s.Code == CodeServiceSpecific {
		w.WriteInt32(s.ServiceCode)
	}
}

// readStatus reads the reply status header, returning nil for OK.
func readStatus(r *parcel.Reader) (*Status, error) {
	code, err := r.Int32()
	if err != nil {
		return nil, err
	}
	if Code(code) == CodeOK {
		return nil, nil
	}
	msg, err := r.String16()
	if err != nil {
		return nil, err
	}
	st := &Status{Code: Code(code), Message: msg}
	if st.Code == CodeServiceSpecific {
		if st.ServiceCode, err = r.Int32(); err != nil {
			return nil, err
		}
	}
	return st, nil
}
