package utils

import (
	"errors"
	"fmt"
)

// Kind 错误分类，每个请求阶段对应一种
type Kind string

const (
	KindConfig    Kind = "ConfigError"
	KindAuth      Kind = "AuthError"
	KindRetrieval Kind = "RetrievalError"
	KindDecode    Kind = "DecodeError"
	KindModel     Kind = "ModelError"
	KindDelivery  Kind = "DeliveryError"
	KindUnknown   Kind = "UnknownError"
)

// AppError is the error contract shared by every layer of the relay.
type AppError struct {
	Kind    Kind
	Op      string // operation name, ex: "speech.Transcode"
	Message string // safe message
	Err     error  // wrapped error
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch {
	case e.Op != "" && e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Op != "" && e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *AppError) Unwrap() error { return e.Err }

// E 构造一个带分类的错误
func E(kind Kind, op, msg string, err error) error {
	return &AppError{Kind: kind, Op: op, Message: msg, Err: err}
}

// KindOf returns the kind of the outermost AppError in the chain, or
// KindUnknown when err carries none.
func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
