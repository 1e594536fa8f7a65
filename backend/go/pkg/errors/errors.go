// Package errors gives every failure in the RAG pipeline a machine-readable code.
//
// Codes are carried on samber/oops errors so that structured context survives
// wrapping. When several coded errors are chained, CodeOf reports the root cause.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeUnsupportedFormat      Code = "UNSUPPORTED_FORMAT"
	CodeEmptyOrCorruptDocument Code = "EMPTY_OR_CORRUPT_DOCUMENT"
	CodePathNotAllowed         Code = "PATH_NOT_ALLOWED"

	CodeEmbedding         Code = "EMBEDDING_ERROR"
	CodeDimensionMismatch Code = "DIMENSION_MISMATCH"
	CodePersistence       Code = "PERSISTENCE_ERROR"
	CodeRetrieval         Code = "RETRIEVAL_ERROR"
	CodeGeneration        Code = "GENERATION_ERROR"

	CodeProtocolTimeout   Code = "PROTOCOL_TIMEOUT"
	CodeProtocolTransport Code = "PROTOCOL_TRANSPORT_ERROR"

	CodeCircuitOpen   Code = "CIRCUIT_OPEN"
	CodeConfigInvalid Code = "CONFIG_INVALID"
	CodeInternal      Code = "INTERNAL_ERROR"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldPath(path string) Attr {
	return Field("path", path)
}

func FieldTraceID(traceID string) Attr {
	return Field("trace_id", traceID)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}
	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return oops.Code(code).Wrapf(err, format, args...)
}

// CodeOf returns the code of err, or "" for uncoded errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	switch code := oopsErr.Code().(type) {
	case Code:
		return code
	case string:
		return Code(code)
	case nil:
		return ""
	default:
		return Code(fmt.Sprintf("%v", code))
	}
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// IsEmbedding reports whether err came from the embedding capability,
// including a vector of the wrong dimension.
func IsEmbedding(err error) bool {
	code := CodeOf(err)
	return code == CodeEmbedding || code == CodeDimensionMismatch
}

func IsPersistence(err error) bool {
	return HasCode(err, CodePersistence)
}

func IsTimeout(err error) bool {
	return HasCode(err, CodeProtocolTimeout)
}

func IsTransport(err error) bool {
	return HasCode(err, CodeProtocolTransport)
}

// IsBadInput reports whether err describes a document the pipeline cannot use.
func IsBadInput(err error) bool {
	switch CodeOf(err) {
	case CodeUnsupportedFormat, CodeEmptyOrCorruptDocument, CodePathNotAllowed:
		return true
	}
	return false
}

func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeProtocolTransport, CodeUnsupportedFormat, CodeEmptyOrCorruptDocument, CodeConfigInvalid:
		return http.StatusBadRequest
	case CodePathNotAllowed:
		return http.StatusForbidden
	case CodeProtocolTimeout:
		return http.StatusGatewayTimeout
	case CodeEmbedding, CodeGeneration, CodeCircuitOpen:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	joined := stderrors.Join(errs...)
	if joined == nil {
		return nil
	}
	return oops.Code(CodeInternal).Wrap(joined)
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}
