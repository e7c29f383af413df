// scry/pkg/logging/errors.go

package logging

import (
	"fmt"

	"github.com/rs/zerolog"
)

type ErrorType string

const (
	ErrorTypeParse   ErrorType = "PARSE"
	ErrorTypeCompile ErrorType = "COMPILE"
	ErrorTypeMatch   ErrorType = "MATCH"
	ErrorTypeExtract ErrorType = "EXTRACT"
	ErrorTypeStore   ErrorType = "STORE"
)

type ScryError struct {
	Type    ErrorType
	Message string
	Err     error
	Fields  map[string]interface{}
}

func (e *ScryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *ScryError) Unwrap() error {
	return e.Err
}

func NewError(errType ErrorType, message string, err error, fields map[string]interface{}) *ScryError {
	return &ScryError{
		Type:    errType,
		Message: message,
		Err:     err,
		Fields:  fields,
	}
}

func LogError(logger zerolog.Logger, err error) {
	scryErr, ok := err.(*ScryError)
	if !ok {
		logger.Error().Err(err).Msg(err.Error())
		return
	}

	event := logger.Error().Err(scryErr.Err).
		Str("error_type", string(scryErr.Type)).
		Str("message", scryErr.Message)

	for k, v := range scryErr.Fields {
		event = event.Interface(k, v)
	}

	event.Msg(scryErr.Message)
}
