package identity

import (
	"fmt"

	"github.com/dmitrijs2005/idsync/internal/common"
	"github.com/dmitrijs2005/idsync/internal/request"
)

// ServerError is a non-200 identity response.
type ServerError struct {
	Status int
	Errors []request.ResponseError
}

func (e *ServerError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("identity service returned %d: %s", e.Status, e.Errors[0].Message)
	}
	return fmt.Sprintf("identity service returned %d", e.Status)
}

func (e *ServerError) Unwrap() error { return common.ErrServer }

// TransportError means the identity service could not be reached or its
// reply could not be read.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "identity transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() []error { return []error{common.ErrTransport, e.Err} }
