// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// NotFoundError reports an unknown campaign (or other resource) id.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %d not found", e.Resource, e.ID)
}

// NewCampaignNotFound builds the not-found error used across the service.
func NewCampaignNotFound(id int64) error {
	return &NotFoundError{Resource: "campaign", ID: id}
}

// ValidationError reports a missing or invalid field on a synchronous
// request. Nothing is persisted when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
