// internal/transport/transport.go
package transport

import (
	"context"
	"fmt"
)

// Transport is the external delivery collaborator (email/SMS provider). It
// can fail transiently; the dispatch pool owns retries.
type Transport interface {
	// Send delivers the rendered body to the recipient address and returns
	// the provider's message id on success.
	Send(ctx context.Context, to, body string) (string, error)
}

// TransientError marks a failure worth retrying: timeouts, rate limits,
// provider 5xx.
type TransientError struct {
	Reason string
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient delivery failure: %s", e.Reason)
}

// PermanentError marks a failure that retrying cannot fix: malformed
// recipient address, rejected content.
type PermanentError struct {
	Reason string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent delivery failure: %s", e.Reason)
}
