package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ProviderError is a failed provider call. Status is the HTTP status when the
// provider answered, or zero when the request never got a response.
type ProviderError struct {
	Provider  string
	Status    int
	Temporary bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s: status %d", e.Provider, e.Status)
	}
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether a call that failed with err may be attempted
// again under ctx. Once ctx is done nothing is retryable: a deadline that
// expired ctx itself would expire the next attempt too. A deadline raised
// inside the provider's HTTP client while ctx is still live is retryable.
func Retryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx != nil && ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Temporary || retryableStatus(provErr.Status)
	}
	return false
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return status >= 500 && status <= 599
}
