package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docker/docker/errdefs"
)

// ErrResolveUnavailable means a digest lookup failed. Callers degrade to
// tag-only identity and warn rather than abort.
var ErrResolveUnavailable = errors.New("digest resolution unavailable")

// FetchError wraps a pull failure with its retry classification.
type FetchError struct {
	Ref       string
	Transient bool
	Err       error
}

func (e *FetchError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("fetch of %s failed (%s): %v", e.Ref, kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsTransient reports whether a pull error is worth retrying: network
// failures and registry throttling are, missing images and rejected
// credentials are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errdefs.IsNotFound(err) || errdefs.IsUnauthorized(err) ||
		errdefs.IsForbidden(err) || errdefs.IsInvalidParameter(err) {
		return false
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "toomanyrequests"), strings.Contains(msg, "too many requests"):
		// Anonymous-pull rate limiting.
		return true
	case strings.Contains(msg, "not found"), strings.Contains(msg, "manifest unknown"):
		return false
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "authentication required"):
		return false
	}
	// Unclassified errors (connection resets, timeouts, 5xx) are treated as
	// transient.
	return true
}
