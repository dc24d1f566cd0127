package dns

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"
)

// DefaultMaxRetries is how many times a failed call is retried when the
// provider settings do not say otherwise.
const DefaultMaxRetries = 4

// NewBackoff returns the backoff used around every remote call.
// maxRetries of 0 means a single attempt.
func NewBackoff(maxRetries int) wait.Backoff {
	return wait.Backoff{
		Steps:    maxRetries + 1,
		Duration: 500 * time.Millisecond,
		Factor:   2.0,
		Jitter:   0.1,
		Cap:      30 * time.Second,
	}
}

// CallWithBackoff runs fn until it succeeds, fails with an error IsRetryable
// rejects, or the backoff is exhausted. The last error is returned.
func CallWithBackoff(log logr.Logger, backoff wait.Backoff, op string, fn func() error) error {
	attempt := 0
	return retry.OnError(backoff, IsRetryable, func() error {
		attempt++
		err := fn()
		if err != nil && IsRetryable(err) {
			log.V(1).Info("retryable failure", "operation", op, "attempt", attempt, "error", err.Error())
		}
		return err
	})
}

// IntSetting parses an integer provider setting, returning def when unset.
func IntSetting(settings map[string]string, key string, def int) (int, error) {
	v := strings.TrimSpace(settings[key])
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", key, v)
	}
	return n, nil
}

// BoolSetting reports whether a provider setting is "true".
func BoolSetting(settings map[string]string, key string) bool {
	return strings.EqualFold(strings.TrimSpace(settings[key]), "true")
}
