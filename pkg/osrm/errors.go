package osrm

import (
	"github.com/rotisserie/eris"

	"github.com/walkshed/access-cli/internal/resilience"
)

// statusErr converts a non-200 engine response into an error, marking
// retryable server-side statuses as transient.
func statusErr(statusCode int, body []byte) error {
	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	err := eris.Errorf("osrm: engine returned status %d: %s", statusCode, snippet)
	if resilience.IsTransientHTTPStatus(statusCode) {
		return resilience.NewTransientError(err, statusCode)
	}
	return err
}
