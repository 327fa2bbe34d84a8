package call

import (
	"errors"
	"net/http"

	"github.com/steveyiyo/fluvio-host/internal/core/adapter"
	"github.com/steveyiyo/fluvio-host/internal/core/broker"
)

// StatusText maps a failed attempt to the short line shown next to the call
// button.
func StatusText(err error) string {
	var (
		he *broker.HTTPError
		ne *broker.NetworkError
		pe *broker.ProtocolError
		ae *adapter.Error
	)
	switch {
	case errors.As(err, &he):
		if he.Status == http.StatusNotFound {
			return "Webhook not found"
		}
		return "Connection failed"
	case errors.As(err, &ne):
		return "Network error"
	case errors.As(err, &pe):
		return "Connection failed"
	case errors.As(err, &ae):
		return "Error occurred"
	case errors.Is(err, ErrTimeout):
		return "Connection timed out"
	}
	return "Connection failed"
}
