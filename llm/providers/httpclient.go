package providers

import (
	"net/http"
	"time"

	"github.com/BaSui01/convtree/internal/tlsutil"
)

// NewHTTPClient returns the client shared by one provider instance. Long
// generations are common, so idle connections are kept per host.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: tlsutil.Transport(16),
	}
}
