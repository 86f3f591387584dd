package inference

import (
	"net/http"
	"time"
)

// Option applies a configuration option to the HTTPClient.
type Option func(*HTTPClient)

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithMaxImageSize bounds the longer side of uploaded images.
func WithMaxImageSize(px int) Option {
	return func(c *HTTPClient) {
		if px > 0 {
			c.maxImageSize = px
		}
	}
}
