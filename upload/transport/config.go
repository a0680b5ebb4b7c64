package transport

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Default endpoint paths of the receiver.
const (
	DefaultBinaryPath = "/file"
	DefaultJSONPath   = "/file_json"
)

var (
	// ErrMissingBaseURL ...
	ErrMissingBaseURL = errors.New("base URL must be set")
	// ErrInvalidTimeout ...
	ErrInvalidTimeout = errors.New("timeout must not be negative")
	// ErrInvalidRetryMax ...
	ErrInvalidRetryMax = errors.New("retry max must not be negative")
)

// Config holds configuration for the HTTP transports.
type Config struct {
	// BaseURL is the scheme and host of the receiver, e.g. http://127.0.0.1:10003
	BaseURL string

	// BinaryPath is the endpoint of the multipart variant.
	// Default: /file
	BinaryPath string

	// JSONPath is the endpoint of the JSON variant.
	// Default: /file_json
	JSONPath string

	// Token is sent as a bearer token when set.
	Token string

	// Timeout bounds a single partition request, including reading the response.
	// Zero disables it.
	// Default: 5 minutes
	Timeout time.Duration

	// RetryMax is the number of HTTP level retries of one request.
	// Default: 0, retrying is left to the caller.
	RetryMax int

	// CompressJSON gzips the JSON variant's body. The receiver must accept Content-Encoding: gzip.
	CompressJSON bool

	// HTTPClient is the HTTP client to use for uploads.
	// If nil, a default client will be created.
	HTTPClient *http.Client
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BinaryPath: DefaultBinaryPath,
		JSONPath:   DefaultJSONPath,
		Timeout:    5 * time.Minute,
		RetryMax:   0,
		HTTPClient: nil, // Will be created by the transport
	}
}

// Validate ensures the configuration is valid.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return ErrMissingBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid base URL %q: scheme must be http or https", c.BaseURL)
	}
	if c.Timeout < 0 {
		return ErrInvalidTimeout
	}
	if c.RetryMax < 0 {
		return ErrInvalidRetryMax
	}
	return nil
}

func (c Config) endpoint(path string) string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

// DefaultHTTPClient creates an HTTP client for partition uploads.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		// No timeout - individual partition timeouts are handled via context
		Timeout: 0,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxConnsPerHost:     2,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			Proxy:               http.ProxyFromEnvironment,
		},
	}
}
