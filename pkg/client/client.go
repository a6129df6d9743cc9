package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/threatflux/scangate/internal/models"
)

// API paths
const (
	APIPathAuth           = "/v1/auth"
	APIPathScanRepository = "/v1/scan/repository"
)

// AuthTokenHeader carries the session token on every authenticated call
const AuthTokenHeader = "X-Auth-Token"

// Common errors
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrEmptyToken       = errors.New("authentication response did not contain a token")
	ErrTimeout          = errors.New("request timeout")
	ErrConnectionFailed = errors.New("connection failed")
)

// --- Client Configuration ---

// ClientOption represents a functional option for configuring the client
type ClientOption func(*ClientConfig) error

// ClientConfig represents the configuration for the client
type ClientConfig struct {
	BaseURL               string
	Timeout               time.Duration
	MaxRetries            int
	RetryDelay            time.Duration
	UserAgent             string
	HTTPClient            *http.Client
	Headers               map[string]string
	TLSInsecureSkipVerify bool
	Logger                *logrus.Logger
}

// DefaultClientConfig returns the default client configuration.
// Timeout is zero because the scan endpoint blocks until the scanner has news.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:               "https://localhost:10443",
		Timeout:               0,
		MaxRetries:            0,
		RetryDelay:            time.Second,
		UserAgent:             "scangate/1.0",
		Headers:               make(map[string]string),
		TLSInsecureSkipVerify: false,
	}
}

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(config *ClientConfig) error {
		if baseURL == "" {
			return fmt.Errorf("base URL cannot be empty")
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid base URL: %q must be absolute", baseURL)
		}
		config.BaseURL = baseURL
		return nil
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(config *ClientConfig) error {
		if timeout < 0 {
			return fmt.Errorf("timeout must not be negative")
		}
		config.Timeout = timeout
		return nil
	}
}

// WithRetryOptions sets how often a request is retried after a transport timeout
func WithRetryOptions(maxRetries int, retryDelay time.Duration) ClientOption {
	return func(config *ClientConfig) error {
		if maxRetries < 0 {
			return fmt.Errorf("max retries must be non-negative")
		}
		if retryDelay < 0 {
			return fmt.Errorf("retry delay must be non-negative")
		}
		config.MaxRetries = maxRetries
		config.RetryDelay = retryDelay
		return nil
	}
}

// WithUserAgent sets the user agent
func WithUserAgent(userAgent string) ClientOption {
	return func(config *ClientConfig) error {
		if userAgent == "" {
			return fmt.Errorf("user agent cannot be empty")
		}
		config.UserAgent = userAgent
		return nil
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(config *ClientConfig) error {
		if client == nil {
			return fmt.Errorf("HTTP client cannot be nil")
		}
		config.HTTPClient = client
		return nil
	}
}

// WithHeader adds an HTTP header
func WithHeader(key, value string) ClientOption {
	return func(config *ClientConfig) error {
		if key == "" {
			return fmt.Errorf("header key cannot be empty")
		}
		if config.Headers == nil {
			config.Headers = make(map[string]string)
		}
		config.Headers[key] = value
		return nil
	}
}

// WithTLSInsecureSkipVerify sets the TLS insecure skip verify option
func WithTLSInsecureSkipVerify(skip bool) ClientOption {
	return func(config *ClientConfig) error {
		config.TLSInsecureSkipVerify = skip
		return nil
	}
}

// WithStrictTLS is the inverse of WithTLSInsecureSkipVerify
func WithStrictTLS(strict bool) ClientOption {
	return WithTLSInsecureSkipVerify(!strict)
}

// WithLogger sets the logger used for request diagnostics
func WithLogger(logger *logrus.Logger) ClientOption {
	return func(config *ClientConfig) error {
		config.Logger = logger
		return nil
	}
}

// ScannerAPI is the capability set of the scanning service
type ScannerAPI interface {
	// Authenticate exchanges credentials for a session token
	Authenticate(ctx context.Context, username, password string) (*AuthResponse, error)

	// ScanRepository scans an image held in an external registry
	ScanRepository(ctx context.Context, registry models.RegistryAuth, repository, tag string, scanLayers bool) (*models.VulnerabilityReport, error)

	// ScanLocalRepository scans an image already present on the scanning host
	ScanLocalRepository(ctx context.Context, repository, tag string, scanLayers bool) (*models.VulnerabilityReport, error)

	// Deauthenticate closes the session on the service side
	Deauthenticate(ctx context.Context) error

	// CheckAvailable probes whether the service is ready to accept requests
	CheckAvailable(ctx context.Context) (bool, error)
}

// APIClient implements ScannerAPI over HTTP/JSON
type APIClient struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *logrus.Logger
	token      string
}

var _ ScannerAPI = (*APIClient)(nil)

// NewClient creates a new API client
func NewClient(opts ...ClientOption) (*APIClient, error) {
	config := DefaultClientConfig()

	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, fmt.Errorf("option application failed: %w", err)
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = logrus.New()
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: config.TLSInsecureSkipVerify}
		httpClient = &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		}
	} else if config.TLSInsecureSkipVerify {
		if transport, ok := httpClient.Transport.(*http.Transport); ok {
			if transport.TLSClientConfig == nil {
				transport.TLSClientConfig = &tls.Config{}
			}
			transport.TLSClientConfig.InsecureSkipVerify = true
		} else {
			logger.Warn("Cannot set TLSInsecureSkipVerify on custom HTTPClient transport")
		}
	}

	return &APIClient{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// NewClientFromCredentials creates a client for the service described by creds.
// Untrusted certificates are accepted only when the credentials say so.
func NewClientFromCredentials(creds models.Credentials, opts ...ClientOption) (*APIClient, error) {
	base := []ClientOption{
		WithBaseURL(creds.URL),
		WithStrictTLS(!creds.AcceptUntrustedCerts),
	}
	return NewClient(append(base, opts...)...)
}

// StrictTLS reports whether certificate validation is enforced
func (c *APIClient) StrictTLS() bool {
	return !c.config.TLSInsecureSkipVerify
}

// HasToken reports whether the client holds a session token
func (c *APIClient) HasToken() bool {
	return c.token != ""
}

// Close drops the session token and idle connections
func (c *APIClient) Close() {
	c.token = ""
	c.httpClient.CloseIdleConnections()
}

// buildURL builds the full URL for a given path
func (c *APIClient) buildURL(path string) string {
	baseURL := strings.TrimSuffix(c.config.BaseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return baseURL + path
}

// setAuthHeader sets the token header for a request
func (c *APIClient) setAuthHeader(req *http.Request) {
	if c.token != "" {
		req.Header.Set(AuthTokenHeader, c.token)
	}
}

// newRequest creates a new HTTP request
func (c *APIClient) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	for key, value := range c.config.Headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

// handleResponse decodes a 2xx body into out or converts the response into an *APIError
func (c *APIClient) handleResponse(resp *http.Response, out interface{}) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("failed to read response body (HTTP %d): %w", resp.StatusCode, readErr)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if resp.StatusCode == http.StatusNoContent || out == nil || len(bytes.TrimSpace(body)) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode response body: %w", err)
		}
		return nil
	}

	return newAPIError(resp.StatusCode, body)
}

// Do sends an HTTP request, retrying transport timeouts when configured
func (c *APIClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var reqBodyBytes []byte
	if req.Body != nil {
		var err error
		reqBodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body for retry: %w", err)
		}
		req.Body.Close()
	}

	for retry := 0; ; retry++ {
		if reqBodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(reqBodyBytes))
		}

		resp, err := c.httpClient.Do(req)
		if err == nil {
			return resp, nil
		}

		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() && ctx.Err() == nil {
			if retry < c.config.MaxRetries {
				c.logger.WithFields(logrus.Fields{
					"method": req.Method,
					"path":   req.URL.Path,
					"retry":  retry + 1,
				}).Debug("Request timed out, retrying")
				if err := sleepContext(ctx, c.config.RetryDelay); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("%w: %s %s", ErrTimeout, req.Method, req.URL.Path)
		}
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// doRequest is a helper function to make requests and handle responses
func (c *APIClient) doRequest(ctx context.Context, method, path string, authenticated bool, body, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if authenticated {
		c.setAuthHeader(req)
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"status": resp.StatusCode,
	}).Debug("Scanner API call completed")

	return c.handleResponse(resp, out)
}
