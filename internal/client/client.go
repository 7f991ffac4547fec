// Package client talks to a justlru cache server over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/satmihir/justlru/internal/retry"
)

// Header names used by the protocol
const (
	headerSize       = "x-jc-size"
	headerTTL        = "x-jc-ttl"
	headerPromiseTTL = "x-jc-promise-ttl"
	headerDryRun     = "x-jc-dryrun"
	headerRetryAfter = "Retry-After"
)

// Errors returned by the client
var (
	ErrNotFound            = errors.New("key not found")
	ErrConflict            = errors.New("promise conflict: another client is uploading")
	ErrNoPromise           = errors.New("no active promise for key")
	ErrInsufficientStorage = errors.New("insufficient storage capacity")
	ErrPayloadTooLarge     = errors.New("payload exceeds maximum size")
	ErrLengthRequired      = errors.New("content-length header required")
	ErrBadRequest          = errors.New("bad request")
	ErrRateLimited         = errors.New("rate limited by server")
)

// StatusError is returned for status codes the client has no sentinel for.
type StatusError struct {
	Method string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Method, e.Code)
}

// Entry represents a cached value with metadata
type Entry struct {
	Value        []byte
	Size         int
	RemainingTTL time.Duration
}

// Stats mirrors the server's /stats document.
type Stats struct {
	Hits            uint64  `json:"hits"`
	Misses          uint64  `json:"misses"`
	Capacity        int     `json:"capacity"`
	Size            int     `json:"size"`
	HitRatio        float64 `json:"hit_ratio"`
	MemoryUsedBytes uint64  `json:"memory_used_bytes"`
	MaxMemoryBytes  uint64  `json:"max_memory_bytes"`
	Evictions       uint64  `json:"evictions"`
	Expirations     uint64  `json:"expirations"`
}

// PostStatus represents the outcome of a POST request
type PostStatus int

const (
	// PostAccepted means the promise is ours; PUT next.
	PostAccepted PostStatus = iota
	// PostExists means the key is cached. Entry carries metadata only.
	PostExists
	// PostConflict means another client holds the promise.
	PostConflict
	// PostInsufficientStorage means the value could never fit.
	PostInsufficientStorage
)

func (s PostStatus) String() string {
	switch s {
	case PostAccepted:
		return "accepted"
	case PostExists:
		return "exists"
	case PostConflict:
		return "conflict"
	case PostInsufficientStorage:
		return "insufficient-storage"
	default:
		return "PostStatus(" + strconv.Itoa(int(s)) + ")"
	}
}

// PostResult represents the result of a POST (promise) request
type PostResult struct {
	Status PostStatus
	// PromiseTTL is set on Accepted and Conflict.
	PromiseTTL time.Duration
	// RetryAfter is the server's backoff hint on Conflict.
	RetryAfter time.Duration
	// Entry is set on Exists, without Value.
	Entry *Entry
}

// PostOptions configures a POST request
type PostOptions struct {
	// Size is the expected value size; 0 leaves it unset.
	Size int64
	// PromiseTTL is the desired promise TTL; 0 uses the server default.
	PromiseTTL time.Duration
	DryRun     bool
}

// Client is a cache client for a single server
type Client struct {
	baseURL    string
	httpClient *http.Client
	policy     retry.Policy
	flights    singleflight.Group
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		client.httpClient.Timeout = d
	}
}

// WithRetryPolicy sets the policy used by the *WithRetry methods and Fetch.
func WithRetryPolicy(p retry.Policy) Option {
	return func(client *Client) {
		client.policy = p
	}
}

// New creates a Client for the server at baseURL, e.g. "http://localhost:7070".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		policy:     retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get retrieves a value. Returns ErrNotFound on a miss.
func (c *Client) Get(ctx context.Context, key string) (*Entry, error) {
	resp, err := c.do(ctx, http.MethodGet, c.url(key), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		value, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response body: %w", err)
		}
		return parseEntry(resp, value), nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, statusError(http.MethodGet, resp)
	}
}

// Set runs the POST then PUT flow. An existing key counts as success.
// Returns ErrConflict if another client holds the promise; see SetWithRetry.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	result, err := c.Post(ctx, key, PostOptions{Size: int64(len(value))})
	if err != nil {
		return err
	}
	return c.finishSet(ctx, result, key, value, ttl)
}

func (c *Client) finishSet(ctx context.Context, result *PostResult, key string, value []byte, ttl time.Duration) error {
	switch result.Status {
	case PostAccepted:
		return c.Put(ctx, key, value, ttl)
	case PostExists:
		return nil
	case PostConflict:
		return ErrConflict
	case PostInsufficientStorage:
		return ErrInsufficientStorage
	default:
		return fmt.Errorf("unexpected POST status: %v", result.Status)
	}
}

// SetWithRetry is Set with backoff on conflicts and transport errors,
// honoring the server's Retry-After.
func (c *Client) SetWithRetry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := retry.Do(ctx, c.policy, func(ctx context.Context) (struct{}, retry.Outcome, error) {
		result, err := c.Post(ctx, key, PostOptions{Size: int64(len(value))})
		if err != nil {
			return struct{}{}, classify(err), err
		}
		if result.Status == PostConflict {
			return struct{}{}, retry.Outcome{Retry: true, After: result.RetryAfter}, ErrConflict
		}
		// A failed PUT has consumed or released the promise.
		return struct{}{}, retry.Permanent, c.finishSet(ctx, result, key, value, ttl)
	})
	return err
}

// GetWithRetry retries transient failures. ErrNotFound is returned at once.
func (c *Client) GetWithRetry(ctx context.Context, key string) (*Entry, error) {
	return retry.Do(ctx, c.policy, func(ctx context.Context) (*Entry, retry.Outcome, error) {
		entry, err := c.Get(ctx, key)
		return entry, classify(err), err
	})
}

// Fetch returns key's value, calling load to produce it on a miss and
// publishing the result. Concurrent Fetches of one key in this process share
// a single round trip. When another client holds the promise, Fetch waits
// for its value instead of loading.
func (c *Client) Fetch(ctx context.Context, key string, ttl time.Duration, load func(context.Context) ([]byte, error)) ([]byte, error) {
	v, err, _ := c.flights.Do(key, func() (any, error) {
		return retry.Do(ctx, c.policy, func(ctx context.Context) ([]byte, retry.Outcome, error) {
			return c.fetchOnce(ctx, key, ttl, load)
		})
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Client) fetchOnce(ctx context.Context, key string, ttl time.Duration, load func(context.Context) ([]byte, error)) ([]byte, retry.Outcome, error) {
	entry, err := c.Get(ctx, key)
	if err == nil {
		return entry.Value, retry.Outcome{}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, classify(err), err
	}

	result, err := c.Post(ctx, key, PostOptions{})
	if err != nil {
		return nil, classify(err), err
	}

	switch result.Status {
	case PostExists:
		// Filled between our GET and POST; read it on the next attempt.
		return nil, retry.Transient, ErrConflict
	case PostConflict:
		return nil, retry.Outcome{Retry: true, After: result.RetryAfter}, ErrConflict
	case PostInsufficientStorage:
		return nil, retry.Permanent, ErrInsufficientStorage
	}

	value, err := load(ctx)
	if err != nil {
		// Hand the promise back so other readers do not wait out its TTL.
		_ = c.Delete(context.WithoutCancel(ctx), key)
		return nil, retry.Permanent, err
	}
	// The loaded value is returned even if publishing it fails.
	_ = c.Put(ctx, key, value, ttl)
	return value, retry.Outcome{}, nil
}

// Post asks for a promise to fill key. Most callers want Set or Fetch.
func (c *Client) Post(ctx context.Context, key string, opts PostOptions) (*PostResult, error) {
	headers := http.Header{}
	if opts.Size > 0 {
		headers.Set(headerSize, strconv.FormatInt(opts.Size, 10))
	}
	if opts.PromiseTTL > 0 {
		headers.Set(headerPromiseTTL, strconv.FormatInt(opts.PromiseTTL.Milliseconds(), 10))
	}
	if opts.DryRun {
		headers.Set(headerDryRun, "true")
	}

	resp, err := c.do(ctx, http.MethodPost, c.url(key), nil, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := &PostResult{
		PromiseTTL: parseMillis(resp.Header.Get(headerPromiseTTL)),
		RetryAfter: parseRetryAfter(resp),
	}

	switch resp.StatusCode {
	case http.StatusOK:
		result.Status = PostExists
		result.Entry = parseEntry(resp, nil)
	case http.StatusAccepted:
		result.Status = PostAccepted
	case http.StatusConflict:
		result.Status = PostConflict
	case http.StatusInsufficientStorage:
		result.Status = PostInsufficientStorage
	default:
		return nil, statusError(http.MethodPost, resp)
	}
	return result, nil
}

// Put uploads a value after an accepted Post.
func (c *Client) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	headers := http.Header{}
	if ttl > 0 {
		headers.Set(headerTTL, strconv.FormatInt(ttl.Milliseconds(), 10))
	}

	resp, err := c.do(ctx, http.MethodPut, c.url(key), value, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusConflict:
		return ErrNoPromise
	case http.StatusLengthRequired:
		return ErrLengthRequired
	case http.StatusRequestEntityTooLarge:
		return ErrPayloadTooLarge
	case http.StatusInsufficientStorage:
		return ErrInsufficientStorage
	case http.StatusBadRequest:
		return ErrBadRequest
	default:
		return statusError(http.MethodPut, resp)
	}
}

// Delete removes key and drops any fill promise held on it. Returns
// ErrNotFound if the key was neither cached nor promised.
func (c *Client) Delete(ctx context.Context, key string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.url(key), nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return statusError(http.MethodDelete, resp)
	}
}

// Stats fetches the server's counters.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/stats", nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(http.MethodGet, resp)
	}
	var st Stats
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decoding stats: %w", err)
	}
	return &st, nil
}

func (c *Client) do(ctx context.Context, method, target string, body []byte, headers http.Header) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.ContentLength = int64(len(body))
	}
	for name, values := range headers {
		req.Header[name] = values
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, &rateLimitedError{after: parseRetryAfter(resp)}
	}
	return resp, nil
}

// url constructs the full URL for a cache key
func (c *Client) url(key string) string {
	return c.baseURL + "/cache/" + url.PathEscape(key)
}

type rateLimitedError struct {
	after time.Duration
}

func (e *rateLimitedError) Error() string { return ErrRateLimited.Error() }
func (e *rateLimitedError) Unwrap() error { return ErrRateLimited }

// classify decides whether err is worth another attempt.
func classify(err error) retry.Outcome {
	var limited *rateLimitedError
	var status *StatusError
	switch {
	case err == nil:
		return retry.Outcome{}
	case errors.As(err, &limited):
		return retry.Outcome{Retry: true, After: limited.after}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return retry.Permanent
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrPayloadTooLarge), errors.Is(err, ErrInsufficientStorage):
		return retry.Permanent
	case errors.As(err, &status):
		return retry.Outcome{Retry: status.Code >= http.StatusInternalServerError}
	default:
		// Transport errors.
		return retry.Transient
	}
}

func statusError(method string, resp *http.Response) error {
	return &StatusError{Method: method, Code: resp.StatusCode}
}

// parseEntry extracts metadata from response headers
func parseEntry(resp *http.Response, value []byte) *Entry {
	entry := &Entry{
		Value: value,
		Size:  len(value),
	}
	if size, err := strconv.Atoi(resp.Header.Get(headerSize)); err == nil {
		entry.Size = size
	}
	entry.RemainingTTL = parseMillis(resp.Header.Get(headerTTL))
	return entry
}

func parseMillis(h string) time.Duration {
	if ms, err := strconv.ParseInt(h, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return 0
}

// parseRetryAfter extracts Retry-After from response headers
func parseRetryAfter(resp *http.Response) time.Duration {
	if seconds, err := strconv.Atoi(resp.Header.Get(headerRetryAfter)); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return 0
}
