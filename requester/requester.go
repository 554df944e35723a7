package requester

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	ferrors "github.com/pilab-dev/frigg/errors"
	"github.com/pilab-dev/frigg/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds every outgoing request when no client is supplied.
const DefaultTimeout = 30 * time.Second

// Options configures a Requester.
type Options struct {
	// HTTPClient overrides the traced default client.
	HTTPClient *http.Client
	// Timeout applies to the default client. Zero means DefaultTimeout.
	Timeout time.Duration
	// Backoff lists the delays between retries of 429, 5xx and connection
	// resets. Empty disables retrying.
	Backoff []time.Duration
	// Limiter throttles outgoing requests when set.
	Limiter *rate.Limiter
	Logger  log.Logger
	// Delegate receives lifecycle events.
	Delegate Delegate
}

// Authenticator decorates requests with credentials and knows how to renew them.
type Authenticator interface {
	AddAuthHeaders(header http.Header)
	Refreshable() bool
	RefreshAuth(ctx context.Context) error
}

// Request describes a single API call.
type Request struct {
	Method  string
	URL     string
	Query   url.Values
	Headers map[string]string
	// JSON is marshalled as the request body.
	JSON interface{}
	// Form is sent url-encoded. Ignored when JSON is set.
	Form url.Values
	// Result receives the decoded JSON response body when not nil.
	Result interface{}
	// Redact lists URL fragments, such as a token carried in the path, that
	// are masked in errors and log lines.
	Redact []string
}

func (req *Request) redact(s string) string {
	for _, secret := range req.Redact {
		if secret != "" {
			s = strings.ReplaceAll(s, secret, "<redacted>")
		}
	}
	return s
}

func (req *Request) fetchError(httpReq *http.Request, resp *http.Response, body []byte, cause error) *ferrors.FetchError {
	if len(req.Redact) > 0 {
		var ue *url.Error
		if errors.As(cause, &ue) {
			masked := *ue
			masked.URL = req.redact(masked.URL)
			cause = &masked
		}
	}
	fe := ferrors.NewFetchError(httpReq, resp, body, cause)
	fe.URL = req.redact(fe.URL)
	return fe
}

// Response is a successful HTTP response with its body read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsJSON reports whether the body is one of the JSON media types providers use.
func (r *Response) IsJSON() bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/json") ||
		strings.HasPrefix(ct, "application/vnd.api+json") ||
		strings.HasPrefix(ct, "application/hal+json")
}

// Decode unmarshals the body into out.
func (r *Response) Decode(out interface{}) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// Requester performs HTTP calls for an API client and reports lifecycle
// events to its delegate.
type Requester struct {
	client   *http.Client
	backoff  []time.Duration
	limiter  *rate.Limiter
	logger   log.Logger
	delegate Delegate

	auth     Authenticator
	notifier Notifier
	headers  map[string]string
}

// New creates an unauthenticated Requester.
func New(opts Options) *Requester {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Requester{
		client:   client,
		backoff:  opts.Backoff,
		limiter:  opts.Limiter,
		logger:   logger,
		delegate: opts.Delegate,
		headers:  map[string]string{},
	}
}

// HTTPClient returns the client used for outgoing calls.
func (r *Requester) HTTPClient() *http.Client {
	return r.client
}

// SetDelegate replaces the event receiver.
func (r *Requester) SetDelegate(d Delegate) {
	r.delegate = d
}

// SetHeader adds a header sent with every request.
func (r *Requester) SetHeader(key, value string) {
	r.headers[key] = value
}

func (r *Requester) setAuth(auth Authenticator, notifier Notifier) {
	r.auth = auth
	r.notifier = notifier
}

// Notify forwards event to the delegate, if any.
func (r *Requester) Notify(ctx context.Context, event Event) error {
	if r.delegate == nil {
		return nil
	}
	notifier := r.notifier
	if notifier == nil {
		notifier = noTokens{}
	}
	return r.delegate.ReceiveNotification(ctx, notifier, event)
}

type noTokens struct{}

func (noTokens) Tokens() Tokens { return Tokens{} }

// Get issues a GET and decodes the JSON body into out.
func (r *Requester) Get(ctx context.Context, rawURL string, query url.Values, out interface{}) error {
	_, err := r.Do(ctx, &Request{Method: http.MethodGet, URL: rawURL, Query: query, Result: out})
	return err
}

// Post sends body as JSON and decodes the JSON response into out.
func (r *Requester) Post(ctx context.Context, rawURL string, body, out interface{}) error {
	_, err := r.Do(ctx, &Request{Method: http.MethodPost, URL: rawURL, JSON: body, Result: out})
	return err
}

// Patch sends body as JSON and decodes the JSON response into out.
func (r *Requester) Patch(ctx context.Context, rawURL string, body, out interface{}) error {
	_, err := r.Do(ctx, &Request{Method: http.MethodPatch, URL: rawURL, JSON: body, Result: out})
	return err
}

// Put sends body as JSON and decodes the JSON response into out.
func (r *Requester) Put(ctx context.Context, rawURL string, body, out interface{}) error {
	_, err := r.Do(ctx, &Request{Method: http.MethodPut, URL: rawURL, JSON: body, Result: out})
	return err
}

// Delete issues a DELETE and returns the raw response.
func (r *Requester) Delete(ctx context.Context, rawURL string, query url.Values) (*Response, error) {
	return r.Do(ctx, &Request{Method: http.MethodDelete, URL: rawURL, Query: query})
}

// Do executes req. Non-2xx responses come back as *errors.FetchError.
// A 401 triggers one credential refresh and one replay; a second 401, or
// one on a client that cannot refresh, notifies EventInvalidAuth.
func (r *Requester) Do(ctx context.Context, req *Request) (*Response, error) {
	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	attempt := 0
	refreshed := false
	for {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		httpReq, err := r.newHTTPRequest(ctx, req, body, contentType)
		if err != nil {
			return nil, err
		}

		resp, err := r.client.Do(httpReq)
		if err != nil {
			if isConnReset(err) && attempt < len(r.backoff) {
				r.logger.Debug(ctx, "connection reset, retrying", map[string]interface{}{
					"url": req.redact(httpReq.URL.String()), "attempt": attempt + 1,
				})
				if err := sleep(ctx, r.backoff[attempt]); err != nil {
					return nil, err
				}
				attempt++
				continue
			}
			return nil, req.fetchError(httpReq, nil, nil, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, req.fetchError(httpReq, resp, nil, readErr)
		}

		status := resp.StatusCode
		if (status == http.StatusTooManyRequests || status >= 500) && attempt < len(r.backoff) {
			r.logger.Debug(ctx, "retryable status, backing off", map[string]interface{}{
				"url": req.redact(httpReq.URL.String()), "status": status, "attempt": attempt + 1,
			})
			if err := sleep(ctx, r.backoff[attempt]); err != nil {
				return nil, err
			}
			attempt++
			continue
		}

		if status == http.StatusUnauthorized {
			if !refreshed && r.auth != nil && r.auth.Refreshable() {
				refreshed = true
				if err := r.auth.RefreshAuth(ctx); err == nil {
					continue
				}
			} else if err := r.Notify(ctx, EventInvalidAuth); err != nil {
				r.logger.Error(ctx, "invalid auth notification failed", err)
			}
		}

		if status >= 400 {
			return nil, req.fetchError(httpReq, resp, respBody, nil)
		}

		out := &Response{StatusCode: status, Header: resp.Header, Body: respBody}
		if req.Result != nil {
			if err := out.Decode(req.Result); err != nil {
				return out, err
			}
		}
		return out, nil
	}
}

func encodeBody(req *Request) ([]byte, string, error) {
	switch {
	case req.JSON != nil:
		b, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("encode request body: %w", err)
		}
		return b, "application/json", nil
	case req.Form != nil:
		return []byte(req.Form.Encode()), "application/x-www-form-urlencoded", nil
	default:
		return nil, "", nil
	}
}

func (r *Requester) newHTTPRequest(ctx context.Context, req *Request, body []byte, contentType string) (*http.Request, error) {
	target := req.URL
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + req.Query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range r.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if r.auth != nil {
		r.auth.AddAuthHeaders(httpReq.Header)
	}
	return httpReq, nil
}

func isConnReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
