package errors

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// maxBodyLength bounds the response body kept for diagnostics.
const maxBodyLength = 4096

// FetchError is returned for every non-2xx response (and for transport
// failures) of a module API request. It carries enough of the request and
// response to debug the call from a log line alone.
type FetchError struct {
	Method          string
	URL             string
	StatusCode      int
	Status          string
	RequestHeaders  http.Header
	ResponseHeaders http.Header
	Body            string
	Err             error // transport error, if the request never got a response
}

// NewFetchError builds a FetchError. The Authorization header is redacted.
func NewFetchError(req *http.Request, resp *http.Response, body []byte, cause error) *FetchError {
	fe := &FetchError{Err: cause}
	if req != nil {
		fe.Method = req.Method
		fe.URL = req.URL.String()
		fe.RequestHeaders = redact(req.Header)
	}
	if resp != nil {
		fe.StatusCode = resp.StatusCode
		fe.Status = resp.Status
		fe.ResponseHeaders = resp.Header.Clone()
	}
	if len(body) > maxBodyLength {
		body = body[:maxBodyLength]
	}
	fe.Body = string(body)
	return fe
}

func (e *FetchError) Error() string {
	var b strings.Builder
	b.WriteString("An error occurred while fetching an external resource.\n")
	b.WriteString(">>> Request\n")
	fmt.Fprintf(&b, "%s %s\n", e.Method, e.URL)
	writeHeaders(&b, e.RequestHeaders)
	b.WriteString("<<< Response\n")
	if e.Err != nil {
		fmt.Fprintf(&b, "error: %v\n", e.Err)
		return b.String()
	}
	status := e.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	fmt.Fprintf(&b, "status: %s\n", status)
	writeHeaders(&b, e.ResponseHeaders)
	if e.Body != "" {
		b.WriteString(e.Body)
		b.WriteString("\n")
	}
	return b.String()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func redact(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		return nil
	}
	if out.Get("Authorization") != "" {
		out.Set("Authorization", "<redacted>")
	}
	return out
}

func writeHeaders(b *strings.Builder, h http.Header) {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s: %s\n", k, strings.Join(h[k], ", "))
	}
}
