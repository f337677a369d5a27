package httpclient

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind tags a successful Do outcome.
type Kind int

// Result kinds. Fatal outcomes are reported through the error return.
const (
	KindOK Kind = iota + 1
	KindSkip
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        string
}

// DecodeJSON unmarshals the body into v.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode %s: %w", r.URL, err)
	}
	return nil
}

// Skip describes a soft-skipped request.
type Skip struct {
	URL        string
	StatusCode int
	Location   string
}

// Reason renders the skip for logs and errors.
func (s Skip) Reason() string {
	if s.Location != "" {
		return fmt.Sprintf("status %d (location %s)", s.StatusCode, s.Location)
	}
	return fmt.Sprintf("status %d", s.StatusCode)
}

// Result is either a response or a skip. Callers must check Kind or use the
// accessors, so a skip can never be read as a body.
type Result struct {
	kind Kind
	resp *Response
	skip Skip
}

// OK wraps a response.
func OK(resp *Response) Result {
	return Result{kind: KindOK, resp: resp}
}

// Skipped wraps a skip.
func Skipped(skip Skip) Result {
	return Result{kind: KindSkip, skip: skip}
}

// Kind returns the result tag.
func (r Result) Kind() Kind {
	return r.kind
}

// Response returns the response when Kind is KindOK.
func (r Result) Response() (*Response, bool) {
	return r.resp, r.kind == KindOK
}

// Skip returns the skip details when Kind is KindSkip.
func (r Result) Skip() (Skip, bool) {
	return r.skip, r.kind == KindSkip
}
