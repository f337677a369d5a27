package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request is an immutable description of one outbound call. Builders return
// modified copies; nothing is shared between calls.
type Request struct {
	Method string
	URL    string
	Query  url.Values
	Header http.Header
	Form   url.Values
	JSON   any
}

// Get returns a GET request for rawURL.
func Get(rawURL string) Request {
	return Request{Method: http.MethodGet, URL: rawURL}
}

// PostForm returns a form-encoded POST request.
func PostForm(rawURL string, form url.Values) Request {
	return Request{Method: http.MethodPost, URL: rawURL, Form: cloneValues(form)}
}

// PostJSON returns a POST request with a JSON body.
func PostJSON(rawURL string, body any) Request {
	return Request{Method: http.MethodPost, URL: rawURL, JSON: body}
}

// Post returns a POST request without a body.
func Post(rawURL string) Request {
	return Request{Method: http.MethodPost, URL: rawURL}
}

// WithQuery returns a copy carrying the given query parameters.
func (r Request) WithQuery(q url.Values) Request {
	r.Query = cloneValues(q)
	return r
}

// WithHeader returns a copy with key set to value.
func (r Request) WithHeader(key, value string) Request {
	h := r.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set(key, value)
	r.Header = h
	return r
}

func (r Request) build(ctx context.Context, defaults http.Header) (*http.Request, error) {
	target, err := url.Parse(r.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if len(r.Query) > 0 {
		q := target.Query()
		for k, vs := range r.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case r.JSON != nil:
		payload, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, fmt.Errorf("encode json body: %w", err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	case r.Form != nil:
		body = strings.NewReader(r.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range defaults {
		req.Header[k] = append([]string(nil), vs...)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, vs := range r.Header {
		req.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	return req, nil
}

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return nil
	}
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
