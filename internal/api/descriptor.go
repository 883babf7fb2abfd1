package api

import (
	nethttp "net/http"
	"net/url"
)

// Descriptor describes one API call whose successful response decodes into
// T. Descriptors are plain values built once per call site.
type Descriptor[T any] struct {
	Method string

	// Path is either relative to the executor base URL ("/me/likes/tracks")
	// or an absolute URL, which is used verbatim (pagination cursors, the
	// token endpoint).
	Path string

	// Query is merged into the URL query string.
	Query url.Values

	// Form, when non-nil, is sent as an application/x-www-form-urlencoded body.
	Form url.Values

	// RequiresAuth attaches the bearer header from the executor's header
	// provider.
	RequiresAuth bool

	// IsRefreshCall marks token endpoint calls. They never carry a bearer
	// header, so resolving one can never recurse into another refresh.
	IsRefreshCall bool

	// AllowEmpty accepts an empty 2xx body as the zero T. Without it only a
	// 204 may be empty.
	AllowEmpty bool
}

// Get describes an authenticated GET.
func Get[T any](path string, query url.Values) Descriptor[T] {
	return Descriptor[T]{Method: nethttp.MethodGet, Path: path, Query: query, RequiresAuth: true}
}

// Post describes an authenticated POST with an optional form body. The
// response body may be empty.
func Post[T any](path string, form url.Values) Descriptor[T] {
	return Descriptor[T]{Method: nethttp.MethodPost, Path: path, Form: form, RequiresAuth: true, AllowEmpty: true}
}

// Put describes an authenticated PUT with an optional form body. The
// response body may be empty.
func Put[T any](path string, form url.Values) Descriptor[T] {
	return Descriptor[T]{Method: nethttp.MethodPut, Path: path, Form: form, RequiresAuth: true, AllowEmpty: true}
}

// Delete describes an authenticated DELETE. The response body may be empty.
func Delete[T any](path string) Descriptor[T] {
	return Descriptor[T]{Method: nethttp.MethodDelete, Path: path, RequiresAuth: true, AllowEmpty: true}
}

// TokenRequest describes a POST to the token endpoint at tokenURL.
func TokenRequest[T any](tokenURL string, form url.Values) Descriptor[T] {
	return Descriptor[T]{Method: nethttp.MethodPost, Path: tokenURL, Form: form, IsRefreshCall: true}
}

// Public returns a copy of d that does not carry a bearer header.
func (d Descriptor[T]) Public() Descriptor[T] {
	d.RequiresAuth = false
	return d
}

// WithQuery returns a copy of d with key set to value in its query.
func (d Descriptor[T]) WithQuery(key, value string) Descriptor[T] {
	q := url.Values{}
	for k, vs := range d.Query {
		q[k] = append([]string(nil), vs...)
	}
	q.Set(key, value)
	d.Query = q
	return d
}
