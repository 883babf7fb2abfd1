package api

import (
	"context"

	"github.com/handiism/soundcloud-offline/internal/common"
)

// Collection is the wire shape of a linked-partitioning list response.
type Collection[T any] struct {
	Collection []T     `json:"collection"`
	NextHref   *string `json:"next_href"`
}

// Page is one page of a paginated resource. An empty NextHref means this
// is the last page.
type Page[T any] struct {
	Items    []T
	NextHref string
}

// HasNextPage reports whether a cursor to a further page is present.
func (p Page[T]) HasNextPage() bool {
	return p.NextHref != ""
}

// Merge returns p with next's items appended and next's cursor.
func (p Page[T]) Merge(next Page[T]) Page[T] {
	items := make([]T, 0, len(p.Items)+len(next.Items))
	items = append(items, p.Items...)
	items = append(items, next.Items...)
	return Page[T]{Items: items, NextHref: next.NextHref}
}

// FetchPage executes d and wraps the collection and cursor into a Page.
func FetchPage[T any](ctx context.Context, e *Executor, d Descriptor[Collection[T]]) (Page[T], error) {
	c, err := Execute(ctx, e, d)
	if err != nil {
		return Page[T]{}, err
	}
	return toPage(c), nil
}

// FetchNextPage fetches the page after p by following its cursor verbatim,
// with the same authorization as any other call. Without a cursor it fails
// with ErrExhaustedPagination and makes no request.
func FetchNextPage[T any](ctx context.Context, e *Executor, p Page[T]) (Page[T], error) {
	if !p.HasNextPage() {
		return Page[T]{}, common.ErrExhaustedPagination
	}
	return FetchPage(ctx, e, Get[Collection[T]](p.NextHref, nil))
}

// MapPage converts the items of p with f, keeping the cursor.
func MapPage[T, U any](p Page[T], f func(T) U) Page[U] {
	items := make([]U, len(p.Items))
	for i, item := range p.Items {
		items[i] = f(item)
	}
	return Page[U]{Items: items, NextHref: p.NextHref}
}

func toPage[T any](c Collection[T]) Page[T] {
	p := Page[T]{Items: c.Collection}
	if c.NextHref != nil {
		p.NextHref = *c.NextHref
	}
	if p.Items == nil {
		p.Items = []T{}
	}
	return p
}
