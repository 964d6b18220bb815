// Package router maps request paths to page handlers.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/pages"
	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/request"
	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/response"
)

// ErrHandlerFailure wraps any error or panic raised while a handler builds
// its body.
var ErrHandlerFailure = errors.New("route handler failed")

// Result is what a route produces: the status to send and the page.
type Result struct {
	StatusCode response.StatusCode
	StatusText string
	Body       string
}

// HandlerFunc builds the body of a page from the decoded query.
type HandlerFunc func(ctx context.Context, q request.Query) (string, error)

// Collaborator renders a page from the query alone. Implementations do their
// own I/O and report failures inside the page they return.
type Collaborator interface {
	Render(ctx context.Context, q request.Query) string
}

// Router is an exact-match route table. It is built once by New and has no
// method that changes it, so one Router is shared by every connection.
type Router struct {
	routes map[string]HandlerFunc
}

// New builds the route table of the server.
func New(exchange, movie Collaborator) *Router {
	return &Router{
		routes: map[string]HandlerFunc{
			"":          static(pages.Index()),
			"/":         static(pages.Index()),
			"/movies":   static(pages.MovieSearch()),
			"/exchange": delegate(exchange),
			"/movie":    delegate(movie),
		},
	}
}

func static(body string) HandlerFunc {
	return func(context.Context, request.Query) (string, error) {
		return body, nil
	}
}

func delegate(c Collaborator) HandlerFunc {
	return func(ctx context.Context, q request.Query) (string, error) {
		return c.Render(ctx, q), nil
	}
}

// Paths lists the routed paths in sorted order.
func (r *Router) Paths() []string {
	paths := make([]string, 0, len(r.routes))
	for p := range r.routes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Route runs the handler registered for path. Unknown paths produce a 404
// result whose body echoes the path. A failing or panicking handler yields an
// error wrapping ErrHandlerFailure.
func (r *Router) Route(ctx context.Context, path string, q request.Query) (res Result, err error) {
	handler, ok := r.routes[path]
	if !ok {
		return notFound(path), nil
	}

	defer func() {
		if p := recover(); p != nil {
			res, err = Result{}, fmt.Errorf("%w: %s: panic: %v", ErrHandlerFailure, path, p)
		}
	}()

	body, err := handler(ctx, q)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ErrHandlerFailure, path, err)
	}
	return Result{
		StatusCode: response.StatusOK,
		StatusText: response.StatusText(response.StatusOK),
		Body:       body,
	}, nil
}

// Dispatch routes a parsed request. The empty sentinel left by a malformed
// request line is answered as not found.
func (r *Router) Dispatch(ctx context.Context, req *request.Request) (Result, error) {
	if req.IsEmpty() {
		return notFound(req.Path), nil
	}
	return r.Route(ctx, req.Path, req.Query)
}

func notFound(path string) Result {
	return Result{
		StatusCode: response.StatusNotFound,
		StatusText: response.StatusText(response.StatusNotFound),
		Body:       pages.NotFound(path),
	}
}
