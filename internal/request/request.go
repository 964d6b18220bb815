// request.go

package request

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Custom errors
var (
	// ErrMalformedEncoding is returned when the raw request is not valid UTF-8.
	ErrMalformedEncoding = errors.New("request is not valid utf-8")
)

const crlf = "\r\n"

// Request is what the server knows about a client request: the method, the
// path and the decoded query. Headers and body are never looked at.
type Request struct {
	Method string
	Path   string
	Query  Query
}

// RequestLine holds the two tokens of the request line that are consulted.
// The protocol version, if any, is dropped.
type RequestLine struct {
	Method        string
	RequestTarget string
}

// IsEmpty reports whether r is the sentinel returned for a request line with
// fewer than two tokens.
func (r *Request) IsEmpty() bool {
	return r.Method == "" && r.Path == ""
}

// Parse turns the bytes of a single read into a Request.
//
// Bytes that are not valid UTF-8 yield ErrMalformedEncoding. A request line
// that cannot be split into at least a method and a target yields the empty
// sentinel and a nil error; callers check IsEmpty.
func Parse(raw []byte) (*Request, error) {
	if !utf8.Valid(raw) {
		return nil, ErrMalformedEncoding
	}

	text := string(raw)
	if idx := strings.Index(text, crlf); idx != -1 {
		text = text[:idx]
	}

	reqLine, ok := parseRequestLine(text)
	if !ok {
		return &Request{Query: Query{}}, nil
	}

	path, rawQuery := splitTarget(reqLine.RequestTarget)
	return &Request{
		Method: reqLine.Method,
		Path:   path,
		Query:  ParseQuery(rawQuery),
	}, nil
}

func parseRequestLine(line string) (*RequestLine, bool) {
	parts := strings.Fields(line)
	// panic guard
	if len(parts) < 2 {
		return nil, false
	}
	return &RequestLine{
		Method:        parts[0],
		RequestTarget: parts[1],
	}, true
}

// splitTarget drops a fragment and cuts the target at the first '?'.
// The path is returned verbatim.
func splitTarget(target string) (path, rawQuery string) {
	if idx := strings.IndexByte(target, '#'); idx != -1 {
		target = target[:idx]
	}
	path, rawQuery, _ = strings.Cut(target, "?")
	return path, rawQuery
}
