package response

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/headers"
)

type StatusCode int

const (
	StatusOK                  StatusCode = 200
	StatusBadRequest          StatusCode = 400
	StatusNotFound            StatusCode = 404
	StatusInternalServerError StatusCode = 500
)

var reasonPhrases = map[StatusCode]string{
	StatusOK:                  "OK",
	StatusBadRequest:          "Bad Request",
	StatusNotFound:            "Not Found",
	StatusInternalServerError: "Internal Server Error",
}

// StatusText returns the reason phrase for the codes this server emits, or
// "" for anything else.
func StatusText(code StatusCode) string {
	return reasonPhrases[code]
}

const ContentTypeHTML = "text/html; charset=utf-8"

var (
	ErrWrongState = errors.New("response written out of order")
)

type writerState int

const (
	stateStatus  writerState = iota // can write status
	stateHeaders                    // can write headers
	stateBody                       // can write body
)

// Writer is a stateful writer for constructing an http response.
type Writer struct {
	w     io.Writer
	state writerState
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:     w,
		state: stateStatus,
	}
}

// WriteStatusLine writes "HTTP/1.1 <code> <text>". It must be called first
// and only once. The code and text are not checked against any registry.
func (w *Writer) WriteStatusLine(statusCode StatusCode, statusText string) error {
	if w.state != stateStatus {
		return fmt.Errorf("%w: status line", ErrWrongState)
	}
	statusLine := fmt.Sprintf("HTTP/1.1 %d %s\r\n", statusCode, statusText)
	if _, err := io.WriteString(w.w, statusLine); err != nil {
		return err
	}
	w.state = stateHeaders
	return nil
}

// WriteHeaders writes the header block including the blank line that ends it.
func (w *Writer) WriteHeaders(h *headers.Headers) error {
	if w.state != stateHeaders {
		return fmt.Errorf("%w: headers", ErrWrongState)
	}
	if _, err := h.WriteTo(w.w); err != nil {
		return err
	}
	if _, err := io.WriteString(w.w, "\r\n"); err != nil {
		return err
	}
	w.state = stateBody
	return nil
}

// WriteBody writes body bytes unchanged. It may be called more than once.
func (w *Writer) WriteBody(p []byte) (int, error) {
	if w.state != stateBody {
		return 0, fmt.Errorf("%w: body before headers", ErrWrongState)
	}
	return w.w.Write(p)
}

// GetDefaultHeaders returns the fixed header set every response carries.
func GetDefaultHeaders(contentLen int) *headers.Headers {
	h := headers.NewHeaders()
	h.Set("Content-Type", ContentTypeHTML)
	h.Set("Content-Length", strconv.Itoa(contentLen))
	h.Set("Connection", "close")
	return h
}

// Build frames a complete response. Content-Length is the byte length of
// body, which is sent as UTF-8 without transformation.
func Build(statusCode StatusCode, statusText, body string) []byte {
	var buf bytes.Buffer
	payload := []byte(body)

	w := NewWriter(&buf)
	// writes to a bytes.Buffer and fixed header names cannot fail
	_ = w.WriteStatusLine(statusCode, statusText)
	_ = w.WriteHeaders(GetDefaultHeaders(len(payload)))
	_, _ = w.WriteBody(payload)

	return buf.Bytes()
}
