package headers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrInvalidName = errors.New("invalid header name")
)

type field struct {
	name  string
	value string
}

// Headers is an ordered set of response header fields. Names are matched
// case-insensitively but written as first set.
type Headers struct {
	fields []field
}

func NewHeaders() *Headers {
	return &Headers{}
}

func (h *Headers) index(name string) int {
	for i, f := range h.fields {
		if strings.EqualFold(f.name, name) {
			return i
		}
	}
	return -1
}

// Set adds or overwrites a header. An overwritten header keeps its position.
func (h *Headers) Set(name, value string) {
	if i := h.index(name); i != -1 {
		h.fields[i].value = value
		return
	}
	h.fields = append(h.fields, field{name: name, value: value})
}

// WriteTo writes every field as "Name: value\r\n" in insertion order. It does
// not write the blank line that ends the header block.
func (h *Headers) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	for _, f := range h.fields {
		if !validName(f.name) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidName, f.name)
		}
		if strings.ContainsAny(f.value, "\r\n") {
			return 0, fmt.Errorf("header %s: value contains a line break", f.name)
		}
		buf.WriteString(f.name)
		buf.WriteString(": ")
		buf.WriteString(f.value)
		buf.WriteString("\r\n")
	}
	return buf.WriteTo(w)
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		b := name[i]
		isLetter := (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
		isDigit := (b >= '0' && b <= '9')
		isSpecial := strings.IndexByte("!#$%&'*+-.^_`|~", b) != -1

		if !isLetter && !isDigit && !isSpecial {
			return false
		}
	}
	return true
}
