// Package lines splits a byte stream into lines as it arrives.
package lines

import (
	"bytes"
	"io"
)

// Channel reads f in small chunks and sends every complete line, without its
// "\n" or "\r\n" terminator. A trailing partial line is sent at EOF. The
// channel is closed and f is closed when reading stops.
func Channel(f io.ReadCloser) <-chan string {
	out := make(chan string)

	go func() {
		defer close(out)
		defer f.Close()

		data := make([]byte, 8)
		var linebuf bytes.Buffer

		for {
			n, err := f.Read(data)

			chunk := data[:n]
			for len(chunk) > 0 {
				i := bytes.IndexByte(chunk, '\n')
				if i == -1 {
					linebuf.Write(chunk)
					break
				}
				linebuf.Write(chunk[:i])
				out <- string(bytes.TrimSuffix(linebuf.Bytes(), []byte("\r")))
				linebuf.Reset()
				chunk = chunk[i+1:]
			}

			if err != nil {
				if err == io.EOF && linebuf.Len() > 0 {
					out <- linebuf.String()
				}
				return
			}
		}
	}()

	return out
}
