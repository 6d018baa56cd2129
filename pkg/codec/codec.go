// Package codec implements the framed JSON-RPC wire format used between the
// gateway and the processes/transports it interposes on: a Content-Length
// header per the LSP/MCP stdio convention, with a newline-delimited fallback
// for servers that skip the header entirely.
//
// The codec is payload-transparent. It never parses the JSON it carries;
// callers decode the returned bytes themselves.
package codec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// contentLengthPrefix is the header line the codec recognizes. Matching is
// case-sensitive, per the LSP base protocol this framing is borrowed from.
const contentLengthPrefix = "Content-Length:"

// ErrTruncatedFrame indicates EOF was hit mid-frame (after a header promised
// N bytes, or mid-header-block). Distinct from a clean EOF before any bytes
// of a new message were read.
var ErrTruncatedFrame = errors.New("codec: truncated frame")

// Reader reads framed JSON-RPC payloads from an underlying byte stream.
// Not safe for concurrent use by multiple goroutines.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r for framed reads. If r is already a *bufio.Reader it is
// used directly; otherwise it is buffered.
func NewReader(r io.Reader) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{br: br}
}

// ReadMessage reads one framed payload. It returns io.EOF when the stream is
// exhausted before any bytes of a new message are read, and ErrTruncatedFrame
// (wrapped) when EOF is hit partway through a frame.
//
// Header mode: lines are consumed until a blank line. Any line beginning
// with "Content-Length:" sets the expected body size; the body is then read
// as exactly that many bytes. Unrecognized header lines are ignored (per the
// LSP convention of tolerating additional headers).
//
// Newline-fallback mode: if the first line is non-blank, is not a recognized
// header, and itself looks like a JSON value (starts with '{' or '['), that
// line is treated as the entire payload.
func (r *Reader) ReadMessage() ([]byte, error) {
	first, err := r.br.ReadString('\n')
	if err != nil {
		if err == io.EOF && first == "" {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: %v", ErrTruncatedFrame, err)
	}

	trimmedFirst := strings.TrimRight(first, "\r\n")

	if trimmedFirst == "" {
		// Header block ended immediately: no Content-Length was ever seen,
		// and the newline fallback only applies when the first line was
		// itself non-empty. Nothing sensible to return.
		return nil, fmt.Errorf("%w: empty header block with no Content-Length", ErrTruncatedFrame)
	}

	if contentLength, ok := parseContentLength(trimmedFirst); ok {
		return r.readHeaderBody(contentLength, true)
	}

	// No recognized header on the first line. Fall back to newline-delimited
	// mode only if the line itself looks like a JSON payload.
	if looksLikeJSON(trimmedFirst) {
		return []byte(strings.TrimSpace(trimmedFirst)), nil
	}

	// Unrecognized, non-JSON first line: treat as an unrecognized header and
	// keep consuming the header block looking for Content-Length.
	return r.readHeaderBody(0, false)
}

// readHeaderBody consumes remaining header lines (if haveLength is false,
// still looking for Content-Length) until a blank line, then reads the body.
func (r *Reader) readHeaderBody(contentLength int, haveLength bool) ([]byte, error) {
	for {
		line, err := r.br.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTruncatedFrame, err)
		}
		trimmed := strings.TrimRight(line, "\r\n")

		if trimmed == "" {
			if !haveLength {
				return nil, fmt.Errorf("%w: no Content-Length header", ErrTruncatedFrame)
			}
			body := make([]byte, contentLength)
			if _, err := io.ReadFull(r.br, body); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrTruncatedFrame, err)
			}
			return body, nil
		}

		if n, ok := parseContentLength(trimmed); ok {
			contentLength = n
			haveLength = true
		}
		// Other headers are ignored.
	}
}

func parseContentLength(line string) (int, bool) {
	if !strings.HasPrefix(line, contentLengthPrefix) {
		return 0, false
	}
	valueStr := strings.TrimSpace(line[len(contentLengthPrefix):])
	n, err := strconv.Atoi(valueStr)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func looksLikeJSON(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return false
	}
	return trimmed[0] == '{' || trimmed[0] == '['
}

// Writer writes framed JSON-RPC payloads to an underlying byte stream.
// Not safe for concurrent use by multiple goroutines.
type Writer struct {
	w io.Writer
}

// NewWriter wraps w for framed writes.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteMessage writes payload framed as "Content-Length: N\r\n\r\n" followed
// by the exact payload bytes, with no trailing newline. If w has a Flush
// method (e.g. a *bufio.Writer), it is flushed before WriteMessage returns.
func (w *Writer) WriteMessage(payload []byte) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Content-Length: %d\r\n\r\n", len(payload))
	buf.Write(payload)

	if _, err := w.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("codec: write failed: %w", err)
	}
	if f, ok := w.w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("codec: flush failed: %w", err)
		}
	}
	return nil
}

type flusher interface {
	Flush() error
}

// ReadMessage is a convenience one-shot wrapper equivalent to
// NewReader(r).ReadMessage(), for callers that don't need to read a stream
// of multiple messages with a single reader.
func ReadMessage(r io.Reader) ([]byte, error) {
	return NewReader(r).ReadMessage()
}

// WriteMessage is a convenience one-shot wrapper equivalent to
// NewWriter(w).WriteMessage(payload).
func WriteMessage(w io.Writer, payload []byte) error {
	return NewWriter(w).WriteMessage(payload)
}
