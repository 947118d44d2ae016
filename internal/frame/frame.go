// ABOUTME: Content-Length message framing used by the tool's language protocol over TCP
// ABOUTME: Reader parses header blocks and exact-length UTF-8 bodies; WriteMessage emits one frame per write

package frame

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultMaxMessageBytes caps a single body when the caller sets no limit.
const DefaultMaxMessageBytes = 64 << 20

// maxHeaderBytes bounds the header block of a single frame.
const maxHeaderBytes = 8 << 10

var (
	ErrMissingContentLength = errors.New("frame: missing Content-Length header")
	ErrInvalidContentLength = errors.New("frame: invalid Content-Length header")
	ErrMessageTooLarge      = errors.New("frame: message exceeds size limit")
	ErrHeaderTooLarge       = errors.New("frame: header block too large")
	ErrInvalidUTF8          = errors.New("frame: body is not valid UTF-8")
)

// Reader reads framed messages from a byte stream.
type Reader struct {
	r   *bufio.Reader
	max int
}

// NewReader returns a Reader over r. max <= 0 selects DefaultMaxMessageBytes.
func NewReader(r io.Reader, max int) *Reader {
	if max <= 0 {
		max = DefaultMaxMessageBytes
	}
	// A header line longer than the buffer fails ReadSlice with
	// bufio.ErrBufferFull, so no line grows past maxHeaderBytes.
	return &Reader{r: bufio.NewReaderSize(r, maxHeaderBytes), max: max}
}

// ReadMessage returns the next message body. It returns io.EOF when the
// stream ends cleanly between frames and io.ErrUnexpectedEOF when it ends
// inside one.
func (fr *Reader) ReadMessage() ([]byte, error) {
	length := -1
	headerBytes := 0
	first := true
	for {
		raw, err := fr.r.ReadSlice('\n')
		headerBytes += len(raw)
		if errors.Is(err, bufio.ErrBufferFull) || headerBytes > maxHeaderBytes {
			return nil, ErrHeaderTooLarge
		}
		line := string(raw)
		if err != nil {
			if errors.Is(err, io.EOF) {
				if first && line == "" {
					return nil, io.EOF
				}
				return nil, io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("reading header: %w", err)
		}
		first = false

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidContentLength, strings.TrimSpace(value))
		}
		length = n
	}

	if length < 0 {
		return nil, ErrMissingContentLength
	}
	if length > fr.max {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrMessageTooLarge, length, fr.max)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(fr.r, body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("reading %d byte body: %w", length, err)
	}
	if !utf8.Valid(body) {
		return nil, ErrInvalidUTF8
	}
	return body, nil
}

// Encode returns body framed with a Content-Length header.
func Encode(body []byte) []byte {
	header := "Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n"
	out := make([]byte, 0, len(header)+len(body))
	out = append(out, header...)
	return append(out, body...)
}

// WriteMessage writes body as a single frame in one Write call, so
// concurrent writers on a connection never interleave partial frames.
func WriteMessage(w io.Writer, body []byte) error {
	if _, err := w.Write(Encode(body)); err != nil {
		return fmt.Errorf("writing %d byte frame: %w", len(body), err)
	}
	return nil
}
