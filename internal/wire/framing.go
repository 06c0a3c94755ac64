package wire

import (
	"bufio"
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/wagiedev/sidecar-go/internal/errors"
)

const (
	// MaxLineSize is the largest record accepted from the child.
	MaxLineSize = 10 * 1024 * 1024 // 10MB

	// readBufferSize is the initial read buffer for the decoder.
	readBufferSize = 64 * 1024
)

// errMissingType is returned when encoding a message without a discriminator.
var errMissingType = stderrors.New("message has no type")

// Marshal encodes msg as a single JSON line including the trailing newline.
func Marshal(msg Message) ([]byte, error) {
	if msg.Type() == "" {
		return nil, errMissingType
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	// encoding/json never emits raw newlines, so one record is one line.
	return append(data, '\n'), nil
}

// Encoder writes framed messages to an output stream.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// WriteLine writes msg as one JSON record terminated by a newline.
//
// Concurrent calls never interleave. Failures of the underlying stream are
// returned as *errors.TransportWriteError.
func (e *Encoder) WriteLine(msg Message) error {
	data, err := Marshal(msg)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.w.Write(data); err != nil {
		return &errors.TransportWriteError{Err: err}
	}

	return nil
}

// Decoder reads framed messages from an input stream.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, readBufferSize)}
}

// ReadLine blocks until a complete record is available and decodes it.
//
// It returns errors.ErrEndOfStream once the stream is exhausted. A line that is
// not a JSON object yields *errors.TransportDecodeError; the line is discarded
// and the next call continues with the following record. Blank lines are
// skipped. Any other error comes from the underlying reader.
func (d *Decoder) ReadLine() (Message, error) {
	for {
		line, err := d.readRawLine()
		if err != nil && !stderrors.Is(err, io.EOF) {
			return nil, err
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if err != nil {
				return nil, errors.ErrEndOfStream
			}

			continue
		}

		if len(line) > MaxLineSize {
			return nil, &errors.TransportDecodeError{
				RawData: string(line[:256]),
				Err:     fmt.Errorf("line exceeds %d bytes", MaxLineSize),
			}
		}

		msg, uerr := decodeObject(line)
		if uerr != nil {
			return nil, &errors.TransportDecodeError{RawData: string(line), Err: uerr}
		}

		if msg == nil {
			return nil, &errors.TransportDecodeError{
				RawData: string(line),
				Err:     stderrors.New("record is not a JSON object"),
			}
		}

		return msg, nil
	}
}

// decodeObject decodes one record. Numbers become float64 unless they are
// integers float64 cannot hold exactly; those stay json.Number so they are
// written back unchanged.
func decodeObject(line []byte) (Message, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var msg Message
	if err := dec.Decode(&msg); err != nil {
		return nil, err
	}

	if _, err := dec.Token(); !stderrors.Is(err, io.EOF) {
		return nil, stderrors.New("trailing data after JSON value")
	}

	for k, v := range msg {
		msg[k] = normalizeNumbers(v)
	}

	return msg, nil
}

// maxExactInt is the largest integer magnitude a float64 represents exactly.
const maxExactInt = 1 << 53

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
	case json.Number:
		return number(t)
	}

	return v
}

func number(n json.Number) any {
	if !strings.ContainsAny(n.String(), ".eE") {
		if i, err := n.Int64(); err == nil && i >= -maxExactInt && i <= maxExactInt {
			return float64(i)
		}

		return n
	}

	f, err := n.Float64()
	if err != nil {
		return n
	}

	return f
}

// readRawLine returns the next line without its terminator. An unterminated
// final line is returned together with io.EOF.
func (d *Decoder) readRawLine() ([]byte, error) {
	var buf []byte

	for {
		chunk, err := d.r.ReadSlice('\n')

		// Keep consuming an oversized line so the stream stays aligned, but
		// stop growing the buffer once it is over the limit.
		if len(buf) <= MaxLineSize {
			buf = append(buf, chunk...)
		}

		switch {
		case err == nil:
			return buf, nil
		case stderrors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return buf, err
		}
	}
}
