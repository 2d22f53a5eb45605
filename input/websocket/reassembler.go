package websocket

import (
	"bytes"
	"fmt"
	"io"

	"github.com/c360/cqstream/errors"
)

// Chunk is one piece of a message as read off the connection. Final marks
// the last piece of the message.
type Chunk struct {
	Data  []byte
	Final bool
}

// Reassembler joins chunks into complete messages. It is owned by a single
// read loop and is not safe for concurrent use.
type Reassembler struct {
	buf        *bytes.Buffer
	maxSize    int
	discarding bool
}

// NewReassembler creates a reassembler. maxSize <= 0 means unlimited.
func NewReassembler(maxSize int) *Reassembler {
	return &Reassembler{
		buf:     new(bytes.Buffer),
		maxSize: maxSize,
	}
}

// Feed appends a chunk. When the chunk is Final the accumulated bytes are
// returned as a complete message and a fresh buffer is started; the caller
// owns the returned slice.
//
// A message growing past the size limit is dropped with ErrMessageTooLarge
// and the rest of its chunks are skipped up to and including the Final one.
func (r *Reassembler) Feed(c Chunk) ([]byte, bool, error) {
	if r.discarding {
		if c.Final {
			r.discarding = false
		}
		return nil, false, nil
	}

	if r.maxSize > 0 && r.buf.Len()+len(c.Data) > r.maxSize {
		size := r.buf.Len() + len(c.Data)
		r.Reset()
		r.discarding = !c.Final
		return nil, false, errors.WrapInvalid(
			fmt.Errorf("%w: %d bytes > %d", errors.ErrMessageTooLarge, size, r.maxSize),
			"Reassembler", "Feed", "append chunk")
	}

	r.buf.Write(c.Data)
	if !c.Final {
		return nil, false, nil
	}

	msg := r.buf.Bytes()
	r.buf = new(bytes.Buffer)
	return msg, true, nil
}

// Reset discards any partial message
func (r *Reassembler) Reset() {
	r.buf = new(bytes.Buffer)
	r.discarding = false
}

// Pending reports the number of buffered bytes of the current message
func (r *Reassembler) Pending() int {
	return r.buf.Len()
}

// chunkReader turns the per-message readers of a Conn into a stream of chunks.
// Chunk data is only valid until the next call to Next.
type chunkReader struct {
	conn Conn
	cur  io.Reader
	buf  []byte
}

func newChunkReader(conn Conn, size int) *chunkReader {
	if size <= 0 {
		size = 1024
	}
	return &chunkReader{conn: conn, buf: make([]byte, size)}
}

// Next blocks until the next chunk is available
func (cr *chunkReader) Next() (Chunk, error) {
	for {
		if cr.cur == nil {
			_, r, err := cr.conn.NextReader()
			if err != nil {
				return Chunk{}, err
			}
			cr.cur = r
		}

		n, err := cr.cur.Read(cr.buf)
		if err == io.EOF {
			cr.cur = nil
			return Chunk{Data: cr.buf[:n], Final: true}, nil
		}
		if err != nil {
			cr.cur = nil
			return Chunk{}, err
		}
		if n > 0 {
			return Chunk{Data: cr.buf[:n]}, nil
		}
	}
}

// reset drops the in-progress message reader
func (cr *chunkReader) reset() {
	cr.cur = nil
}
