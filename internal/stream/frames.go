package stream

import (
	"bytes"
	"io"
	"iter"
)

// Delimiter separates frames on the wire.
const Delimiter = "\n\n"

// DefaultChunkSize is how much Reader asks the transport for per pull.
const DefaultChunkSize = 32 * 1024

// Splitter buffers arbitrarily-sized chunks and returns the complete frames
// they close. The trailing segment after the last delimiter is held until a
// later chunk completes it.
type Splitter struct {
	buf []byte
}

// Push appends chunk to the buffer and returns every frame it completed, in
// order. An empty chunk yields no frames.
func (s *Splitter) Push(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	s.buf = append(s.buf, chunk...)

	var frames []string
	for {
		i := bytes.Index(s.buf, []byte(Delimiter))
		if i < 0 {
			break
		}
		frames = append(frames, string(s.buf[:i]))
		s.buf = s.buf[i+len(Delimiter):]
	}
	// Compact so a long stream doesn't pin the consumed prefix.
	if len(s.buf) == 0 {
		s.buf = nil
	} else if cap(s.buf) > 4*len(s.buf) && cap(s.buf) > DefaultChunkSize {
		s.buf = append([]byte(nil), s.buf...)
	}
	return frames
}

// Pending returns the number of buffered bytes not yet part of a frame.
func (s *Splitter) Pending() int {
	return len(s.buf)
}

// Reset drops any buffered partial frame.
func (s *Splitter) Reset() {
	s.buf = nil
}

// Reader pulls chunks from an io.Reader and yields complete frames.
//
// Usage:
//
//	fr := NewReader(body)
//	for {
//	    frames, err := fr.Next()
//	    // handle frames, then err (io.EOF at a clean end of stream)
//	}
type Reader struct {
	src       io.Reader
	chunk     []byte
	split     Splitter
	discarded int
	received  int64
	eof       bool
}

// NewReader creates a frame reader over src.
func NewReader(src io.Reader) *Reader {
	return NewReaderSize(src, DefaultChunkSize)
}

// NewReaderSize creates a frame reader that requests at most size bytes per
// pull.
func NewReaderSize(src io.Reader, size int) *Reader {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &Reader{src: src, chunk: make([]byte, size)}
}

// Next performs one read from the underlying stream and returns the frames
// completed by that chunk. Frames may be returned together with a non-nil
// error; callers should process them before acting on the error. At end of
// stream the partial buffer is discarded and io.EOF is returned.
func (r *Reader) Next() ([]string, error) {
	if r.eof {
		return nil, io.EOF
	}
	n, err := r.src.Read(r.chunk)
	var frames []string
	if n > 0 {
		r.received += int64(n)
		frames = r.split.Push(r.chunk[:n])
	}
	if err == io.EOF {
		r.eof = true
		r.discarded = r.split.Pending()
		r.split.Reset()
	}
	return frames, err
}

// Received reports the number of bytes read from the source so far.
func (r *Reader) Received() int64 {
	return r.received
}

// Discarded reports how many trailing bytes were dropped at end of stream
// because no delimiter closed them.
func (r *Reader) Discarded() int {
	return r.discarded
}

// Frames returns a lazy sequence of the frames in src. A terminal read
// error other than io.EOF is yielded once as the last element.
func Frames(src io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		fr := NewReader(src)
		for {
			frames, err := fr.Next()
			for _, f := range frames {
				if !yield(f, nil) {
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
		}
	}
}
