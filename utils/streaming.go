package utils

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

// DefaultChunkSize is the read size used when callers pass 0.
const DefaultChunkSize = 32 << 10

// maxPooled caps the buffers kept for reuse.
const maxPooled = 8 << 20

// maxEmptyReads is how many consecutive (0, nil) reads are tolerated before
// a source is reported as stuck with io.ErrNoProgress.
const maxEmptyReads = 100

// ErrTooLarge is returned once a source holds more bytes than its limit.
var ErrTooLarge = errors.New("input exceeds size limit")

var drainPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

// ReadAll drains r in chunk-sized reads, checking ctx between reads, and
// returns a private copy of everything read.  With max > 0 it fails with
// ErrTooLarge as soon as r turns out to hold more than max bytes.
func ReadAll(ctx context.Context, r io.Reader, max int64, chunk int) ([]byte, error) {
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	if max > 0 {
		r = &LimitedReader{R: r, Max: max}
	}

	buf := drainPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		if buf.Cap() <= maxPooled {
			drainPool.Put(buf)
		}
	}()

	scratch := make([]byte, chunk)
	empty := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := r.Read(scratch)
		buf.Write(scratch[:n])
		if err == io.EOF {
			return CloneBytes(buf.Bytes()), nil
		}
		if err != nil {
			return nil, err
		}
		if n > 0 {
			empty = 0
		} else if empty++; empty >= maxEmptyReads {
			return nil, io.ErrNoProgress
		}
	}
}

// LimitedReader passes through at most Max bytes of R and reports
// ErrTooLarge when R has more.  Max <= 0 disables the limit.
type LimitedReader struct {
	R    io.Reader
	Max  int64
	read int64
}

func (l *LimitedReader) Read(p []byte) (int, error) {
	if l.Max <= 0 {
		return l.R.Read(p)
	}
	left := l.Max - l.read
	if left <= 0 {
		return 0, l.overflow()
	}
	if int64(len(p)) > left {
		p = p[:left]
	}
	n, err := l.R.Read(p)
	l.read += int64(n)
	return n, err
}

// overflow reads one byte past the limit: any data means the source is too
// large, io.EOF means it ended exactly at the limit.
func (l *LimitedReader) overflow() error {
	var one [1]byte
	for i := 0; i < maxEmptyReads; i++ {
		n, err := l.R.Read(one[:])
		if n > 0 {
			return ErrTooLarge
		}
		if err != nil {
			return err
		}
	}
	return io.ErrNoProgress
}
