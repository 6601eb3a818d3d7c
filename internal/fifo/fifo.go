// Package fifo implements a bounded ring buffer of bytes with a shadow "alt"
// read cursor, used for the role state machines' RX scratch accumulation and
// for staging file-transfer chunks.
package fifo

import "github.com/osdp-go/osdp/internal/crc"

// Fifo is a fixed-capacity circular byte buffer. It never allocates once
// constructed. One slot is always kept free, so at most size-1 bytes are
// buffered; further writes are refused (GetSpace then reports 1).
type Fifo struct {
	buffer      []byte
	writePos    int
	readPos     int
	altReadPos  int
	started     bool
	aux         int
}

// New returns a Fifo with the given capacity.
func New(size int) *Fifo {
	return &Fifo{buffer: make([]byte, size)}
}

// Reset empties the buffer without releasing its backing array.
func (f *Fifo) Reset() {
	f.writePos = 0
	f.readPos = 0
	f.altReadPos = 0
	f.started = false
	f.aux = 0
}

func (f *Fifo) capacity() int { return len(f.buffer) }

// GetSpace returns the number of bytes that can still be written before the
// buffer would overwrite unread data.
func (f *Fifo) GetSpace() int {
	if !f.started {
		return f.capacity()
	}
	occupied := f.GetOccupied()
	return f.capacity() - occupied
}

// GetOccupied returns the number of unread bytes currently buffered.
func (f *Fifo) GetOccupied() int {
	if !f.started {
		return 0
	}
	if f.writePos > f.readPos {
		return f.writePos - f.readPos
	}
	if f.writePos < f.readPos {
		return f.capacity() - f.readPos + f.writePos
	}
	return f.capacity()
}

// Write copies as many bytes from buffer as fit without overtaking readPos,
// optionally folding each byte into a running CRC accumulator. It returns the
// number of bytes actually written.
func (f *Fifo) Write(buffer []byte, acc *crc.CRC16) int {
	n := 0
	for _, b := range buffer {
		if f.started && f.GetSpace() <= 1 {
			break
		}
		f.buffer[f.writePos] = b
		f.writePos = (f.writePos + 1) % f.capacity()
		f.started = true
		if acc != nil {
			acc.Single(b)
		}
		n++
	}
	return n
}

// Read copies up to len(buffer) unread bytes out, advancing readPos, and
// reports via eof whether the buffer is now empty.
func (f *Fifo) Read(buffer []byte, eof *bool) int {
	n := 0
	for n < len(buffer) && f.GetOccupied() > 0 {
		buffer[n] = f.buffer[f.readPos]
		f.readPos = (f.readPos + 1) % f.capacity()
		n++
		if f.readPos == f.writePos {
			f.started = false
		}
	}
	if eof != nil {
		*eof = f.GetOccupied() == 0
	}
	return n
}

// AltBegin places a shadow read cursor offset bytes before writePos, so that
// AltRead replays the last offset bytes written; with offset equal to
// GetOccupied it starts at the live readPos.
func (f *Fifo) AltBegin(offset int) int {
	f.altReadPos = (f.writePos - offset + f.capacity()) % f.capacity()
	return offset
}

// AltRead copies from the shadow cursor without disturbing the live readPos.
func (f *Fifo) AltRead(buffer []byte) int {
	n := 0
	for n < len(buffer) && f.altReadPos != f.writePos {
		buffer[n] = f.buffer[f.altReadPos]
		f.altReadPos = (f.altReadPos + 1) % f.capacity()
		n++
	}
	return n
}

// AltFinish commits the shadow cursor back as the live readPos, optionally
// feeding the bytes this consumes into a CRC accumulator.
func (f *Fifo) AltFinish(acc *crc.CRC16) {
	if acc != nil {
		for pos := f.readPos; pos != f.altReadPos; pos = (pos + 1) % f.capacity() {
			acc.Single(f.buffer[pos])
		}
	}
	f.readPos = f.altReadPos
	if f.readPos == f.writePos {
		f.started = false
	}
}

// AltGetOccupied reports how many bytes remain between the shadow cursor and
// writePos.
func (f *Fifo) AltGetOccupied() int {
	if f.altReadPos <= f.writePos {
		return f.writePos - f.altReadPos
	}
	return f.capacity() - f.altReadPos + f.writePos
}

// Peek copies up to len(buffer) unread bytes out without consuming them,
// using the shadow cursor so the live readPos is untouched.
func (f *Fifo) Peek(buffer []byte) int {
	f.AltBegin(f.GetOccupied())
	return f.AltRead(buffer)
}

// Discard consumes up to n unread bytes from the live cursor without
// copying them anywhere.
func (f *Fifo) Discard(n int) int {
	discarded := 0
	for discarded < n && f.GetOccupied() > 0 {
		f.readPos = (f.readPos + 1) % f.capacity()
		discarded++
		if f.readPos == f.writePos {
			f.started = false
		}
	}
	return discarded
}
