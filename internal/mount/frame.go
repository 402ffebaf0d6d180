package mount

import "bytes"

// FrameBuffer accumulates received bytes and cuts complete replies out of them.
// Incomplete data stays buffered; nothing is parsed before it is whole.
type FrameBuffer struct {
	buf []byte
}

// Feed appends received bytes.
func (b *FrameBuffer) Feed(p []byte) {
	b.buf = append(b.buf, p...)
}

// Next removes and returns one reply of the given shape, or false when the
// buffer does not hold a complete one yet.
func (b *FrameBuffer) Next(r Reply) (string, bool) {
	switch r.Kind {
	case ReplyNone:
		return "", true
	case ReplyFixed:
		if len(b.buf) < r.N {
			return "", false
		}
		return b.take(r.N), true
	case ReplyTerminated:
		end, seen := 0, 0
		for seen < r.N {
			i := bytes.IndexByte(b.buf[end:], '#')
			if i < 0 {
				return "", false
			}
			end += i + 1
			seen++
		}
		return b.take(end), true
	}
	return "", false
}

func (b *FrameBuffer) take(n int) string {
	out := string(b.buf[:n])
	rest := copy(b.buf, b.buf[n:])
	b.buf = b.buf[:rest]
	return out
}

// Buffered is the number of bytes waiting.
func (b *FrameBuffer) Buffered() int { return len(b.buf) }

// Reset drops everything, used when a connection is replaced.
func (b *FrameBuffer) Reset() { b.buf = b.buf[:0] }
