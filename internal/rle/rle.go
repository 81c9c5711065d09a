// Package rle implements the bounded run-length scheme used by the raster
// "G"/"g"/"Z" line commands: a line is a sequence of mixed-byte runs (a
// count byte followed by that many literal bytes) and repeated-byte runs
// (a negative count byte followed by a single byte to repeat).
package rle

import (
	"errors"
	"io"
)

var (
	// ErrTruncatedRun is returned by DecodeLine when a run's count byte
	// promises more data than remains in body.
	ErrTruncatedRun = errors.New("rle: truncated run")
	// ErrShortBuffer is returned by DecodeLine when dst cannot hold the
	// expanded line.
	ErrShortBuffer = errors.New("rle: output buffer too small")
)

// Bound returns the largest possible encoded body length for n input
// bytes. A repeated-byte run always encodes at least 3 source bytes into
// 2 output bytes, and two mixed-byte runs never appear back to back unless
// the first is the maximum 128 bytes long, so the encoding can only grow
// past n by a terminating mixed run and, once per 128 bytes, a full mixed
// run's count byte.
func Bound(n int) int {
	return n + n/128 + 1
}

// EncodeLine run-length encodes buf and writes the result to w. It
// reports how many bytes were written and whether buf held any nonzero
// byte (a line that is entirely zero can be represented by the caller as
// a bare "Z" line instead).
//
// The encoded length never exceeds Bound(len(buf)).
func EncodeLine(w io.Writer, buf []byte) (written int, nonzero bool, err error) {
	n := len(buf)
	if n == 0 {
		return 0, false, nil
	}

	write := func(p ...byte) error {
		nn, e := w.Write(p)
		written += nn
		return e
	}

	appendMixed := func(mixStart, mixLen int) error {
		if mixLen > 128 {
			mixLen = 128
		}
		if e := write(byte(mixLen - 1)); e != nil {
			return e
		}
		nn, e := w.Write(buf[mixStart : mixStart+mixLen])
		written += nn
		return e
	}

	appendRepeated := func(repLen int, repVal byte) error {
		return write(byte(int8(1-repLen)), repVal)
	}

	// Loop invariants, carried over line for line from the windowed
	// encoder this is ported from:
	//   1) [mixStart..repStart-1] holds mixed bytes not yet written
	//   2) [repStart..next-1] holds repeats of repVal not yet written
	//   3) next-repStart > 2 implies mixStart == repStart
	//   4) next-repStart <= 129
	//   5) repStart-mixStart < 128
	mixStart, repStart, next := 0, 0, 0
	repVal := buf[0]
	nextVal := buf[0]
	var nz byte

	for next != n {
		nz |= nextVal
		if next-repStart >= 129 {
			repLen := next - repStart
			if err = appendRepeated(repLen, repVal); err != nil {
				return written, nz != 0, err
			}
			repStart += repLen
			repVal = buf[repStart]
			mixStart = repStart
		}
		if nextVal == repVal {
			if next-repStart == 2 {
				mixLen := repStart - mixStart
				if mixLen > 0 {
					if err = appendMixed(mixStart, mixLen); err != nil {
						return written, nz != 0, err
					}
					mixStart = repStart
				}
			}
		} else {
			if next-repStart > 2 {
				repLen := next - repStart
				if err = appendRepeated(repLen, repVal); err != nil {
					return written, nz != 0, err
				}
				mixStart = next
			}
			repStart = next
			repVal = nextVal
			mixLen := repStart - mixStart
			if mixLen >= 128 {
				mixLen = 128
				if err = appendMixed(mixStart, mixLen); err != nil {
					return written, nz != 0, err
				}
				mixStart += mixLen
			}
		}
		next++
		if next != n {
			nextVal = buf[next]
		}
	}

	if next-repStart > 2 {
		repLen := next - repStart
		if err = appendRepeated(repLen, repVal); err != nil {
			return written, nz != 0, err
		}
		mixStart = next
	}
	repStart = next
	mixLen := repStart - mixStart
	if mixLen > 0 {
		if mixLen > 128 {
			mixLen = 128
		}
		if err = appendMixed(mixStart, mixLen); err != nil {
			return written, nz != 0, err
		}
		mixStart += mixLen
	}
	mixLen = repStart - mixStart
	if mixLen > 0 {
		if err = appendMixed(mixStart, mixLen); err != nil {
			return written, nz != 0, err
		}
	}

	return written, nz != 0, nil
}

// DecodeLine expands an encoded body (as produced by EncodeLine) into
// dst, returning the number of bytes written.
func DecodeLine(dst []byte, body []byte) (int, error) {
	p := 0
	n := 0
	for p < len(body) {
		l := int8(body[p])
		p++
		if l < 0 {
			if p >= len(body) {
				return n, ErrTruncatedRun
			}
			data := body[p]
			p++
			count := 1 - int(l)
			if n+count > len(dst) {
				return n, ErrShortBuffer
			}
			for i := 0; i < count; i++ {
				dst[n] = data
				n++
			}
		} else {
			count := int(l) + 1
			if p+count > len(body) {
				return n, ErrTruncatedRun
			}
			if n+count > len(dst) {
				return n, ErrShortBuffer
			}
			copy(dst[n:n+count], body[p:p+count])
			p += count
			n += count
		}
	}
	return n, nil
}
