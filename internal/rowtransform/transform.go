// Package rowtransform implements the per-line bit transform that turns a
// raster-reader row (packed MSB-first, left-to-right) into a device-ready
// row (right-to-left device order, shifted, padded, optionally mirrored and
// XOR-inverted).
package rowtransform

import "github.com/ptouchraster/rastertoptch/internal/bitutil"

// TransformRow fills output (exactly bytesPerLine bytes) from input.
//
// Requirement on the caller: len(input) + rightPaddingBytes + (shift > 0
// ? 1 : 0) <= bytesPerLine; len(output) == bytesPerLine. If mirror is
// false, shift may be negative (shift right); if mirror is true, shift must
// be >= 0.
//
// Returns true iff any source bit contributed a set pixel prior to the
// xorMask being applied.
func TransformRow(input []byte, output []byte, bytesPerLine, rightPaddingBytes, shift int, mirror bool, xorMask byte) bool {
	buflen := len(input)
	for i := 0; i < rightPaddingBytes; i++ {
		output[i] = xorMask
	}

	var nonzero uint32
	j := rightPaddingBytes
	var box uint32

	switch {
	case mirror && shift != 0:
		for i := 0; i < buflen; i++ {
			data := uint32(input[i])
			nonzero |= data
			box |= data << uint(shift)
			output[j] = byte(box&0xff) ^ xorMask
			j++
			box >>= 8
		}
		output[j] = byte(box&0xff) ^ xorMask
		j++

	case mirror:
		for i := 0; i < buflen; i++ {
			data := input[i]
			nonzero |= uint32(data)
			output[j] = data ^ xorMask
			j++
		}

	case shift != 0:
		if buflen > 0 {
			if shift < 0 {
				box = uint32(input[buflen-1]) >> uint(-shift)
				nonzero |= box
				shift += 8
			} else {
				box = uint32(input[buflen-1]) << uint(shift)
				nonzero |= box
				output[j] = bitutil.Reverse(byte(box&0xff)) ^ xorMask
				j++
				box >>= 8
			}
			for i := buflen - 2; i >= 0; i-- {
				data := uint32(input[i])
				nonzero |= data
				box |= data << uint(shift)
				output[j] = bitutil.Reverse(byte(box&0xff)) ^ xorMask
				j++
				box >>= 8
			}
			output[j] = bitutil.Reverse(byte(box&0xff)) ^ xorMask
			j++
		}

	default:
		for i := buflen - 1; i >= 0; i-- {
			data := input[i]
			nonzero |= uint32(data)
			output[j] = bitutil.Reverse(data) ^ xorMask
			j++
		}
	}

	for k := j; k < bytesPerLine; k++ {
		output[k] = xorMask
	}
	return nonzero != 0
}
