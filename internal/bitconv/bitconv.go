package bitconv

// BytesToBools expands b into bits, most significant bit first.
func BytesToBools(b []byte) []bool {
	bits := make([]bool, 0, len(b)*8)
	for _, bb := range b {
		bits = AppendUint(bits, uint64(bb), 8)
	}
	return bits
}

// BoolsToBytes packs bits into bytes, most significant bit first.
// A trailing partial byte is padded with zero bits.
func BoolsToBytes(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, bit := range bits {
		if bit {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
	return out
}

// AppendUint appends the lowest width bits of v to bits, big-endian.
func AppendUint(bits []bool, v uint64, width int) []bool {
	for i := width - 1; i >= 0; i-- {
		bits = append(bits, (v>>uint(i))&1 == 1)
	}
	return bits
}

// Uint reads bits as a big-endian unsigned integer.
// At most 64 bits are significant.
func Uint(bits []bool) uint64 {
	var v uint64
	for _, bit := range bits {
		v <<= 1
		if bit {
			v |= 1
		}
	}
	return v
}
