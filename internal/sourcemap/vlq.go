package sourcemap

import "strings"

const (
	base64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

	vlqBaseShift       = 5
	vlqBase            = 1 << vlqBaseShift
	vlqBaseMask        = vlqBase - 1
	vlqContinuationBit = vlqBase
)

// base64Values maps an ASCII byte to its alphabet index, or -1.
var base64Values = func() [256]int {
	var table [256]int
	for i := range table {
		table[i] = -1
	}
	for i := 0; i < len(base64Alphabet); i++ {
		table[base64Alphabet[i]] = i
	}
	return table
}()

// DecodeVLQ decodes every Base64-VLQ value in a mapping segment.
// Decoding stops at the first byte outside the alphabet; a trailing value
// whose continuation bit is still set is discarded.
func DecodeVLQ(segment string) []int {
	var (
		values []int
		value  int
		shift  uint
	)

	for i := 0; i < len(segment); i++ {
		digit := base64Values[segment[i]]
		if digit < 0 {
			break
		}

		value += (digit & vlqBaseMask) << shift
		if digit&vlqContinuationBit != 0 {
			shift += vlqBaseShift
			continue
		}

		if value&1 == 0 {
			values = append(values, value>>1)
		} else {
			values = append(values, -(value >> 1))
		}
		value = 0
		shift = 0
	}

	return values
}

// EncodeVLQ encodes values as one Base64-VLQ segment.
func EncodeVLQ(values ...int) string {
	var sb strings.Builder
	for _, v := range values {
		encodeValue(&sb, v)
	}
	return sb.String()
}

func encodeValue(sb *strings.Builder, v int) {
	var vlq uint64
	if v < 0 {
		vlq = uint64(-int64(v))<<1 | 1
	} else {
		vlq = uint64(v) << 1
	}

	for {
		digit := vlq & vlqBaseMask
		vlq >>= vlqBaseShift
		if vlq > 0 {
			digit |= vlqContinuationBit
		}
		sb.WriteByte(base64Alphabet[digit])
		if vlq == 0 {
			return
		}
	}
}
