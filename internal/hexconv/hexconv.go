package hexconv

// Invalid marks bytes that aren't hex digits in Halfbyte.
const Invalid = 0xFF

// Halfbyte maps a hex digit onto its value.
var Halfbyte = func() (table [256]byte) {
	for i := range table {
		table[i] = Invalid
	}

	for c := byte('0'); c <= '9'; c++ {
		table[c] = c - '0'
	}

	for c := byte('a'); c <= 'f'; c++ {
		table[c] = c - 'a' + 10
		table[c-'a'+'A'] = c - 'a' + 10
	}

	return table
}()

const digits = "0123456789abcdef"

// Append appends the lowercase hex representation of n.
func Append(buff []byte, n uint64) []byte {
	if n == 0 {
		return append(buff, '0')
	}

	var tmp [16]byte
	i := len(tmp)
	for ; n > 0; n >>= 4 {
		i--
		tmp[i] = digits[n&0xf]
	}

	return append(buff, tmp[i:]...)
}
