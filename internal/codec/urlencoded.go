package codec

import (
	"strings"

	"github.com/indigo-web/loom/http/status"
	"github.com/indigo-web/loom/internal/hexconv"
)

// Unescape percent-decodes the string. When plus is set, '+' is decoded as a space,
// as application/x-www-form-urlencoded requires. The source is returned untouched if
// there's nothing to decode.
func Unescape(src string, plus bool) (string, error) {
	special := "%"
	if plus {
		special = "%+"
	}

	if strings.IndexAny(src, special) == -1 {
		return src, nil
	}

	var b strings.Builder
	b.Grow(len(src))

	for i := 0; i < len(src); i++ {
		switch c := src[i]; {
		case c == '%':
			if i+2 >= len(src) {
				return "", status.ErrURLDecoding
			}

			hi, lo := hexconv.Halfbyte[src[i+1]], hexconv.Halfbyte[src[i+2]]
			if hi|lo > 0x0f {
				return "", status.ErrURLDecoding
			}

			b.WriteByte(hi<<4 | lo)
			i += 2
		case c == '+' && plus:
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}

	return b.String(), nil
}

// ParseURLEncoded decodes key=value pairs separated by ampersands. Empty pairs are
// skipped, a key without a value gets an empty one. An empty key or a broken escape
// sequence fails with status.ErrURLDecoding.
func ParseURLEncoded(data string, plus bool, yield func(key, value string)) error {
	for len(data) > 0 {
		var pair string
		pair, data, _ = strings.Cut(data, "&")
		if len(pair) == 0 {
			continue
		}

		key, value, _ := strings.Cut(pair, "=")
		if len(key) == 0 {
			return status.ErrURLDecoding
		}

		key, err := Unescape(key, plus)
		if err != nil {
			return err
		}

		value, err = Unescape(value, plus)
		if err != nil {
			return err
		}

		yield(key, value)
	}

	return nil
}
