package cookie

import (
	"strings"

	"github.com/indigo-web/loom/http/status"
	"github.com/indigo-web/loom/kv"
)

// Jar holds plain name-value pairs. Attributes of Set-Cookie values aren't stored.
type Jar = *kv.Storage

func NewJar() Jar {
	return kv.New()
}

// Mode selects the syntax of the parsed header value.
type Mode uint8

const (
	// Request is the Cookie header: many pairs separated by semicolons or commas.
	Request Mode = iota
	// Response is the Set-Cookie header: a single pair followed by attributes.
	Response
)

// Parse decodes a header value into the jar. Malformed input fails with
// status.ErrBadCookie, in which case the jar may hold the pairs decoded so far.
func Parse(jar Jar, data string, mode Mode) error {
	if mode == Response {
		return parseSetCookie(jar, data)
	}

	for len(data) > 0 {
		var token string
		if sep := strings.IndexAny(data, ";,"); sep != -1 {
			token, data = data[:sep], data[sep+1:]
		} else {
			token, data = data, ""
		}

		token = trim(token)
		if len(token) == 0 {
			continue
		}

		key, value, err := splitPair(token)
		if err != nil {
			return err
		}

		// $Version, $Path and $Domain are RFC 2109 attributes rather than cookies
		if key[0] == '$' {
			continue
		}

		jar.Add(key, value)
	}

	return nil
}

func parseSetCookie(jar Jar, data string) error {
	if semicolon := strings.IndexByte(data, ';'); semicolon != -1 {
		data = data[:semicolon]
	}

	key, value, err := splitPair(trim(data))
	if err != nil {
		return err
	}

	jar.Add(key, value)
	return nil
}

func splitPair(token string) (key, value string, err error) {
	eq := strings.IndexByte(token, '=')
	if eq <= 0 {
		return "", "", status.ErrBadCookie
	}

	key, value = trim(token[:eq]), trim(token[eq+1:])
	if len(key) == 0 {
		return "", "", status.ErrBadCookie
	}

	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		value = value[1 : len(value)-1]
	}

	return key, value, nil
}

func trim(str string) string {
	return strings.Trim(str, " \t")
}
