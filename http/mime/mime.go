package mime

import (
	"strings"

	"github.com/indigo-web/utils/strcomp"
)

type MIME = string

const (
	OctetStream    MIME = "application/octet-stream"
	Plain          MIME = "text/plain"
	HTML           MIME = "text/html"
	JSON           MIME = "application/json"
	FormUrlencoded MIME = "application/x-www-form-urlencoded"
	Multipart      MIME = "multipart/form-data"
)

type Charset = string

const (
	UTF8  Charset = "utf-8"
	ASCII Charset = "us-ascii"
)

// Cut splits a Content-Type-like header value into the media type and its parameters.
// The media type is trimmed, parameters are returned as is.
func Cut(value string) (mime MIME, params string) {
	mime, params, _ = strings.Cut(value, ";")
	return strings.TrimSpace(mime), params
}

// Is reports whether the header value declares the media type, ignoring case and
// parameters.
func Is(value string, mime MIME) bool {
	base, _ := Cut(value)
	return strcomp.EqualFold(base, mime)
}

// Param looks up a parameter by its case-insensitive name. Quoted values are unquoted.
func Param(params, name string) (value string, found bool) {
	for len(params) > 0 {
		var param string
		param, params, _ = strings.Cut(params, ";")

		key, val, ok := strings.Cut(param, "=")
		if !ok || !strcomp.EqualFold(strings.TrimSpace(key), name) {
			continue
		}

		val = strings.TrimSpace(val)
		if len(val) >= 2 && val[0] == '"' && val[len(val)-1] == '"' {
			val = val[1 : len(val)-1]
		}

		return val, true
	}

	return "", false
}
