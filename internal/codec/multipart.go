package codec

import (
	"strings"

	"github.com/indigo-web/loom/http/form"
	"github.com/indigo-web/loom/http/mime"
	"github.com/indigo-web/loom/http/status"
	"github.com/indigo-web/utils/strcomp"
)

// MultipartDefaults are applied to parts that don't declare their own values.
type MultipartDefaults struct {
	ContentType mime.MIME
	Charset     mime.Charset
}

type partHeader struct {
	Name, File, ContentType, Charset string
}

const crlf = "\r\n"

// ParseMultipart decodes a complete multipart/form-data body delimited by the boundary
// and appends its parts to the form. A body that doesn't open or close with the
// boundary fails with status.ErrMultipartBoundaryMismatch, malformed part headers with
// status.ErrInvalidHeaderSyntax.
func ParseMultipart(into form.Form, body, boundary string, defaults MultipartDefaults) (form.Form, error) {
	if len(boundary) == 0 {
		return into, status.ErrMultipartBoundaryMismatch
	}

	delimiter := "--" + boundary
	// the preamble is ignored
	start := strings.Index(body, delimiter)
	if start == -1 {
		return into, status.ErrMultipartBoundaryMismatch
	}

	body = body[start+len(delimiter):]
	charset := defaults.Charset

	for {
		if strings.HasPrefix(body, "--") {
			// the epilogue is ignored as well
			return into, nil
		}

		if !strings.HasPrefix(body, crlf) {
			return into, status.ErrMultipartBoundaryMismatch
		}

		body = body[len(crlf):]

		hdr, rest, err := parsePartHeaders(body)
		if err != nil {
			return into, err
		}

		end := strings.Index(rest, crlf+delimiter)
		if end == -1 {
			return into, status.ErrMultipartBoundaryMismatch
		}

		value := rest[:end]
		body = rest[end+len(crlf)+len(delimiter):]

		if hdr.Name == "_charset_" {
			if len(value) == 0 {
				return into, status.ErrInvalidHeaderSyntax
			}

			charset = value
			continue
		}

		if len(hdr.Charset) == 0 {
			hdr.Charset = charset
		}

		if len(hdr.ContentType) == 0 {
			hdr.ContentType = defaults.ContentType
		}

		into = append(into, form.Data{
			Name:     hdr.Name,
			Filename: hdr.File,
			Type:     hdr.ContentType,
			Charset:  hdr.Charset,
			Value:    value,
		})
	}
}

func parsePartHeaders(data string) (hdr partHeader, rest string, err error) {
	for {
		line, tail, found := strings.Cut(data, crlf)
		if !found {
			return hdr, data, status.ErrMultipartBoundaryMismatch
		}

		data = tail
		if len(line) == 0 {
			break
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			return hdr, data, status.ErrInvalidHeaderSyntax
		}

		key, value = strings.TrimSpace(key), strings.TrimSpace(value)

		switch {
		case strcomp.EqualFold(key, "content-disposition"):
			kind, params := mime.Cut(value)
			if !strcomp.EqualFold(kind, "form-data") {
				return hdr, data, status.ErrInvalidHeaderSyntax
			}

			hdr.Name, _ = mime.Param(params, "name")
			hdr.File, _ = mime.Param(params, "filename")
		case strcomp.EqualFold(key, "content-type"):
			var params string
			hdr.ContentType, params = mime.Cut(value)
			hdr.Charset, _ = mime.Param(params, "charset")
		}
	}

	if len(hdr.Name) == 0 {
		return hdr, data, status.ErrInvalidHeaderSyntax
	}

	return hdr, data, nil
}
