package status

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestText(t *testing.T) {
	require.Equal(t, "OK", Text(OK))
	require.Equal(t, "Method Not Allowed", Text(MethodNotAllowed))
	require.Equal(t, "Request Entity Too Large", Text(RequestEntityTooLarge))
	require.Equal(t, "Unknown Status Code", Text(299))
}

func TestBodyless(t *testing.T) {
	for _, code := range []Code{Continue, SwitchingProtocols, NoContent, NotModified} {
		require.True(t, Bodyless(code), code)
	}

	require.False(t, Bodyless(OK))
	require.False(t, Bodyless(NotFound))
}

func BenchmarkText(b *testing.B) {
	for range b.N {
		_ = Text(HTTPVersionNotSupported)
	}
}
