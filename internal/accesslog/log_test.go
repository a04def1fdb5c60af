package accesslog

import (
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/irtimmer/rproxy/internal/rpctx"
	"github.com/irtimmer/rproxy/internal/service"
)

func TestLayerWritesNCSAExtendedLine(t *testing.T) {
	restore := now
	now = func() time.Time { return time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC) }
	defer func() { now = restore }()

	var buf strings.Builder
	layer := &Layer{
		Inner: service.Hello{},
		Writer: &buf,
	}

	req, err := http.NewRequest(http.MethodGet, "http://example.com/a/b?x=1", nil)
	require.NoError(t, err)
	req.Header.Set("Referer", "http://ref.example")
	req.Header.Set("User-Agent", "test-agent")
	req = rpctx.WithConnContext(req, rpctx.Context{Addr: net.ParseIP("10.0.0.5")})

	resp, err := layer.Call(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	line := buf.String()
	require.Contains(t, line, "10.0.0.5 - - ")
	require.Contains(t, line, `"/a/b?x=1"`)
	require.Contains(t, line, " 200 12 ")
	require.Contains(t, line, `"http://ref.example"`)
	require.Contains(t, line, `"test-agent"`)
	require.True(t, strings.HasSuffix(line, "\n"))
}

func TestLayerLogsFailureAsFiveHundredZero(t *testing.T) {
	var buf strings.Builder
	layer := &Layer{
		Inner: service.Func(func(req *http.Request) (*http.Response, error) {
			return nil, assertErr
		}),
		Writer: &buf,
	}

	req, err := http.NewRequest(http.MethodGet, "http://example.com/fail", nil)
	require.NoError(t, err)

	_, err = layer.Call(req)
	require.Error(t, err)
	require.Contains(t, buf.String(), " 500 0 ")
}

var assertErr = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
