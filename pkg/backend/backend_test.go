package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClientEnvelopeSendsBearerAndQuery(t *testing.T) {
	t.Parallel()

	var gotAuth, gotQuery, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"code":200,"message":"ok","result":[{"id":"o1"}]}`)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL+"/", time.Second, WithHTTPClient(server.Client()))
	require.NoError(t, err)

	env, err := client.Envelope(context.Background(), Request{
		Path:  "/orders/search/detail",
		Query: url.Values{"status": {"CANCELED"}},
		Token: "tok",
	})
	require.NoError(t, err)
	require.NoError(t, env.Expect(CodeOK))
	require.Equal(t, "Bearer tok", gotAuth)
	require.Equal(t, "status=CANCELED", gotQuery)
	require.Equal(t, "/orders/search/detail", gotPath)

	var orders []map[string]any
	require.NoError(t, env.DecodeResult(&orders))
	require.Len(t, orders, 1)
}

func TestClientReportsHTTPStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	client := MustNew(server.URL, time.Second)
	_, err := client.Envelope(context.Background(), Request{Path: "/product/getdetail/x"})

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestEnvelopeExpectReportsCode(t *testing.T) {
	t.Parallel()

	err := Envelope{Code: 500, Message: "boom"}.Expect(CodeOK)

	var envErr *EnvelopeError
	require.ErrorAs(t, err, &envErr)
	require.Equal(t, 500, envErr.Code)
	require.Equal(t, "boom", envErr.Message)
}

func TestClientTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	client := MustNew(server.URL, time.Second)
	_, err := client.Envelope(context.Background(), Request{Path: "/slow", Timeout: 20 * time.Millisecond})
	require.True(t, errors.Is(err, ErrTimeout), "err = %v", err)
}

func TestClientMalformedBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not-json`)
	}))
	t.Cleanup(server.Close)

	client := MustNew(server.URL, time.Second)
	_, err := client.Envelope(context.Background(), Request{Path: "/x"})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestNewClientRejectsEmptyURL(t *testing.T) {
	t.Parallel()

	_, err := NewClient("  ", time.Second)
	require.Error(t, err)
}
