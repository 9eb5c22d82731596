package booking

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"statementsync/internal/components/telemetry"
	"statementsync/internal/failure"

	"github.com/stretchr/testify/require"
)

// dropConnection reads the request and closes the connection without answering.
func dropConnection(t *testing.T, w http.ResponseWriter, r *http.Request) {
	io.Copy(io.Discard, r.Body)
	conn, _, err := w.(http.Hijacker).Hijack()
	if err != nil {
		t.Error(err)
		return
	}
	conn.Close()
}

func newTLSSession(t *testing.T, handler http.HandlerFunc) *Session {
	server := httptest.NewTLSServer(handler)
	t.Cleanup(server.Close)

	session, err := NewSession(Options{BaseUrl: server.URL}, &telemetry.RecordingAPI{})
	require.NoError(t, err)
	session.http.SetTransport(server.Client().Transport)
	return session
}

func TestReportPostIsNotResubmitted(t *testing.T) {
	var posts atomic.Int32
	session := newTLSSession(t, func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		dropConnection(t, w, r)
	})

	_, err := session.RequestReport(context.Background(), ReportRequest{ClientId: "555", Token: "token"})
	require.True(t, failure.Is(err, failure.ReportGeneration))
	require.Equal(t, int32(1), posts.Load())
}

func TestLoginPostIsNotResubmitted(t *testing.T) {
	var posts atomic.Int32
	session := newTLSSession(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(`<input name="__RequestVerificationToken" value="login-token" />`))
			return
		}
		posts.Add(1)
		dropConnection(t, w, r)
	})

	err := session.Login(context.Background(), "agent", "secret")
	require.True(t, failure.Is(err, failure.Authentication))
	require.Equal(t, int32(1), posts.Load())
}

func TestPageGetIsRetried(t *testing.T) {
	var gets atomic.Int32
	session := newTLSSession(t, func(w http.ResponseWriter, r *http.Request) {
		if gets.Add(1) == 1 {
			dropConnection(t, w, r)
			return
		}
		w.Write([]byte("statement"))
	})

	page, err := session.StatementPage(context.Background(), "555")
	require.NoError(t, err)
	require.Equal(t, "statement", string(page))
	require.Equal(t, int32(2), gets.Load())
}
