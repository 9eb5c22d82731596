package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func TestScopedAPI(t *testing.T) {
	rec := &RecordingAPI{}
	scoped := NewScopedAPI("booking", rec)

	scoped.ReportWarning("session.login", "bad token")
	scoped.ReportCount("cache.download", 3)

	warnings := rec.Reports("warning", "booking: session.login")
	require.Len(t, warnings, 1)
	require.Equal(t, []any{"bad token"}, warnings[0].Params)
	require.Equal(t, []any{int64(3)}, rec.Reports("count", "booking: cache")[0].Params)
	require.Empty(t, rec.Reports("broken", ""))
}

type memoryOutput struct {
	mutex    sync.Mutex
	messages map[string]string
}

func (m *memoryOutput) Write(id, contents string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.messages == nil {
		m.messages = map[string]string{}
	}
	m.messages[id] = contents
}

func TestInstrumentResty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("statement ok"))
	}))
	defer server.Close()

	rec := &RecordingAPI{}
	out := &memoryOutput{}
	client := resty.New().SetBaseURL(server.URL)
	InstrumentResty(client, rec, out)

	res, err := client.R().SetFormData(map[string]string{"AgencyId": "555"}).Post("/Finance/ReportAccountStatement")
	require.NoError(t, err)
	require.Equal(t, 200, res.StatusCode())

	require.Len(t, rec.Reports("debug", report_resty_request), 1)
	require.Len(t, rec.Reports("debug", report_resty_response), 1)

	require.Len(t, out.messages, 1)
	message := out.messages["1"]
	require.True(t, strings.HasPrefix(message, "---- REQUEST ----"))
	require.Contains(t, message, "POST "+server.URL+"/Finance/ReportAccountStatement")
	require.Contains(t, message, "statement ok")
}

func TestInstrumentRestyTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	rec := &RecordingAPI{}
	client := resty.New().SetBaseURL(server.URL)
	InstrumentResty(client, rec, nil)

	_, err := client.R().Get("/")
	require.Error(t, err)
	require.Len(t, rec.Reports("warning", report_resty_response), 1)
}
