package alarm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func TestWebhookSink(t *testing.T) {
	received := make(chan Signal, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig := Signal{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sig))
		received <- sig
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(srv.URL, time.Second)
	require.NoError(t, err)
	defer sink.Close()

	sig := &Signal{Kind: SignalOn, Frame: 7, At: time.Now()}
	require.NoError(t, sink.Deliver(context.Background(), sig))

	got := <-received
	require.Equal(t, SignalOn, got.Kind)
	require.EqualValues(t, 7, got.Frame)
}

func TestWebhookSinkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(srv.URL, time.Second)
	require.NoError(t, err)
	require.Error(t, sink.Deliver(context.Background(), &Signal{Kind: SignalOff}))

	_, err = NewWebhookSink("", time.Second)
	require.Error(t, err)
}

func TestLoadSinks(t *testing.T) {
	log := logs.NewTestingLog(t)

	// Missing file: no sinks, no error
	sinks, err := LoadSinks(log, filepath.Join(t.TempDir(), "nothing.yaml"))
	require.NoError(t, err)
	require.Empty(t, sinks)

	path := filepath.Join(t.TempDir(), "sinks.yaml")
	body := `
audio:
  sound: /usr/share/sounds/alarm.wav
webhook:
  url: http://127.0.0.1:9999/alarm
  timeout_seconds: 1
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	sinks, err = LoadSinks(log, path)
	require.NoError(t, err)
	require.Len(t, sinks, 2)
	require.Equal(t, "audio:/usr/share/sounds/alarm.wav", sinks[0].Name())
}
