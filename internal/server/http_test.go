package server

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/host-mcp-go/internal/errors"
	"github.com/wagiedev/host-mcp-go/internal/protocol"
)

func newHTTPServer(t *testing.T, f *fixture, opts HTTPOptions) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(NewHTTP(discardLogger(), f.dispatcher, f.sessions, f.bridge, opts).Routes())
	t.Cleanup(srv.Close)

	return srv
}

func postRPC(t *testing.T, url, body string, header http.Header) (*http.Response, *protocol.Response) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)

	req.Header.Set("Content-Type", "application/json")

	for k, v := range header {
		req.Header[k] = v
	}

	httpResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	require.NoError(t, err)

	if len(data) == 0 {
		return httpResp, nil
	}

	var resp protocol.Response
	require.NoError(t, json.Unmarshal(data, &resp))

	return httpResp, &resp
}

func TestHTTP_RPC(t *testing.T) {
	f := newFixture(t)
	srv := newHTTPServer(t, f, HTTPOptions{})

	httpResp, resp := postRPC(t, srv.URL+"/rpc", `{"jsonrpc":"2.0","id":1,"method":"add","params":{"a":2,"b":3}}`, nil)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
	require.Equal(t, "application/json", httpResp.Header.Get("Content-Type"))
	require.Nil(t, resp.Error)
	require.JSONEq(t, "5", string(resp.Result))

	httpResp, resp = postRPC(t, srv.URL+"/rpc", `{"id":2,"method":"add","params":{"a":"x","b":3}}`, nil)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
	require.Equal(t, errors.KindInvalidParameters, resp.Error.Kind)

	httpResp, resp = postRPC(t, srv.URL+"/rpc", `{"id":3,"method":`, nil)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
	require.Equal(t, errors.KindProtocol, resp.Error.Kind)

	httpResp, resp = postRPC(t, srv.URL+"/rpc", `{"method":"notifications/initialized"}`, nil)
	require.Equal(t, http.StatusAccepted, httpResp.StatusCode)
	require.Nil(t, resp)

	require.Eventually(t, func() bool { return f.sessions.Len() == 0 }, time.Second, time.Millisecond,
		"ephemeral sessions are closed after each call")
}

func TestHTTP_UnknownSession(t *testing.T) {
	f := newFixture(t)
	srv := newHTTPServer(t, f, HTTPOptions{})

	httpResp, resp := postRPC(t, srv.URL+"/rpc", `{"id":1,"method":"ping"}`,
		http.Header{SessionHeader: []string{"missing"}})
	require.Equal(t, http.StatusNotFound, httpResp.StatusCode)
	require.Equal(t, errors.KindProtocol, resp.Error.Kind)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/sessions/missing", nil)
	require.NoError(t, err)

	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	require.Equal(t, http.StatusNotFound, delResp.StatusCode)
}

func TestHTTP_BodyLimit(t *testing.T) {
	f := newFixture(t)
	srv := newHTTPServer(t, f, HTTPOptions{MaxMessageBytes: 64})

	body := `{"id":1,"method":"add","params":{"a":1,"b":2,"pad":"` + strings.Repeat("x", 128) + `"}}`

	httpResp, resp := postRPC(t, srv.URL+"/rpc", body, nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, httpResp.StatusCode)
	require.Equal(t, errors.KindProtocol, resp.Error.Kind)
}

func TestHTTP_Healthz(t *testing.T) {
	f := newFixture(t)
	srv := newHTTPServer(t, f, HTTPOptions{})

	postRPC(t, srv.URL+"/rpc", `{"id":1,"method":"add","params":{"a":1,"b":1}}`, nil)

	httpResp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)

	defer httpResp.Body.Close()

	var health Health
	require.NoError(t, json.NewDecoder(httpResp.Body).Decode(&health))
	require.Equal(t, "ok", health.Status)
	require.Equal(t, uint64(1), health.Bridge.Completed)
	require.Equal(t, uint64(1), health.Requests[protocol.StateSucceeded])
}

func TestHTTP_MountsMCP(t *testing.T) {
	f := newFixture(t)
	srv := newHTTPServer(t, f, HTTPOptions{
		MCP: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
	})

	httpResp, err := http.Get(srv.URL + "/mcp")
	require.NoError(t, err)
	httpResp.Body.Close()
	require.Equal(t, http.StatusTeapot, httpResp.StatusCode)
}

// sseEvent is one parsed Server-Sent Event.
type sseEvent struct {
	event string
	data  string
}

func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()

	var ev sseEvent

	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)

		line = strings.TrimRight(line, "\n")

		switch {
		case line == "":
			if ev.event != "" || ev.data != "" {
				return ev
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			ev.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if ev.data != "" {
				ev.data += "\n"
			}

			ev.data += strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestHTTP_EventStream(t *testing.T) {
	f := newFixture(t)
	srv := newHTTPServer(t, f, HTTPOptions{KeepAlive: time.Hour})

	streamResp, err := http.Get(srv.URL + "/events")
	require.NoError(t, err)

	defer streamResp.Body.Close()

	require.Equal(t, "text/event-stream", streamResp.Header.Get("Content-Type"))

	sessionID := streamResp.Header.Get(SessionHeader)
	require.NotEmpty(t, sessionID)

	events := bufio.NewReader(streamResp.Body)

	endpoint := readEvent(t, events)
	require.Equal(t, "endpoint", endpoint.event)
	require.Equal(t, "/rpc?session="+sessionID, endpoint.data)

	_, resp := postRPC(t, srv.URL+endpoint.data, `{"id":"s1","method":"scan","params":{"steps":2}}`, nil)
	require.Nil(t, resp.Error)
	require.JSONEq(t, "2", string(resp.Result))

	for i := range 2 {
		ev := readEvent(t, events)
		require.Equal(t, "message", ev.event)

		var n struct {
			Method string                  `json:"method"`
			Params protocol.ProgressParams `json:"params"`
		}
		require.NoError(t, json.Unmarshal([]byte(ev.data), &n))
		require.Equal(t, protocol.MethodProgress, n.Method)
		require.JSONEq(t, `"s1"`, string(n.Params.ProgressToken))
		require.InDelta(t, float64(i+1), n.Params.Progress, 0)
	}

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/sessions/"+sessionID, nil)
	require.NoError(t, err)

	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	require.Equal(t, http.StatusNoContent, delResp.StatusCode)

	_, err = io.ReadAll(events)
	require.NoError(t, err, "stream ends cleanly after the session is deleted")

	_, ok := f.sessions.Get(sessionID)
	require.False(t, ok)
}

func TestHTTP_StreamDisconnectCancelsWork(t *testing.T) {
	f := newFixture(t)
	srv := newHTTPServer(t, f, HTTPOptions{KeepAlive: time.Hour})

	streamResp, err := http.Get(srv.URL + "/events")
	require.NoError(t, err)

	sessionID := streamResp.Header.Get(SessionHeader)

	done := make(chan *protocol.Response, 1)

	go func() {
		_, resp := postRPC(t, srv.URL+"/rpc?session="+sessionID, `{"id":1,"method":"wait"}`, nil)
		done <- resp
	}()

	select {
	case <-f.waitStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not start")
	}

	streamResp.Body.Close()

	select {
	case <-f.waitCancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("closing the event stream did not cancel in-flight work")
	}

	select {
	case resp := <-done:
		require.Nil(t, resp, "no response body for a closed session")
	case <-time.After(2 * time.Second):
		t.Fatal("POST never returned")
	}
}
