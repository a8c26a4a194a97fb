//go:build integration

package integration

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	hostmcp "github.com/wagiedev/host-mcp-go"
)

type rpcResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func postRPC(t *testing.T, url, body string) (int, *rpcResponse) {
	t.Helper()

	req, err := http.NewRequestWithContext(testContext(t), http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}

	var out rpcResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return resp.StatusCode, &out
}

func TestHTTP_Healthz(t *testing.T) {
	h := startServer(t)

	resp, err := http.Get(h.httpURL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status string `json:"status"`
	}

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	require.Equal(t, "ok", health.Status)
}

func TestHTTP_CallAndDiscover(t *testing.T) {
	h := startServer(t)

	status, resp := postRPC(t, h.httpURL+"/rpc", `{"jsonrpc":"2.0","id":1,"method":"add","params":{"a":2,"b":40}}`)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
	require.JSONEq(t, `1`, string(resp.ID))
	require.JSONEq(t, `42`, string(resp.Result))

	status, resp = postRPC(t, h.httpURL+"/rpc", `{"jsonrpc":"2.0","id":"list","method":"procedures/list","params":{"kind":"resource"}}`)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)

	var descriptors []hostmcp.Descriptor
	require.NoError(t, json.Unmarshal(resp.Result, &descriptors))
	require.NotEmpty(t, descriptors)

	for _, d := range descriptors {
		require.Equal(t, hostmcp.KindResource, d.Kind)
	}
}

func TestHTTP_ErrorKinds(t *testing.T) {
	h := startServer(t)

	tests := []struct {
		name string
		body string
		kind hostmcp.ErrorKind
	}{
		{"unknown procedure", `{"jsonrpc":"2.0","id":1,"method":"nope"}`, hostmcp.KindNotFound},
		{"bad params", `{"jsonrpc":"2.0","id":2,"method":"add","params":{"a":"x","b":1}}`, hostmcp.KindInvalidParameters},
		{"unsafe disabled", `{"jsonrpc":"2.0","id":3,"method":"set_value","params":{"key":"k","value":1}}`, hostmcp.KindUnsafeDisabled},
		{"handler failure", `{"jsonrpc":"2.0","id":4,"method":"get_value","params":{"key":"missing"}}`, hostmcp.KindHost},
		{"malformed", `{"jsonrpc":`, hostmcp.KindProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp := postRPC(t, h.httpURL+"/rpc", tt.body)
			require.NotNil(t, resp.Error)
			require.Equal(t, string(tt.kind), resp.Error.Kind)
		})
	}
}

func TestHTTP_UnsafeEnabled(t *testing.T) {
	h := startServer(t, hostmcp.WithUnsafe(true))

	_, resp := postRPC(t, h.httpURL+"/rpc", `{"jsonrpc":"2.0","id":1,"method":"set_value","params":{"key":"k","value":"v"}}`)
	require.Nil(t, resp.Error)

	_, resp = postRPC(t, h.httpURL+"/rpc", `{"jsonrpc":"2.0","id":2,"method":"get_value","params":{"key":"k"}}`)
	require.Nil(t, resp.Error)
	require.JSONEq(t, `"v"`, string(resp.Result))
}

func TestHTTP_EventStreamCarriesProgress(t *testing.T) {
	h := startServer(t)
	ctx := testContext(t)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.httpURL+"/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readEvents(resp.Body)

	first := <-events
	require.Equal(t, "endpoint", first.name)
	require.Contains(t, first.data, "/rpc?session=")

	status, rpc := postRPC(t, h.httpURL+first.data,
		`{"jsonrpc":"2.0","id":"scan-1","method":"scan","params":{"steps":3,"delay_ms":1}}`)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, rpc.Error)

	for i := 1; i <= 3; i++ {
		ev := <-events
		require.Equal(t, "message", ev.name)

		var n struct {
			Method string `json:"method"`
			Params struct {
				ProgressToken json.RawMessage `json:"progressToken"`
				Progress      float64         `json:"progress"`
				Total         float64         `json:"total"`
			} `json:"params"`
		}

		require.NoError(t, json.Unmarshal([]byte(ev.data), &n))
		require.Equal(t, "notifications/progress", n.Method)
		require.JSONEq(t, `"scan-1"`, string(n.Params.ProgressToken))
		require.InDelta(t, float64(i), n.Params.Progress, 0)
		require.InDelta(t, 3.0, n.Params.Total, 0)
	}
}

func TestHTTP_DeleteSession(t *testing.T) {
	h := startServer(t)

	req, err := http.NewRequestWithContext(testContext(t), http.MethodGet, h.httpURL+"/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	id := resp.Header.Get("X-Session-ID")
	require.NotEmpty(t, id)

	del, err := http.NewRequestWithContext(testContext(t), http.MethodDelete, h.httpURL+"/sessions/"+id, nil)
	require.NoError(t, err)

	delResp, err := http.DefaultClient.Do(del)
	require.NoError(t, err)
	delResp.Body.Close()
	require.Equal(t, http.StatusNoContent, delResp.StatusCode)

	status, rpc := postRPC(t, h.httpURL+"/rpc?session="+id, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, string(hostmcp.KindProtocol), rpc.Error.Kind)
}

type sseEvent struct {
	name string
	data string
}

// readEvents parses an SSE body until it ends. Comment lines are skipped.
func readEvents(body io.Reader) <-chan sseEvent {
	out := make(chan sseEvent, 16)

	go func() {
		defer close(out)

		scanner := bufio.NewScanner(body)

		var (
			ev   sseEvent
			data bytes.Buffer
		)

		for scanner.Scan() {
			line := scanner.Text()

			switch {
			case line == "":
				if ev.name != "" {
					ev.data = data.String()
					out <- ev
				}

				ev = sseEvent{}
				data.Reset()
			case strings.HasPrefix(line, ":"):
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				if data.Len() > 0 {
					data.WriteByte('\n')
				}

				data.WriteString(strings.TrimPrefix(line, "data: "))
			}
		}
	}()

	return out
}
