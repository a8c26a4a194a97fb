package protocol

import (
	"context"
	"encoding/json"
)

type (
	requestKey  struct{}
	reporterKey struct{}
)

// ProgressFunc receives progress reports for a request served outside a
// Session, such as an MCP tool call.
type ProgressFunc func(progress, total float64, message string)

// WithProgress returns a context whose Progress calls go to fn. It takes
// precedence over the session event stream.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, reporterKey{}, fn)
}

// requestInfo identifies the session request a context belongs to.
type requestInfo struct {
	session       *Session
	method        string
	progressToken json.RawMessage
}

func withRequest(ctx context.Context, info *requestInfo) context.Context {
	return context.WithValue(ctx, requestKey{}, info)
}

func requestFrom(ctx context.Context) (*requestInfo, bool) {
	info, ok := ctx.Value(requestKey{}).(*requestInfo)

	return info, ok && info.session != nil
}

// SessionFrom returns the session that issued the request ctx belongs to.
func SessionFrom(ctx context.Context) (*Session, bool) {
	info, ok := requestFrom(ctx)
	if !ok {
		return nil, false
	}

	return info.session, true
}

// Progress pushes a notifications/progress event for the current request onto
// its session's event stream. The token is the request's
// params._meta.progressToken when given, otherwise the request id.
//
// It never blocks: a full event buffer drops the event and returns
// ErrEventDropped. A reporter installed with WithProgress receives the report
// instead. Outside a session request it is a no-op.
func Progress(ctx context.Context, progress, total float64, message string) error {
	if fn, ok := ctx.Value(reporterKey{}).(ProgressFunc); ok && fn != nil {
		fn(progress, total, message)

		return nil
	}

	info, ok := requestFrom(ctx)
	if !ok || len(info.progressToken) == 0 {
		return nil
	}

	return info.session.Notify(MethodProgress, &ProgressParams{
		ProgressToken: info.progressToken,
		Progress:      progress,
		Total:         total,
		Message:       message,
	})
}

// progressToken pulls _meta.progressToken out of params and strips _meta so
// it never reaches schema validation.
func progressToken(params map[string]any, fallback json.RawMessage) json.RawMessage {
	raw, present := params["_meta"]
	if !present {
		return fallback
	}

	delete(params, "_meta")

	meta, ok := raw.(map[string]any)
	if !ok {
		return fallback
	}

	token, ok := meta["progressToken"]
	if !ok {
		return fallback
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fallback
	}

	return data
}
