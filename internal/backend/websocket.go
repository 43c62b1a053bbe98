package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
)

// wsTransport streams a chat request over a short-lived websocket: dial the
// chat stream route, send the request as one text message, read chunks until
// completion. Deployments behind proxies that buffer SSE use this instead.
type wsTransport struct {
	client      *http.Client
	baseURL     string
	fingerprint string
}

func (t *wsTransport) Name() string { return "websocket" }

// Stream dials, sends req, and assembles the streamed reply.
func (t *wsTransport) Stream(ctx context.Context, req *chatRequest) (*Reply, error) {
	url := fmt.Sprintf("%s/chat/stream/%s", wsScheme(t.baseURL), req.SessionID)

	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient: t.client,
		HTTPHeader: http.Header{
			"X-Fingerprint": []string{t.fingerprint},
		},
	})
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return nil, &StatusError{Code: resp.StatusCode}
		}
		return nil, fmt.Errorf("backend: dial chat stream: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("backend: encode request: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return nil, fmt.Errorf("backend: send request: %w", err)
	}

	var reply Reply
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("backend: read stream: %w", err)
		}
		var chunk streamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return nil, fmt.Errorf("backend: decode stream chunk: %w", err)
		}
		switch chunk.Type {
		case chunkTypeMessage:
			reply.Text += chunk.Content
		case chunkTypeComplete:
			reply.MessageID = chunk.MessageID
			return &reply, nil
		}
	}
}

// wsScheme rewrites an http(s) base URL to its websocket equivalent.
func wsScheme(baseURL string) string {
	if rest, ok := strings.CutPrefix(baseURL, "https://"); ok {
		return "wss://" + rest
	}
	if rest, ok := strings.CutPrefix(baseURL, "http://"); ok {
		return "ws://" + rest
	}
	return baseURL
}
