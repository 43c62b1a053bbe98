package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// sseTransport streams a chat request over HTTP with a server-sent-events
// response body. This is the default transport: one POST per utterance, the
// reply arriving as "data:" lines until the completion chunk.
type sseTransport struct {
	client      *http.Client
	baseURL     string
	fingerprint string
}

func (t *sseTransport) Name() string { return "sse" }

// Stream posts req and assembles the streamed reply. It returns a
// [*StatusError] for non-2xx responses and the context error if ctx is
// cancelled mid-stream.
func (t *sseTransport) Stream(ctx context.Context, req *chatRequest) (*Reply, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("backend: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/stream/%s", t.baseURL, req.SessionID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("X-Fingerprint", t.fingerprint)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("backend: post chat stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, readStatusError(resp)
	}

	var reply Reply
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
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
	if err := sc.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("backend: read stream: %w", err)
	}
	return nil, fmt.Errorf("backend: stream ended without completion chunk")
}

// readStatusError drains a non-2xx response into a [*StatusError], pulling
// the detail message from the envelope when the body parses as one.
func readStatusError(resp *http.Response) error {
	se := &StatusError{Code: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return se
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil {
		se.Message = env.Message
	}
	return se
}
