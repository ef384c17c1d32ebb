package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Stream is an open streaming connection. The client only ever reads.
type Stream interface {
	// Recv blocks until one frame arrives and returns its raw payload.
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

// StreamDialer opens streams.
type StreamDialer interface {
	Dial(ctx context.Context, uri string, header http.Header) (Stream, error)
}

// WSDialer opens websocket streams.
type WSDialer struct {
	HandshakeTimeout time.Duration
}

func (d WSDialer) Dial(ctx context.Context, uri string, header http.Header) (Stream, error) {
	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}

	conn, resp, err := dialer.DialContext(ctx, uri, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("websocket dial: %w", &StatusError{
				Method: http.MethodGet,
				Path:   redactQuery(uri),
				Status: resp.StatusCode,
				Body:   strings.TrimSpace(string(body)),
			})
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return &wsStream{conn: conn}, nil
}

func redactQuery(uri string) string {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		return uri[:i]
	}
	return uri
}

type wsStream struct {
	conn *websocket.Conn
}

func (s *wsStream) Recv(ctx context.Context) ([]byte, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.conn.Close()
		case <-done:
		}
	}()

	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return nil, fmt.Errorf("stream closed before first frame: %w", err)
		}
		return nil, fmt.Errorf("stream read: %w", err)
	}
	return data, nil
}

func (s *wsStream) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return s.conn.Close()
}
