package services

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/matchbridge/internal/client/models"
	"github.com/dmitrijs2005/matchbridge/internal/client/session"
	"github.com/dmitrijs2005/matchbridge/internal/client/transport"
	"github.com/dmitrijs2005/matchbridge/internal/logging"
	"github.com/stretchr/testify/require"
)

// ---- fake requester ----

type handlerFunc func(req *transport.Request) (*transport.Response, error)

// fakeAPI routes requests by path and counts every call.
type fakeAPI struct {
	mu       sync.Mutex
	handlers map[string]handlerFunc
	calls    map[string]int
	reqs     []*transport.Request
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{handlers: map[string]handlerFunc{}, calls: map[string]int{}}
}

func (f *fakeAPI) on(path string, h handlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[path] = h
}

func (f *fakeAPI) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	f.mu.Lock()
	f.calls[req.Path]++
	f.reqs = append(f.reqs, req)
	h := f.handlers[req.Path]
	f.mu.Unlock()

	if h == nil {
		return nil, &transport.StatusError{Method: req.Method, Path: req.Path, Status: http.StatusNotFound, Body: "no route"}
	}
	return h(req)
}

func (f *fakeAPI) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeAPI) last(path string) *transport.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.reqs) - 1; i >= 0; i-- {
		if f.reqs[i].Path == path {
			return f.reqs[i]
		}
	}
	return nil
}

func okJSON(v any) handlerFunc {
	return func(*transport.Request) (*transport.Response, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return &transport.Response{Status: http.StatusOK, Body: b}, nil
	}
}

func rawReply(body string) handlerFunc {
	return func(*transport.Request) (*transport.Response, error) {
		return &transport.Response{Status: http.StatusOK, Body: []byte(body)}, nil
	}
}

func okEmpty() handlerFunc {
	return func(*transport.Request) (*transport.Response, error) {
		return &transport.Response{Status: http.StatusOK}, nil
	}
}

func failWith(status int, body string) handlerFunc {
	return func(req *transport.Request) (*transport.Response, error) {
		return nil, &transport.StatusError{Method: req.Method, Path: req.Path, Status: status, Body: body}
	}
}

// bodyOf re-encodes a request body to a generic map for assertions.
func bodyOf(t *testing.T, req *transport.Request) map[string]any {
	t.Helper()
	require.NotNil(t, req)
	b, err := json.Marshal(req.Body)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

// ---- fake stream dialer ----

type fakeStream struct {
	frame  []byte
	err    error
	closed bool
}

func (s *fakeStream) Recv(ctx context.Context) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.frame, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeDialer struct {
	mu         sync.Mutex
	frame      []byte
	recvErr    error
	dialErr    error
	dials      int
	lastURI    string
	lastHeader http.Header
	streams    []*fakeStream
}

func (d *fakeDialer) Dial(ctx context.Context, uri string, header http.Header) (transport.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.lastURI = uri
	d.lastHeader = header.Clone()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	s := &fakeStream{frame: d.frame, err: d.recvErr}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDialer) setFrame(frame string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frame = []byte(frame)
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// ---- fixtures ----

const testAccount = "+15550001"

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var testFingerprint = Fingerprint{
	AppVersion:   "9.82.0",
	BuildNumber:  "11616",
	OSVersion:    "26.0",
	DeviceRegion: "FR",
}

var testChat = ChatEndpoint{URL: "wss://chat.example.test", AppID: "APP-1"}

type authFixture struct {
	svc    *AuthService
	api    *fakeAPI
	dialer *fakeDialer
	store  *session.FileStore
	logs   *bytes.Buffer
}

// newAuthFixture builds an AuthService over a temp-dir store. seed, when
// non-nil, adjusts the stored record before the service loads it.
func newAuthFixture(t *testing.T, seed func(r *models.Record)) *authFixture {
	t.Helper()
	ctx := context.Background()

	store := session.NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	if seed != nil {
		rec := session.NewRecord(testAccount)
		seed(rec)
		require.NoError(t, store.Save(ctx, rec))
	}

	api := newFakeAPI()
	dialer := &fakeDialer{frame: []byte(`LOGI{"key":"session-key-1","user_id":"ID-1"}`)}
	logs := &bytes.Buffer{}

	svc, err := NewAuthService(ctx, store, testAccount, api, dialer, testFingerprint, testChat,
		logging.NewTextLogger(&syncWriter{w: logs}, slog.LevelDebug),
		WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)

	return &authFixture{svc: svc, api: api, dialer: dialer, store: store, logs: logs}
}

// withChatAuth answers chat token requests with a token valid for ttl.
func (f *authFixture) withChatAuth(ttl time.Duration) {
	f.api.on(pathChatAuth, okJSON(map[string]any{
		"token":   "chat-token-1",
		"expires": testNow.Add(ttl),
	}))
}

func (f *authFixture) stored(t *testing.T) *models.Record {
	t.Helper()
	rec, err := f.store.Load(context.Background(), testAccount)
	require.NoError(t, err)
	return rec
}

// authenticated seeds an installed record with a valid primary token.
func authenticated(r *models.Record) {
	r.Installed = true
	r.IdentityID = "ID-1"
	r.PrimaryToken = "primary-1"
	r.PrimaryTokenExpires = testNow.Add(24 * time.Hour)
}

// syncWriter serializes log writes from concurrent goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
