// Package services holds the client's application services: the
// credential manager that drives login and chat federation, the rating
// workflow, and feed retrieval with profile hydration.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/matchbridge/internal/client/models"
	"github.com/dmitrijs2005/matchbridge/internal/client/session"
	"github.com/dmitrijs2005/matchbridge/internal/client/transport"
	"github.com/dmitrijs2005/matchbridge/internal/common"
	"github.com/dmitrijs2005/matchbridge/internal/logging"
	"golang.org/x/sync/singleflight"
)

// State is a position in the login state machine. It is derived from the
// session record rather than stored.
type State int

const (
	StateUnregistered State = iota
	StateDeviceInstalled
	StateOTPRequested
	StateAuthenticated
	StateChatFederated
	StateStreamKeyed
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateDeviceInstalled:
		return "device installed"
	case StateOTPRequested:
		return "otp requested"
	case StateAuthenticated:
		return "authenticated"
	case StateChatFederated:
		return "chat federated"
	case StateStreamKeyed:
		return "stream keyed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	pathInstall      = "/identity/install"
	pathOTPInitiate  = "/auth/sms/v2/initiate"
	pathOTPSubmit    = "/auth/sms/v2"
	pathChatAuth     = "/message/authenticate"
	chatTokenHeader  = "SENDBIRD-WS-TOKEN"
	preambleTag      = "LOGI"
	federateFlightID = "federate"

	defaultFlightTimeout = 30 * time.Second
)

// Fingerprint is the client identity presented on every request.
type Fingerprint struct {
	AppVersion   string
	BuildNumber  string
	OSVersion    string
	DeviceRegion string
}

// ChatEndpoint locates the chat provider's streaming endpoint.
type ChatEndpoint struct {
	URL   string
	AppID string
}

// AuthService owns the session record and drives it through install, OTP
// login and chat federation. It is safe for concurrent use; federation is
// serialized so that concurrent refreshes share one handshake.
type AuthService struct {
	store       session.Store
	api         transport.Requester
	dialer      transport.StreamDialer
	fingerprint Fingerprint
	chat        ChatEndpoint
	log         logging.Logger
	now         func() time.Time

	mu           sync.Mutex
	rec          *models.Record
	otpRequested bool
	// chatGen increments on every stored chat credential, letting a
	// refresh detect that another caller already replaced the token it saw.
	chatGen uint64

	flight        singleflight.Group
	flightTimeout time.Duration
}

type AuthOption func(*AuthService)

// WithFederationTimeout bounds a shared federation run. The run is detached
// from any single caller's cancellation, so this is its only deadline.
func WithFederationTimeout(d time.Duration) AuthOption {
	return func(s *AuthService) { s.flightTimeout = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

// NewAuthService loads the session record for accountID, creating a fresh
// one when none is stored or the stored one belongs to another account.
func NewAuthService(
	ctx context.Context,
	store session.Store,
	accountID string,
	api transport.Requester,
	dialer transport.StreamDialer,
	fp Fingerprint,
	chat ChatEndpoint,
	log logging.Logger,
	opts ...AuthOption,
) (*AuthService, error) {
	rec, created, err := session.LoadOrCreate(ctx, store, accountID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if created {
		log.Info(ctx, "created new session record", "device_id", rec.DeviceID, "session_id", rec.SessionID)
	}

	s := &AuthService{
		store:       store,
		api:         api,
		dialer:      dialer,
		fingerprint: fp,
		chat:        chat,
		log:         log,
		now:         time.Now,
		rec:         rec,

		flightTimeout: defaultFlightTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Snapshot returns a copy of the current session record.
func (s *AuthService) Snapshot() models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rec
}

func (s *AuthService) credentials() (models.Credentials, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Credentials(), s.chatGen
}

// update persists a modified copy of the record and only then makes it
// current, so a failed save leaves memory and disk in agreement.
func (s *AuthService) update(ctx context.Context, fn func(*models.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.rec
	fn(&next)
	if err := s.store.Save(ctx, &next); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.rec = &next
	return nil
}

func (s *AuthService) State() State {
	s.mu.Lock()
	rec := *s.rec
	otp := s.otpRequested
	s.mu.Unlock()

	now := s.now()
	creds := rec.Credentials()
	switch {
	case !rec.Installed:
		return StateUnregistered
	case !creds.PrimaryValid(now):
		if otp || creds.PrimaryToken != "" {
			return StateOTPRequested
		}
		return StateDeviceInstalled
	case !creds.ChatValid(now):
		return StateAuthenticated
	case creds.ChatSessionKey == "":
		return StateChatFederated
	default:
		return StateStreamKeyed
	}
}

// Headers builds the header set for the next request from the current
// record. Call it per request: tokens may have changed since the last one.
func (s *AuthService) Headers() http.Header {
	rec := s.Snapshot()
	fp := s.fingerprint

	h := make(http.Header, 16)
	h.Set("X-Device-Platform", "iOS")
	h.Set("User-Agent", "Hinge/"+fp.BuildNumber+" CFNetwork/3857.100.1 Darwin/25.0.0")
	h.Set("Accept", "*/*")
	h.Set("Accept-Language", "en-GB")
	h.Set("Content-Type", "application/json")
	h.Set("X-Device-Model-Code", "iPhone16,1")
	h.Set("X-Device-Model", "unknown")
	h.Set("X-Device-Region", fp.DeviceRegion)

	h.Set("X-Session-Id", rec.SessionID)
	h.Set("X-Device-Id", rec.DeviceID)
	h.Set("X-Install-Id", rec.InstallID)
	h.Set("X-App-Version", fp.AppVersion)
	h.Set("X-Build-Number", fp.BuildNumber)
	h.Set("X-OS-Version", fp.OSVersion)

	if rec.PrimaryToken != "" {
		h.Set("Authorization", "Bearer "+rec.PrimaryToken)
	}
	return h
}

type installRequest struct {
	InstallID string `json:"installId"`
}

type otpInitiateRequest struct {
	DeviceID    string `json:"deviceId"`
	PhoneNumber string `json:"phoneNumber"`
}

type otpSubmitRequest struct {
	InstallID   string `json:"installId"`
	DeviceID    string `json:"deviceId"`
	PhoneNumber string `json:"phoneNumber"`
	OTP         string `json:"otp"`
}

type primaryTokenResponse struct {
	IdentityID string    `json:"identityId"`
	Token      string    `json:"token"`
	Expires    time.Time `json:"expires"`
}

type chatAuthRequest struct {
	Refresh bool `json:"refresh"`
}

type chatTokenResponse struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

// InitiateLogin registers the device if that has not happened yet and then
// asks for an SMS code. The install step is skipped on later calls.
func (s *AuthService) InitiateLogin(ctx context.Context) error {
	rec := s.Snapshot()
	log := s.log.With("device_id", rec.DeviceID, "install_id", rec.InstallID)

	if !rec.Installed {
		_, err := s.api.Do(ctx, &transport.Request{
			Method: http.MethodPost,
			Path:   pathInstall,
			Header: s.Headers(),
			Body:   installRequest{InstallID: rec.InstallID},
		})
		if err != nil {
			log.Error(ctx, "device install failed", "error", err)
			return loginError("install device", err)
		}
		if err := s.update(ctx, func(r *models.Record) { r.Installed = true }); err != nil {
			return loginError("install device", err)
		}
		log.Info(ctx, "device installed")
	} else {
		log.Debug(ctx, "device already installed")
	}

	_, err := s.api.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		Path:   pathOTPInitiate,
		Header: s.Headers(),
		Body:   otpInitiateRequest{DeviceID: rec.DeviceID, PhoneNumber: rec.AccountID},
	})
	if err != nil {
		log.Error(ctx, "otp request failed", "error", err)
		return loginError("request otp", err)
	}

	s.mu.Lock()
	s.otpRequested = true
	s.mu.Unlock()

	log.Info(ctx, "otp requested")
	return nil
}

// SubmitOTP trades the SMS code for a primary token and then federates with
// the chat provider. It returns only after federation has finished; a
// federation failure keeps the primary token.
func (s *AuthService) SubmitOTP(ctx context.Context, code string) error {
	rec := s.Snapshot()

	resp, err := s.api.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		Path:   pathOTPSubmit,
		Header: s.Headers(),
		Body: otpSubmitRequest{
			InstallID:   rec.InstallID,
			DeviceID:    rec.DeviceID,
			PhoneNumber: rec.AccountID,
			OTP:         code,
		},
	})
	if err != nil {
		s.log.Error(ctx, "otp submission failed", "error", err)
		return loginError("submit otp", err)
	}

	var tok primaryTokenResponse
	if err := resp.Decode(&tok); err != nil {
		return loginError("submit otp", fmt.Errorf("%w: %v", common.ErrMalformedToken, err))
	}
	if tok.Token == "" || tok.Expires.IsZero() {
		return loginError("submit otp", fmt.Errorf("%w: missing token or expiry", common.ErrMalformedToken))
	}

	err = s.update(ctx, func(r *models.Record) {
		r.PrimaryToken = tok.Token
		r.PrimaryTokenExpires = tok.Expires
		r.IdentityID = tok.IdentityID
	})
	if err != nil {
		return loginError("submit otp", err)
	}

	s.mu.Lock()
	s.otpRequested = false
	s.mu.Unlock()

	s.log.Info(ctx, "primary token issued", "identity_id", tok.IdentityID, "expires", tok.Expires)

	return s.Federate(ctx)
}

// Federate obtains a fresh chat token and session key. Concurrent callers
// share a single in-flight handshake and its result.
func (s *AuthService) Federate(ctx context.Context) error {
	return s.shareFlight(ctx, s.federate)
}

// refreshChat federates unless the chat credentials changed since the
// caller observed generation seen. A caller arriving after another
// refresh completed therefore reuses that refresh instead of starting its
// own.
func (s *AuthService) refreshChat(ctx context.Context, seen uint64) error {
	return s.shareFlight(ctx, func(ctx context.Context) error {
		if _, gen := s.credentials(); gen != seen {
			return nil
		}
		return s.federate(ctx)
	})
}

// shareFlight runs fn once for all concurrent callers. The run keeps the
// first caller's values but not its cancellation; each caller stops
// waiting when its own ctx is done.
func (s *AuthService) shareFlight(ctx context.Context, fn func(context.Context) error) error {
	ch := s.flight.DoChan(federateFlightID, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.flightTimeout)
		defer cancel()
		return nil, fn(fctx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return federationError("federate", ctx.Err())
	}
}

func (s *AuthService) federate(ctx context.Context) error {
	rec := s.Snapshot()
	if rec.PrimaryToken == "" {
		return federationError("authenticate", common.ErrNotAuthenticated)
	}
	log := s.log.With("identity_id", rec.IdentityID)

	resp, err := s.api.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		Path:   pathChatAuth,
		Header: s.Headers(),
		Body:   chatAuthRequest{Refresh: false},
	})
	if err != nil {
		log.Error(ctx, "chat token request failed", "error", err)
		return federationError("authenticate", err)
	}

	var tok chatTokenResponse
	if err := resp.Decode(&tok); err != nil {
		return federationError("authenticate", fmt.Errorf("%w: %v", common.ErrMalformedToken, err))
	}
	if tok.Token == "" || tok.Expires.IsZero() {
		return federationError("authenticate", fmt.Errorf("%w: missing token or expiry", common.ErrMalformedToken))
	}

	key, err := s.handshake(ctx, rec.IdentityID, tok.Token)
	if err != nil {
		log.Error(ctx, "chat handshake failed", "error", err)
		return federationError("handshake", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := *s.rec
	next.ChatToken = tok.Token
	next.ChatTokenExpires = tok.Expires
	next.ChatSessionKey = key
	if err := s.store.Save(ctx, &next); err != nil {
		return federationError("persist", fmt.Errorf("save session: %w", err))
	}
	s.rec = &next
	s.chatGen++

	log.Info(ctx, "chat federation complete", "expires", tok.Expires)
	return nil
}

// handshake opens the chat stream, reads the single preamble frame and
// returns the session key it carries. Nothing is ever sent.
func (s *AuthService) handshake(ctx context.Context, identityID, chatToken string) (string, error) {
	header := http.Header{}
	header.Set(chatTokenHeader, chatToken)

	stream, err := s.dialer.Dial(ctx, s.chatURI(identityID), header)
	if err != nil {
		return "", err
	}
	defer func() { _ = stream.Close() }()

	frame, err := stream.Recv(ctx)
	if err != nil {
		return "", err
	}
	return parsePreamble(frame)
}

func (s *AuthService) chatURI(identityID string) string {
	return fmt.Sprintf("%s/?user_id=%s&ai=%s",
		strings.TrimRight(s.chat.URL, "/"),
		url.QueryEscape(identityID),
		url.QueryEscape(s.chat.AppID))
}

type preamble struct {
	Key     string `json:"key"`
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func parsePreamble(frame []byte) (string, error) {
	if !bytes.HasPrefix(frame, []byte(preambleTag)) {
		tag := frame
		if len(tag) > len(preambleTag) {
			tag = tag[:len(preambleTag)]
		}
		return "", fmt.Errorf("%w: tag %q", common.ErrUnexpectedFrame, tag)
	}

	var p preamble
	if err := json.Unmarshal(frame[len(preambleTag):], &p); err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrUnexpectedFrame, err)
	}
	if p.Error {
		return "", fmt.Errorf("%w: provider refused: %s (code %d)", common.ErrUnexpectedFrame, p.Message, p.Code)
	}
	if p.Key == "" {
		return "", fmt.Errorf("%w: preamble has no key", common.ErrUnexpectedFrame)
	}
	return p.Key, nil
}

// IsValid reports whether both credentials are present and unexpired,
// federating first when the chat token is missing or expired. It is a
// repair step as much as a check: it may hit the network. Once both tokens
// are good it is a pure read.
func (s *AuthService) IsValid(ctx context.Context) (bool, error) {
	creds, gen := s.credentials()
	if creds.PrimaryToken == "" {
		return false, nil
	}

	if creds.ChatToken == "" {
		if err := s.refreshChat(ctx, gen); err != nil {
			return false, err
		}
		creds, gen = s.credentials()
		if creds.ChatToken == "" {
			return false, nil
		}
	}

	if !creds.ChatValid(s.now()) {
		s.log.Info(ctx, "chat token expired, refreshing", "expired_at", creds.ChatTokenExpires)
		if err := s.refreshChat(ctx, gen); err != nil {
			return false, err
		}
		creds, _ = s.credentials()
	}

	now := s.now()
	return creds.PrimaryValid(now) && creds.ChatValid(now), nil
}
