package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/matchbridge/internal/client/config"
	"github.com/dmitrijs2005/matchbridge/internal/client/ledger"
	"github.com/dmitrijs2005/matchbridge/internal/client/models"
	"github.com/dmitrijs2005/matchbridge/internal/client/repositories"
	"github.com/dmitrijs2005/matchbridge/internal/client/repositories/ratings"
	"github.com/dmitrijs2005/matchbridge/internal/client/services"
	"github.com/dmitrijs2005/matchbridge/internal/client/session"
	"github.com/dmitrijs2005/matchbridge/internal/client/transport"
	"github.com/dmitrijs2005/matchbridge/internal/common"
	"github.com/dmitrijs2005/matchbridge/internal/filex"
	"github.com/dmitrijs2005/matchbridge/internal/logging"
)

type Mode string

const (
	ModeReady      Mode = "ready"
	ModeNeedsLogin Mode = "needs-login"
)

type authenticator interface {
	InitiateLogin(ctx context.Context) error
	SubmitOTP(ctx context.Context, code string) error
	IsValid(ctx context.Context) (bool, error)
	State() services.State
	Snapshot() models.Record
}

type feeder interface {
	FetchFeed(ctx context.Context) (*services.FeedResult, error)
	Hydrate(ctx context.Context, subjects []models.Subject) *services.Hydration
	LikeLimit(ctx context.Context) (*models.LikeLimit, error)
	SelfProfile(ctx context.Context) (*models.SelfProfile, error)
	SelfContent(ctx context.Context) (*models.ContentBundle, error)
}

type rater interface {
	Like(ctx context.Context, subject models.Subject, item models.ContentItem, opts services.LikeOptions) (*models.LikeResponse, error)
	Skip(ctx context.Context, subject models.Subject) error
}

type subjectLedger interface {
	Snapshot() []models.Subject
	Get(id string) (models.Subject, bool)
	Len() int
}

type App struct {
	config  *config.Config
	auth    authenticator
	feed    feeder
	rating  rater
	ledger  subjectLedger
	journal ratings.Repository
	log     logging.Logger

	reader *bufio.Reader
	out    io.Writer

	// hydrated caches fetched content so like commands can address items
	// by index without refetching.
	hydrated map[string]models.Hydrated

	modeMu sync.Mutex
	mode   Mode

	closers []io.Closer
}

// NewApp wires the session store, transport, services and local storage
// described by c. It prompts on stdin for anything c leaves open.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	a := &App{
		config:   c,
		log:      log,
		reader:   bufio.NewReader(os.Stdin),
		out:      os.Stdout,
		hydrated: make(map[string]models.Hydrated),
		mode:     ModeNeedsLogin,
	}

	dir, err := filex.EnsureDir(c.DataDir)
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	if c.PhoneNumber == "" {
		c.PhoneNumber, err = GetSimpleText(a.reader, "Phone number (international format)", a.out)
		if err != nil {
			return nil, err
		}
		if c.PhoneNumber == "" {
			return nil, errors.New("phone number is required")
		}
	}

	var storeOpts []session.Option
	if c.SealSession {
		pw, err := GetPassphrase(a.out)
		if err != nil {
			return nil, err
		}
		storeOpts = append(storeOpts, session.WithPassphrase(pw))
		common.WipeByteArray(pw)
	}
	store := session.NewFileStore(filex.Join(dir, c.SessionFile), storeOpts...)

	httpOpts := []transport.Option{
		transport.WithTimeout(c.RequestTimeout),
		transport.WithRateLimit(c.RequestsPerSecond, 1),
	}
	if c.CacheGETs {
		httpOpts = append(httpOpts, transport.WithResponseCache(services.CacheablePaths...))
	}
	api, err := transport.NewHTTPClient(c.BaseURL, httpOpts...)
	if err != nil {
		return nil, err
	}

	auth, err := services.NewAuthService(ctx, store, c.PhoneNumber, api,
		transport.WSDialer{HandshakeTimeout: c.RequestTimeout},
		services.Fingerprint{
			AppVersion:   c.AppVersion,
			BuildNumber:  c.BuildNumber,
			OSVersion:    c.OSVersion,
			DeviceRegion: c.DeviceRegion,
		},
		services.ChatEndpoint{URL: c.ChatWSURL, AppID: c.ChatAppID},
		log.With("component", "auth"))
	if err != nil {
		return nil, err
	}

	l, err := ledger.Open(ctx, dir, auth.Snapshot().SessionID, log)
	if err != nil {
		return nil, err
	}

	db, err := repositories.InitDatabase(ctx, filex.Join(dir, c.JournalFile))
	if err != nil {
		log.Error(ctx, "error initializing journal database", "error", err)
		return nil, err
	}
	a.closers = append(a.closers, db)
	journal := ratings.NewSQLiteRepository(db)

	a.auth = auth
	a.ledger = l
	a.journal = journal
	a.feed = services.NewFeedService(api, auth, l, log.With("component", "feed"))
	a.rating = services.NewRatingService(api, auth, l, log.With("component", "rating"), services.WithJournal(journal))
	return a, nil
}

// Run blocks in the REPL until the user exits or stdin closes.
func (a *App) Run(ctx context.Context) {
	defer a.Close()

	// A restored session usually has a lapsed chat token; repair it before
	// the first prompt.
	checkCtx, cancel := context.WithTimeout(ctx, a.checkTimeout())
	a.checkValidity(checkCtx)
	cancel()

	if a.config.CheckInterval > 0 {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go a.StartValidityWatcher(watchCtx, a.config.CheckInterval)
	}

	runREPL(ctx, a, a.status, a.reader)
}

func (a *App) Close() {
	for _, c := range a.closers {
		_ = c.Close()
	}
	a.closers = nil
}

func (a *App) Mode() Mode {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	return a.mode
}

func (a *App) setMode(ctx context.Context, mode Mode) {
	a.modeMu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.modeMu.Unlock()

	if changed {
		a.log.Info(ctx, "session mode changed", "mode", mode)
	}
}

func (a *App) isReady() bool {
	return a.auth.State() == services.StateStreamKeyed
}

// ensureReady reports whether network commands may run. A session holding a
// valid primary token is repaired first, federating again when the chat
// credentials have lapsed.
func (a *App) ensureReady(ctx context.Context) bool {
	switch a.auth.State() {
	case services.StateStreamKeyed:
		return true
	case services.StateAuthenticated, services.StateChatFederated:
		checkCtx, cancel := context.WithTimeout(ctx, a.checkTimeout())
		defer cancel()
		a.checkValidity(checkCtx)
		return a.isReady()
	default:
		return false
	}
}

func (a *App) status() string {
	return fmt.Sprintf("%s | %s", a.Mode(), a.auth.State())
}

// checkValidity runs one validity check and records the resulting mode.
func (a *App) checkValidity(ctx context.Context) {
	ok, err := a.auth.IsValid(ctx)
	if err != nil {
		a.log.Warn(ctx, "session check failed", "error", err)
	}
	if ok {
		a.setMode(ctx, ModeReady)
	} else {
		a.setMode(ctx, ModeNeedsLogin)
	}
}

// StartValidityWatcher checks the session every interval, federating again
// when the chat token has lapsed. It returns when ctx is done.
func (a *App) StartValidityWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, a.checkTimeout())
			a.checkValidity(checkCtx)
			cancel()

		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkTimeout() time.Duration {
	if a.config != nil && a.config.RequestTimeout > 0 {
		return 2 * a.config.RequestTimeout
	}
	return 30 * time.Second
}
