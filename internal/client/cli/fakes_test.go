package cli

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/matchbridge/internal/client/config"
	"github.com/dmitrijs2005/matchbridge/internal/client/models"
	"github.com/dmitrijs2005/matchbridge/internal/client/repositories/ratings"
	"github.com/dmitrijs2005/matchbridge/internal/client/services"
	"github.com/dmitrijs2005/matchbridge/internal/logging"
)

type fakeAuth struct {
	mu sync.Mutex

	state     services.State
	rec       models.Record
	loginErr  error
	submitErr error
	valid     bool
	validErr  error
	// repairs makes IsValid federate successfully, like a restored session
	// whose chat token had lapsed.
	repairs bool

	initiated int
	codes     []string
	checks    int
}

func (f *fakeAuth) InitiateLogin(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initiated++
	if f.loginErr == nil {
		f.state = services.StateOTPRequested
	}
	return f.loginErr
}

func (f *fakeAuth) SubmitOTP(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, code)
	if f.submitErr == nil {
		f.state = services.StateStreamKeyed
	}
	return f.submitErr
}

func (f *fakeAuth) IsValid(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	if f.repairs && f.state >= services.StateAuthenticated {
		f.state = services.StateStreamKeyed
		return true, nil
	}
	return f.valid, f.validErr
}

func (f *fakeAuth) setValid(ok bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.valid, f.validErr = ok, err
}

func (f *fakeAuth) checkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks
}

func (f *fakeAuth) State() services.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeAuth) Snapshot() models.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rec
}

type fakeFeed struct {
	fetch      *services.FeedResult
	fetchErr   error
	fetches    int
	hydration  map[string]models.Hydrated
	hydrateErr error
	hydrations int
	limit      *models.LikeLimit
	self       *models.SelfProfile
	selfBundle *models.ContentBundle
}

func (f *fakeFeed) FetchFeed(ctx context.Context) (*services.FeedResult, error) {
	f.fetches++
	return f.fetch, f.fetchErr
}

func (f *fakeFeed) Hydrate(ctx context.Context, subjects []models.Subject) *services.Hydration {
	f.hydrations++
	h := &services.Hydration{Items: make([]models.Hydrated, len(subjects))}
	if f.hydrateErr != nil {
		h.ProfilesErr, h.ContentErr = f.hydrateErr, f.hydrateErr
	}
	for i, s := range subjects {
		h.Items[i] = models.Hydrated{Subject: s}
		if f.hydrateErr == nil {
			if got, ok := f.hydration[s.SubjectID]; ok {
				got.Subject = s
				h.Items[i] = got
			}
		}
	}
	return h
}

func (f *fakeFeed) LikeLimit(ctx context.Context) (*models.LikeLimit, error) {
	return f.limit, nil
}

func (f *fakeFeed) SelfProfile(ctx context.Context) (*models.SelfProfile, error) {
	return f.self, nil
}

func (f *fakeFeed) SelfContent(ctx context.Context) (*models.ContentBundle, error) {
	return f.selfBundle, nil
}

type likeCall struct {
	subject models.Subject
	item    models.ContentItem
	opts    services.LikeOptions
}

type fakeRater struct {
	likes   []likeCall
	skips   []models.Subject
	likeErr error
	skipErr error
}

func (f *fakeRater) Like(ctx context.Context, subject models.Subject, item models.ContentItem, opts services.LikeOptions) (*models.LikeResponse, error) {
	f.likes = append(f.likes, likeCall{subject: subject, item: item, opts: opts})
	if f.likeErr != nil {
		return nil, f.likeErr
	}
	return &models.LikeResponse{Limit: models.LikeLimit{LikesLeft: 7, SuperlikesLeft: 1}}, nil
}

func (f *fakeRater) Skip(ctx context.Context, subject models.Subject) error {
	f.skips = append(f.skips, subject)
	return f.skipErr
}

type fakeLedger struct {
	subjects []models.Subject
}

func (f *fakeLedger) Snapshot() []models.Subject { return f.subjects }

func (f *fakeLedger) Get(id string) (models.Subject, bool) {
	for _, s := range f.subjects {
		if s.SubjectID == id {
			return s, true
		}
	}
	return models.Subject{}, false
}

func (f *fakeLedger) Len() int { return len(f.subjects) }

type fakeJournal struct {
	entries []ratings.Entry
}

func (f *fakeJournal) Has(ctx context.Context, ratingToken string) (bool, error) {
	for _, e := range f.entries {
		if e.RatingToken == ratingToken {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeJournal) Record(ctx context.Context, e ratings.Entry) error {
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeJournal) List(ctx context.Context, sessionID string) ([]ratings.Entry, error) {
	var out []ratings.Entry
	for _, e := range f.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

type appFixture struct {
	app     *App
	auth    *fakeAuth
	feed    *fakeFeed
	rater   *fakeRater
	ledger  *fakeLedger
	journal *fakeJournal
	out     *bytes.Buffer
	logs    *bytes.Buffer
}

// newAppFixture builds an App over fakes. input feeds the interactive prompts.
func newAppFixture(t *testing.T, input string) *appFixture {
	t.Helper()
	f := &appFixture{
		auth:  &fakeAuth{rec: models.Record{AccountID: "+15550001", SessionID: "SESSION-1"}},
		feed:  &fakeFeed{hydration: map[string]models.Hydrated{}},
		rater: &fakeRater{},
		ledger: &fakeLedger{subjects: []models.Subject{
			{SubjectID: "S1", RatingToken: "rt-1", Origin: models.ParseOrigin("compatibles")},
			{SubjectID: "S2", RatingToken: "rt-2"},
		}},
		journal: &fakeJournal{},
		out:     &bytes.Buffer{},
		logs:    &bytes.Buffer{},
	}
	f.app = &App{
		config:   &config.Config{RequestTimeout: time.Second},
		auth:     f.auth,
		feed:     f.feed,
		rating:   f.rater,
		ledger:   f.ledger,
		journal:  f.journal,
		log:      logging.NewTextLogger(f.logs, slog.LevelInfo),
		reader:   bufio.NewReader(strings.NewReader(input)),
		out:      f.out,
		hydrated: map[string]models.Hydrated{},
		mode:     ModeNeedsLogin,
	}
	return f
}
