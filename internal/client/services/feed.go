package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/matchbridge/internal/client/models"
	"github.com/dmitrijs2005/matchbridge/internal/client/transport"
	"github.com/dmitrijs2005/matchbridge/internal/logging"
	"golang.org/x/sync/errgroup"
)

const (
	pathFeed          = "/rec/v2"
	pathPublicProfile = "/user/v3/public"
	pathPublicContent = "/content/v2/public"
	pathLikeLimit     = "/likelimit"
	pathSelfProfile   = "/user/v3"
	pathSelfContent   = "/content/v2"
)

// CacheablePaths are the feed endpoints whose responses are the same for
// every caller and may be served from a shared response cache.
var CacheablePaths = []string{pathPublicProfile, pathPublicContent}

// Merger stores freshly fetched subjects.
type Merger interface {
	Merge(ctx context.Context, subjects []models.Subject) (int, error)
}

type FeedService struct {
	api     transport.Requester
	session SessionProvider
	ledger  Merger
	log     logging.Logger
}

func NewFeedService(api transport.Requester, sess SessionProvider, ledger Merger, log logging.Logger) *FeedService {
	return &FeedService{api: api, session: sess, ledger: ledger, log: log}
}

type feedRequest struct {
	PlayerID    string `json:"playerId"`
	NewHere     bool   `json:"newHere"`
	ActiveToday bool   `json:"activeToday"`
}

type feedSubject struct {
	SubjectID   string `json:"subjectId"`
	LegacyID    string `json:"subject_id"`
	RatingToken string `json:"ratingToken"`
}

type feedResponse struct {
	Feeds []struct {
		Origin   string        `json:"origin"`
		Subjects []feedSubject `json:"subjects"`
	} `json:"feeds"`
}

// FeedResult is one fetch: every subject the feed returned, in feed order,
// and how many of them were new to the ledger.
type FeedResult struct {
	Subjects []models.Subject
	Added    int
}

// FetchFeed pulls the recommendation feed and merges it into the ledger.
// Subjects already in the ledger keep their original rating token.
func (f *FeedService) FetchFeed(ctx context.Context) (*FeedResult, error) {
	rec := f.session.Snapshot()

	resp, err := f.api.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		Path:   pathFeed,
		Header: f.session.Headers(),
		Body:   feedRequest{PlayerID: rec.IdentityID},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	var body feedResponse
	if err := resp.Decode(&body); err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	var subjects []models.Subject
	for _, feed := range body.Feeds {
		origin := models.ParseOrigin(feed.Origin)
		if origin.IsUnrecognized() {
			f.log.Warn(ctx, "unrecognized feed origin", "origin", feed.Origin)
		}
		for _, fs := range feed.Subjects {
			id := fs.SubjectID
			if id == "" {
				id = fs.LegacyID
			}
			if id == "" {
				continue
			}
			subjects = append(subjects, models.Subject{
				SubjectID:   id,
				RatingToken: fs.RatingToken,
				Origin:      origin,
			})
		}
	}

	added, err := f.ledger.Merge(ctx, subjects)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	f.log.Info(ctx, "feed fetched", "subjects", len(subjects), "added", added)
	return &FeedResult{Subjects: subjects, Added: added}, nil
}

// Hydration is the joined result of a profile and content fetch. A failed
// fetch leaves its half of every item nil and its error set.
type Hydration struct {
	Items       []models.Hydrated
	ProfilesErr error
	ContentErr  error
}

// Hydrate fetches public profiles and content for subjects concurrently.
// The two fetches do not share cancellation: one failing leaves the other
// running to completion.
func (f *FeedService) Hydrate(ctx context.Context, subjects []models.Subject) *Hydration {
	h := &Hydration{Items: make([]models.Hydrated, len(subjects))}
	for i, s := range subjects {
		h.Items[i].Subject = s
	}
	if len(subjects) == 0 {
		return h
	}

	ids := make([]string, len(subjects))
	for i, s := range subjects {
		ids[i] = s.SubjectID
	}

	var (
		g        errgroup.Group
		profiles []models.UserProfile
		contents []models.ProfileContent
	)
	g.Go(func() error {
		profiles, h.ProfilesErr = f.publicProfiles(ctx, ids)
		if h.ProfilesErr != nil {
			f.log.Warn(ctx, "profile fetch failed", "error", h.ProfilesErr)
		}
		return nil
	})
	g.Go(func() error {
		contents, h.ContentErr = f.publicContent(ctx, ids)
		if h.ContentErr != nil {
			f.log.Warn(ctx, "content fetch failed", "error", h.ContentErr)
		}
		return nil
	})
	_ = g.Wait()

	byProfile := make(map[string]*models.UserProfile, len(profiles))
	for i := range profiles {
		byProfile[profiles[i].UserID] = &profiles[i]
	}
	byContent := make(map[string]*models.ContentBundle, len(contents))
	for i := range contents {
		if contents[i].Content == nil {
			f.log.Debug(ctx, "profile has no content", "user_id", contents[i].UserID)
			continue
		}
		contents[i].Content.Attach(contents[i].UserID)
		byContent[contents[i].UserID] = contents[i].Content
	}

	for i := range h.Items {
		id := h.Items[i].Subject.SubjectID
		h.Items[i].Profile = byProfile[id]
		h.Items[i].Content = byContent[id]
	}
	return h
}

func (f *FeedService) get(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := f.api.Do(ctx, &transport.Request{
		Method: http.MethodGet,
		Path:   path,
		Query:  query,
		Header: f.session.Headers(),
	})
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

func idsQuery(ids []string) url.Values {
	return url.Values{"ids": {strings.Join(ids, ",")}}
}

func (f *FeedService) publicProfiles(ctx context.Context, ids []string) ([]models.UserProfile, error) {
	var out []models.UserProfile
	if err := f.get(ctx, pathPublicProfile, idsQuery(ids), &out); err != nil {
		return nil, fmt.Errorf("fetch profiles: %w", err)
	}
	return out, nil
}

func (f *FeedService) publicContent(ctx context.Context, ids []string) ([]models.ProfileContent, error) {
	var out []models.ProfileContent
	if err := f.get(ctx, pathPublicContent, idsQuery(ids), &out); err != nil {
		return nil, fmt.Errorf("fetch content: %w", err)
	}
	return out, nil
}

// LikeLimit returns the remaining daily allowance.
func (f *FeedService) LikeLimit(ctx context.Context) (*models.LikeLimit, error) {
	var out models.LikeLimit
	if err := f.get(ctx, pathLikeLimit, nil, &out); err != nil {
		return nil, fmt.Errorf("fetch like limit: %w", err)
	}
	return &out, nil
}

func (f *FeedService) SelfProfile(ctx context.Context) (*models.SelfProfile, error) {
	var out models.SelfProfile
	if err := f.get(ctx, pathSelfProfile, nil, &out); err != nil {
		return nil, fmt.Errorf("fetch own profile: %w", err)
	}
	return &out, nil
}

// SelfContent returns the signed-in user's photos and answers, owned by
// their identity id.
func (f *FeedService) SelfContent(ctx context.Context) (*models.ContentBundle, error) {
	var out models.SelfContent
	if err := f.get(ctx, pathSelfContent, nil, &out); err != nil {
		return nil, fmt.Errorf("fetch own content: %w", err)
	}
	out.Content.Attach(f.session.Snapshot().IdentityID)
	return &out.Content, nil
}
