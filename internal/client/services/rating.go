package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/matchbridge/internal/client/models"
	"github.com/dmitrijs2005/matchbridge/internal/client/repositories/ratings"
	"github.com/dmitrijs2005/matchbridge/internal/client/transport"
	"github.com/dmitrijs2005/matchbridge/internal/common"
	"github.com/dmitrijs2005/matchbridge/internal/logging"
	"github.com/google/uuid"
)

const (
	pathTextReview = "/fag/textreview"
	pathRate       = "/rate/v2/initiate"
)

// SessionProvider is the part of the credential manager other services
// need: request headers and the current record.
type SessionProvider interface {
	Headers() http.Header
	Snapshot() models.Record
}

// Evictor removes consumed subjects from the recommendation ledger.
type Evictor interface {
	Remove(ctx context.Context, subjectID string) error
}

// LikeOptions tunes a like. A non-empty Comment turns the like into a note
// and triggers a moderation check first.
type LikeOptions struct {
	Comment   string
	Superlike bool
}

// RatingService submits likes, notes and skips. Subjects are passed in
// explicitly; nothing here holds per-subject state.
type RatingService struct {
	api     transport.Requester
	session SessionProvider
	ledger  Evictor
	journal ratings.Repository
	log     logging.Logger
	now     func() time.Time
}

type RatingOption func(*RatingService)

// WithJournal records accepted ratings and refuses to resubmit a rating
// token the journal already holds.
func WithJournal(repo ratings.Repository) RatingOption {
	return func(s *RatingService) { s.journal = repo }
}

func WithRatingClock(now func() time.Time) RatingOption {
	return func(s *RatingService) { s.now = now }
}

func NewRatingService(api transport.Requester, sess SessionProvider, ledger Evictor, log logging.Logger, opts ...RatingOption) *RatingService {
	s := &RatingService{
		api:     api,
		session: sess,
		ledger:  ledger,
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type textReviewRequest struct {
	Text       string `json:"text"`
	ReceiverID string `json:"receiverId"`
}

type textReviewResponse struct {
	HcmRunID  string `json:"hcmRunId"`
	IsHarmful bool   `json:"isHarmful"`
}

// Like likes item on subject's profile, or sends a note when opts carries
// a comment. On success the subject is evicted from the ledger; on any
// error the ledger is left as it was.
func (s *RatingService) Like(ctx context.Context, subject models.Subject, item models.ContentItem, opts LikeOptions) (*models.LikeResponse, error) {
	rec := s.session.Snapshot()
	fail := func(err error) (*models.LikeResponse, error) {
		s.log.Error(ctx, "rating failed", "subject_id", subject.SubjectID, "error", err)
		return nil, &RatingError{SubjectID: subject.SubjectID, Err: err}
	}

	if item != nil && item.OwnerID() != "" && item.OwnerID() != subject.SubjectID {
		return fail(fmt.Errorf("%w: item owned by %s", common.ErrSubjectMismatch, item.OwnerID()))
	}
	if err := s.guard(ctx, subject.RatingToken); err != nil {
		return fail(err)
	}

	kind := models.RatingLike
	if opts.Comment != "" {
		kind = models.RatingNote
	}
	initiated := models.InitiatedStandard
	if opts.Superlike {
		initiated = models.InitiatedSuperlike
	}

	content := models.NewRateContent(item, opts.Comment)
	payload := s.payload(rec, subject, kind)
	payload.Content = &content
	payload.InitiatedWith = initiated
	if err := payload.Validate(); err != nil {
		return fail(err)
	}

	if opts.Comment != "" {
		runID, err := s.moderate(ctx, opts.Comment, subject.SubjectID)
		if err != nil {
			return fail(err)
		}
		payload.HcmRunID = runID
	}

	resp, err := s.submit(ctx, payload)
	if err != nil {
		return fail(err)
	}
	s.consume(ctx, rec.SessionID, payload)

	var out models.LikeResponse
	if err := resp.Decode(&out); err != nil {
		// The rating went through; only the remaining allowance is unknown.
		s.log.Warn(ctx, "could not decode like response", "subject_id", subject.SubjectID, "error", err)
	}
	return &out, nil
}

// Skip passes on subject. Skips carry no content and no comment.
func (s *RatingService) Skip(ctx context.Context, subject models.Subject) error {
	rec := s.session.Snapshot()

	if err := s.guard(ctx, subject.RatingToken); err != nil {
		return &RatingError{SubjectID: subject.SubjectID, Err: err}
	}

	payload := s.payload(rec, subject, models.RatingSkip)
	if err := payload.Validate(); err != nil {
		return &RatingError{SubjectID: subject.SubjectID, Err: err}
	}
	if _, err := s.submit(ctx, payload); err != nil {
		s.log.Error(ctx, "skip failed", "subject_id", subject.SubjectID, "error", err)
		return &RatingError{SubjectID: subject.SubjectID, Err: err}
	}
	s.consume(ctx, rec.SessionID, payload)
	return nil
}

func (s *RatingService) payload(rec models.Record, subject models.Subject, kind models.RatingKind) models.RatePayload {
	origin := subject.Origin.Raw()
	if subject.Origin.IsZero() {
		origin = models.DefaultOrigin
	}
	return models.RatePayload{
		RatingID:    models.NormalizeID(uuid.NewString()),
		SessionID:   rec.SessionID,
		Created:     models.FormatCreated(s.now()),
		RatingToken: subject.RatingToken,
		Rating:      kind,
		HasPairing:  false,
		Origin:      origin,
		SubjectID:   subject.SubjectID,
	}
}

// guard refuses a rating token the journal already holds. Tokens are
// single use upstream, so resubmitting one can only fail.
func (s *RatingService) guard(ctx context.Context, ratingToken string) error {
	if s.journal == nil {
		return nil
	}
	seen, err := s.journal.Has(ctx, ratingToken)
	if err != nil {
		return err
	}
	if seen {
		return common.ErrAlreadyRated
	}
	return nil
}

func (s *RatingService) moderate(ctx context.Context, text, receiverID string) (string, error) {
	resp, err := s.api.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		Path:   pathTextReview,
		Header: s.session.Headers(),
		Body:   textReviewRequest{Text: text, ReceiverID: receiverID},
	})
	if err != nil {
		me := &ModerationError{Err: err}
		var se *transport.StatusError
		if errors.As(err, &se) {
			me.Status, me.Detail = se.Status, se.Body
		}
		return "", me
	}

	var out textReviewResponse
	if err := resp.Decode(&out); err != nil {
		return "", &ModerationError{Err: err}
	}
	if out.IsHarmful {
		return "", &ModerationError{Harmful: true}
	}
	if out.HcmRunID == "" {
		return "", &ModerationError{Detail: "response carries no run id"}
	}
	return out.HcmRunID, nil
}

func (s *RatingService) submit(ctx context.Context, payload models.RatePayload) (*transport.Response, error) {
	s.log.Info(ctx, "submitting rating",
		"subject_id", payload.SubjectID,
		"rating", payload.Rating,
		"rating_id", payload.RatingID,
		"origin", payload.Origin)

	return s.api.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		Path:   pathRate,
		Header: s.session.Headers(),
		Body:   payload,
	})
}

// consume runs after the upstream accepted a rating. Nothing here can undo
// that, so local bookkeeping failures are logged rather than returned.
func (s *RatingService) consume(ctx context.Context, sessionID string, p models.RatePayload) {
	if err := s.ledger.Remove(ctx, p.SubjectID); err != nil {
		s.log.Error(ctx, "could not evict rated subject", "subject_id", p.SubjectID, "error", err)
	}
	if s.journal == nil {
		return
	}
	created, err := time.Parse(time.RFC3339, p.Created)
	if err != nil {
		created = s.now().UTC()
	}
	err = s.journal.Record(ctx, ratings.Entry{
		RatingID:    p.RatingID,
		SessionID:   sessionID,
		SubjectID:   p.SubjectID,
		RatingToken: p.RatingToken,
		Kind:        p.Rating,
		CreatedAt:   created,
	})
	if err != nil {
		s.log.Error(ctx, "could not journal rating", "subject_id", p.SubjectID, "error", err)
	}
}
