package models

import (
	"strings"
	"time"

	"github.com/dmitrijs2005/matchbridge/internal/common"
)

// RatingKind is the action submitted for a subject.
type RatingKind string

const (
	RatingLike RatingKind = "like"
	RatingNote RatingKind = "note"
	RatingSkip RatingKind = "skip"
)

// DefaultOrigin is sent when a subject carries no origin tag.
const DefaultOrigin = "compatibles"

const (
	InitiatedStandard  = "standard"
	InitiatedSuperlike = "superlike"
)

// RatePrompt references a prompt answer inside a rating.
type RatePrompt struct {
	Answer    string `json:"answer"`
	ContentID string `json:"contentId"`
	Question  string `json:"question"`
}

// RateContent names the item being liked. Exactly one of Photo and Prompt
// must be set.
type RateContent struct {
	Comment string      `json:"comment,omitempty"`
	Photo   *Photo      `json:"photo,omitempty"`
	Prompt  *RatePrompt `json:"prompt,omitempty"`
}

// NewRateContent builds the content block for item. A nil item yields a
// content block that fails Validate.
func NewRateContent(item ContentItem, comment string) RateContent {
	rc := RateContent{Comment: comment}
	if item != nil {
		rc.Photo, rc.Prompt = item.rateVariant()
	}
	return rc
}

func (c RateContent) Validate() error {
	if (c.Photo == nil) == (c.Prompt == nil) {
		return common.ErrInvalidRateContent
	}
	return nil
}

// RatePayload is the body of a rating submission.
type RatePayload struct {
	RatingID      string       `json:"ratingId"`
	HcmRunID      string       `json:"hcmRunId,omitempty"`
	SessionID     string       `json:"sessionId"`
	Content       *RateContent `json:"content,omitempty"`
	Created       string       `json:"created"`
	RatingToken   string       `json:"ratingToken"`
	InitiatedWith string       `json:"initiatedWith,omitempty"`
	Rating        RatingKind   `json:"rating"`
	HasPairing    bool         `json:"hasPairing"`
	Origin        string       `json:"origin,omitempty"`
	SubjectID     string       `json:"subjectId"`
}

// FormatCreated renders t the way the rating endpoint expects it: UTC,
// second precision, "Z" suffix.
func FormatCreated(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// NormalizeID upper-cases generated identifiers to match the upstream format.
func NormalizeID(id string) string {
	return strings.ToUpper(id)
}

// Validate checks the invariants the rating endpoint relies on.
func (p RatePayload) Validate() error {
	switch p.Rating {
	case RatingSkip:
		if p.Content != nil {
			return common.ErrInvalidRateContent
		}
	case RatingLike, RatingNote:
		if p.Content == nil {
			return common.ErrInvalidRateContent
		}
		return p.Content.Validate()
	}
	return nil
}

// LikeLimit is the daily like allowance.
type LikeLimit struct {
	LikesLeft               int        `json:"likesLeft"`
	SuperlikesLeft          int        `json:"superlikesLeft"`
	FreeSuperlikesLeft      *int       `json:"freeSuperLikesLeft,omitempty"`
	FreeSuperlikeExpiration *time.Time `json:"freeSuperLikeExpiration,omitempty"`
}

// LikeResponse is returned by a successful like or note.
type LikeResponse struct {
	Limit LikeLimit `json:"limit"`
}
