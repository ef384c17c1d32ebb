package models

import (
	"encoding/json"
	"time"
)

// ContentItem is a rateable part of a subject's profile: a Photo or an
// Answer. Implementations are closed to this package.
type ContentItem interface {
	// OwnerID is the subject the item belongs to. It is a lookup key only.
	OwnerID() string
	rateVariant() (*Photo, *RatePrompt)
}

// Photo is a single photo in a profile.
type Photo struct {
	ContentID      string          `json:"contentId"`
	CDNID          string          `json:"cdnId"`
	URL            string          `json:"url"`
	Caption        string          `json:"caption,omitempty"`
	Location       string          `json:"location,omitempty"`
	PromptID       string          `json:"promptId,omitempty"`
	Source         string          `json:"source,omitempty"`
	SourceID       string          `json:"sourceId,omitempty"`
	VideoURL       string          `json:"videoUrl,omitempty"`
	PHash          string          `json:"pHash,omitempty"`
	Width          int             `json:"width,omitempty"`
	Height         int             `json:"height,omitempty"`
	SelfieVerified *bool           `json:"selfieVerified,omitempty"`
	BoundingBox    json.RawMessage `json:"boundingBox,omitempty"`

	SubjectID string `json:"-"`
}

func (p Photo) OwnerID() string { return p.SubjectID }

func (p Photo) rateVariant() (*Photo, *RatePrompt) {
	return &p, nil
}

// Answer is a prompt answer. Response is empty for voice and video answers.
// Question holds the resolved prompt text when the caller knows it; the
// question id is used in its place otherwise.
type Answer struct {
	ContentID  string `json:"contentId"`
	Position   *int   `json:"position,omitempty"`
	QuestionID string `json:"questionId"`
	Response   string `json:"response,omitempty"`

	Question  string `json:"-"`
	SubjectID string `json:"-"`
}

func (a Answer) OwnerID() string { return a.SubjectID }

func (a Answer) QuestionText() string {
	if a.Question != "" {
		return a.Question
	}
	return a.QuestionID
}

func (a Answer) rateVariant() (*Photo, *RatePrompt) {
	return nil, &RatePrompt{
		Answer:    a.Response,
		ContentID: a.ContentID,
		Question:  a.QuestionText(),
	}
}

// ContentBundle is the photos and answers of one profile.
type ContentBundle struct {
	Photos     []Photo         `json:"photos"`
	Answers    []Answer        `json:"answers"`
	PromptPoll json.RawMessage `json:"promptPoll,omitempty"`
}

// ProfileContent is one element of the public content response.
type ProfileContent struct {
	UserID  string         `json:"userId"`
	Content *ContentBundle `json:"content,omitempty"`
}

// Attach stamps every item with its owning subject id.
func (b *ContentBundle) Attach(subjectID string) {
	for i := range b.Photos {
		b.Photos[i].SubjectID = subjectID
	}
	for i := range b.Answers {
		b.Answers[i].SubjectID = subjectID
	}
}

// UserProfile is one element of the public profile response. The profile
// body is kept opaque.
type UserProfile struct {
	UserID  string          `json:"userId"`
	Profile json.RawMessage `json:"profile"`
}

// Hydrated joins a ledger subject with its fetched profile and content.
// Either part is nil when its fetch failed or returned nothing for the id.
type Hydrated struct {
	Subject Subject
	Profile *UserProfile
	Content *ContentBundle
}

// SelfProfile is the signed-in user's own profile. The profile body is kept
// opaque.
type SelfProfile struct {
	UserID          string          `json:"userId"`
	Created         time.Time       `json:"created"`
	Registered      time.Time       `json:"registered"`
	Modified        time.Time       `json:"modified"`
	LastActiveOptIn bool            `json:"lastActiveOptIn"`
	Paused          bool            `json:"paused"`
	Profile         json.RawMessage `json:"profile"`
}

// SelfContent wraps the signed-in user's own photos and answers.
type SelfContent struct {
	Content ContentBundle `json:"content"`
}
