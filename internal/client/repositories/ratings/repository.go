// Package ratings is the local journal of ratings accepted upstream. Rating
// tokens are single use: a token recorded here is never submitted again.
package ratings

import (
	"context"
	"time"

	"github.com/dmitrijs2005/matchbridge/internal/client/models"
)

type Entry struct {
	RatingID  string
	SessionID string
	SubjectID   string
	RatingToken string
	Kind      models.RatingKind
	CreatedAt time.Time
}

type Repository interface {
	// Has reports whether a rating was already accepted for ratingToken.
	Has(ctx context.Context, ratingToken string) (bool, error)
	// Record fails with common.ErrAlreadyRated when the entry's rating
	// token is already recorded.
	Record(ctx context.Context, e Entry) error
	List(ctx context.Context, sessionID string) ([]Entry, error)
}
