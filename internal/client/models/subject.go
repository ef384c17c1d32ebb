package models

import (
	"encoding/json"
)

// Subject is one candidate profile surfaced by the feed. RatingToken is a
// one-time token required to submit any rating for SubjectID.
type Subject struct {
	SubjectID   string `json:"subjectId"`
	RatingToken string `json:"ratingToken"`
	Origin      Origin `json:"origin"`
}

// OriginKind enumerates the feed buckets the client knows about.
type OriginKind int

const (
	OriginNone OriginKind = iota
	OriginCompatibles
	OriginStandouts
	OriginDiscover
	OriginUnrecognized
)

var knownOrigins = map[string]OriginKind{
	"compatibles": OriginCompatibles,
	"standouts":   OriginStandouts,
	"discover":    OriginDiscover,
}

// Origin tags the feed bucket that produced a subject. Values the client
// does not know are kept verbatim as OriginUnrecognized so they survive a
// round trip to disk and back to the server.
type Origin struct {
	kind OriginKind
	raw  string
}

// ParseOrigin never fails: unknown input becomes an unrecognized origin.
// Logging unknown values is up to the caller.
func ParseOrigin(raw string) Origin {
	if raw == "" {
		return Origin{}
	}
	if kind, ok := knownOrigins[raw]; ok {
		return Origin{kind: kind, raw: raw}
	}
	return Origin{kind: OriginUnrecognized, raw: raw}
}

func (o Origin) Kind() OriginKind { return o.kind }

// Raw is the exact value received from upstream.
func (o Origin) Raw() string { return o.raw }

func (o Origin) String() string { return o.raw }

func (o Origin) IsZero() bool { return o.kind == OriginNone }

func (o Origin) IsUnrecognized() bool { return o.kind == OriginUnrecognized }

func (o Origin) MarshalJSON() ([]byte, error) {
	if o.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(o.raw)
}

func (o *Origin) UnmarshalJSON(b []byte) error {
	var raw *string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		*o = Origin{}
		return nil
	}
	*o = ParseOrigin(*raw)
	return nil
}
