// Package ledger keeps the recommendation ledger: the subjects fetched from
// the feed that have not been rated yet.
//
// Subject ids are unique and the first rating token seen for an id wins.
// Every mutation rewrites the whole backing file; the in-memory state only
// changes once the file has been replaced.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dmitrijs2005/matchbridge/internal/client/models"
	"github.com/dmitrijs2005/matchbridge/internal/logging"
	"github.com/natefinch/atomic"
)

// FileName is the ledger file for a session. Keying by session keeps
// ledgers of different accounts on one device apart.
func FileName(sessionID string) string {
	return "recommendations_" + sessionID + ".json"
}

// entry is the persisted value for one subject id.
type entry struct {
	RatingToken string        `json:"rating_token"`
	Origin      models.Origin `json:"origin"`
}

type Ledger struct {
	mu    sync.Mutex
	path  string
	log   logging.Logger
	order []string
	items map[string]models.Subject
}

// Open loads the ledger for sessionID from dir. A missing file yields an
// empty ledger; an unreadable one is logged and replaced by an empty ledger.
func Open(ctx context.Context, dir, sessionID string, log logging.Logger) (*Ledger, error) {
	l := &Ledger{
		path:  filepath.Join(dir, FileName(sessionID)),
		log:   log.With("component", "ledger", "session", sessionID),
		items: make(map[string]models.Subject),
	}

	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		l.log.Info(ctx, "no recommendations file, starting empty")
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", l.path, err)
	}

	order, items, err := decode(data)
	if err != nil {
		l.log.Error(ctx, "failed to load recommendations, starting empty", "error", err)
		return l, nil
	}
	l.order, l.items = order, items
	l.log.Info(ctx, "loaded recommendations", "count", len(order))
	return l, nil
}

func (l *Ledger) Path() string { return l.path }

// Merge inserts subjects whose ids are not present yet and returns how many
// were inserted. Existing entries are never overwritten. Subjects without
// an id are skipped.
func (l *Ledger) Merge(ctx context.Context, subjects []models.Subject) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	order := append([]string(nil), l.order...)
	items := make(map[string]models.Subject, len(l.items)+len(subjects))
	for k, v := range l.items {
		items[k] = v
	}

	added := 0
	for _, s := range subjects {
		if s.SubjectID == "" {
			continue
		}
		if _, ok := items[s.SubjectID]; ok {
			continue
		}
		items[s.SubjectID] = s
		order = append(order, s.SubjectID)
		added++
	}

	if err := l.persist(order, items); err != nil {
		return 0, err
	}
	l.order, l.items = order, items

	l.log.Info(ctx, "merged recommendations", "added", added, "total", len(order))
	return added, nil
}

// Remove deletes id. Removing an absent id is logged and is not an error.
func (l *Ledger) Remove(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.items[id]; !ok {
		l.log.Warn(ctx, "subject not in ledger", "subject_id", id)
		return nil
	}

	order := make([]string, 0, len(l.order)-1)
	for _, k := range l.order {
		if k != id {
			order = append(order, k)
		}
	}
	items := make(map[string]models.Subject, len(l.items)-1)
	for k, v := range l.items {
		if k != id {
			items[k] = v
		}
	}

	if err := l.persist(order, items); err != nil {
		return err
	}
	l.order, l.items = order, items

	l.log.Info(ctx, "removed recommendation", "subject_id", id)
	return nil
}

// Reset drops every subject.
func (l *Ledger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.persist(nil, map[string]models.Subject{}); err != nil {
		return err
	}
	l.order, l.items = nil, make(map[string]models.Subject)
	l.log.Info(ctx, "ledger reset")
	return nil
}

// Snapshot returns the subjects in insertion order.
func (l *Ledger) Snapshot() []models.Subject {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.Subject, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.items[id])
	}
	return out
}

func (l *Ledger) Get(id string) (models.Subject, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.items[id]
	return s, ok
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

func (l *Ledger) persist(order []string, items map[string]models.Subject) error {
	data, err := encode(order, items)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(l.path), err)
	}
	if err := atomic.WriteFile(l.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write ledger %s: %w", l.path, err)
	}
	return nil
}

// encode writes a JSON object keyed by subject id, keys in insertion order.
func encode(order []string, items map[string]models.Subject) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, id := range order {
		if i > 0 {
			buf.WriteString(",")
		}
		k, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		s := items[id]
		v, err := json.Marshal(entry{RatingToken: s.RatingToken, Origin: s.Origin})
		if err != nil {
			return nil, err
		}
		buf.WriteString("\n  ")
		buf.Write(k)
		buf.WriteString(": ")
		buf.Write(v)
	}
	if len(order) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// decode reads the object written by encode, keeping key order.
func decode(data []byte) ([]string, map[string]models.Subject, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("ledger: expected object, got %v", tok)
	}

	var order []string
	items := make(map[string]models.Subject)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		id, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("ledger: expected key, got %v", tok)
		}
		var e entry
		if err := dec.Decode(&e); err != nil {
			return nil, nil, fmt.Errorf("ledger: subject %s: %w", id, err)
		}
		if _, dup := items[id]; dup {
			continue
		}
		items[id] = models.Subject{SubjectID: id, RatingToken: e.RatingToken, Origin: e.Origin}
		order = append(order, id)
	}

	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, nil, errors.New("ledger: trailing data")
	}
	return order, items, nil
}
