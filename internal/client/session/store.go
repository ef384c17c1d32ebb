// Package session persists the per-account session record: device identity,
// install state and credentials. One JSON file holds one record.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dmitrijs2005/matchbridge/internal/client/models"
	"github.com/dmitrijs2005/matchbridge/internal/common"
	"github.com/dmitrijs2005/matchbridge/internal/cryptox"
	"github.com/google/uuid"
	"github.com/natefinch/atomic"
)

// Store loads and saves the session record.
//
// Load returns common.ErrNotFound when nothing is stored or when the stored
// record belongs to another account. Save replaces the stored record
// atomically: readers see either the old or the new record, never a mix.
type Store interface {
	Load(ctx context.Context, accountID string) (*models.Record, error)
	Save(ctx context.Context, rec *models.Record) error
	CreateFresh(ctx context.Context, accountID string) (*models.Record, error)
}

// FileStore keeps the record in a single JSON file, optionally sealed under
// a passphrase.
type FileStore struct {
	mu         sync.Mutex
	path       string
	passphrase []byte
}

type Option func(*FileStore)

// WithPassphrase seals the file at rest. The store keeps its own copy of
// the passphrase.
func WithPassphrase(passphrase []byte) Option {
	return func(s *FileStore) {
		if len(passphrase) > 0 {
			s.passphrase = append([]byte(nil), passphrase...)
		}
	}
}

func NewFileStore(path string, opts ...Option) *FileStore {
	s := &FileStore{path: path}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FileStore) Path() string { return s.path }

// NewRecord returns an unregistered record with freshly generated
// device, install and session identifiers.
func NewRecord(accountID string) *models.Record {
	return &models.Record{
		AccountID: accountID,
		DeviceID:  newID(),
		InstallID: newID(),
		SessionID: newID(),
	}
}

func newID() string {
	return strings.ToUpper(uuid.NewString())
}

func (s *FileStore) Load(ctx context.Context, accountID string) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("read session %s: %w", s.path, err)
	}

	if cryptox.IsSealed(data) {
		if s.passphrase == nil {
			return nil, common.ErrSealedRecord
		}
		data, err = cryptox.Open(data, s.passphrase)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrSealedRecord, err)
		}
	}

	var rec models.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", s.path, err)
	}

	if rec.AccountID != accountID {
		return nil, common.ErrNotFound
	}
	return &rec, nil
}

func (s *FileStore) Save(ctx context.Context, rec *models.Record) error {
	if rec == nil {
		return errors.New("save session: nil record")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if s.passphrase != nil {
		data, err = cryptox.Seal(data, s.passphrase)
		if err != nil {
			return fmt.Errorf("seal session: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write session %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) CreateFresh(ctx context.Context, accountID string) (*models.Record, error) {
	rec := NewRecord(accountID)
	if err := s.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// LoadOrCreate returns the stored record for accountID, or a freshly created
// and persisted one when none matches.
func LoadOrCreate(ctx context.Context, store Store, accountID string) (rec *models.Record, created bool, err error) {
	rec, err = store.Load(ctx, accountID)
	if err == nil {
		return rec, false, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, false, err
	}
	rec, err = store.CreateFresh(ctx, accountID)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}
