package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrEthical07/tenantauth/scope"
)

// ErrNotFound is returned by a Store when no row matches.
var ErrNotFound = errors.New("refresh: token not found")

// Record is one persisted refresh token.
type Record struct {
	ID         string
	UserID     string
	Tenant     scope.Scope
	FamilyID   string
	Hash       Hash
	ReplacedBy string
	RevokedAt  time.Time
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// Spent reports whether the token was already rotated.
func (r *Record) Spent() bool { return r.ReplacedBy != "" }

// Usable reports whether the token can be rotated at now.
func (r *Record) Usable(now time.Time) bool {
	return !r.Spent() && r.RevokedAt.IsZero() && now.Before(r.ExpiresAt)
}

// Store persists refresh tokens. Implementations are bound to the caller's
// transaction and tenant.
type Store interface {
	Insert(ctx context.Context, rec Record) error
	FindByHash(ctx context.Context, hash Hash) (*Record, error)
	// MarkReplaced sets replaced_by and revoked_at on id only when the row
	// is still live. It reports whether a row was updated.
	MarkReplaced(ctx context.Context, id, successorID string, at time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
	// RevokeFamily revokes every live token of the family and returns the
	// number of rows changed. Calling it twice is harmless.
	RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error)
}

// MemoryStore is an in-process Store for tests and tooling.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[string]*Record
	byHash map[Hash]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Record),
		byHash: make(map[Hash]string),
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Insert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[rec.ID]; ok {
		return errors.New("refresh: duplicate id")
	}
	if _, ok := m.byHash[rec.Hash]; ok {
		return errors.New("refresh: duplicate hash")
	}
	cp := rec
	m.byID[rec.ID] = &cp
	m.byHash[rec.Hash] = rec.ID
	return nil
}

func (m *MemoryStore) FindByHash(_ context.Context, hash Hash) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *MemoryStore) MarkReplaced(_ context.Context, id, successorID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok || !rec.RevokedAt.IsZero() || rec.ReplacedBy != "" {
		return false, nil
	}
	rec.ReplacedBy = successorID
	rec.RevokedAt = at
	return true, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.byID[id]; ok {
		delete(m.byHash, rec.Hash)
		delete(m.byID, id)
	}
	return nil
}

func (m *MemoryStore) RevokeFamily(_ context.Context, familyID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, rec := range m.byID {
		if rec.FamilyID == familyID && rec.RevokedAt.IsZero() {
			rec.RevokedAt = at
			n++
		}
	}
	return n, nil
}

// Family returns copies of every record in a family, for inspection.
func (m *MemoryStore) Family(familyID string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, rec := range m.byID {
		if rec.FamilyID == familyID {
			out = append(out, *rec)
		}
	}
	return out
}
