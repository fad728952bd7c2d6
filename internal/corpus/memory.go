package corpus

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonathan/news-ingest/internal/types"
)

// MemoryStore is a Backend held in process memory. It is used by tests and by
// dry runs that have no database configured.
type MemoryStore struct {
	mu       sync.RWMutex
	articles map[types.ArticleKey]types.ArticleRecord
	runs     map[string]types.IngestionRun
	owners   map[string]OwnerAccount

	// FailUpserts, when set, makes every Upsert fail. Used to simulate an unreachable store.
	FailUpserts error
	now         func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		articles: make(map[types.ArticleKey]types.ArticleRecord),
		runs:     make(map[string]types.IngestionRun),
		owners:   make(map[string]OwnerAccount),
		now:      time.Now,
	}
}

// Upsert implements Store.
func (m *MemoryStore) Upsert(_ context.Context, rec *types.ArticleRecord) error {
	if err := CheckRecord(rec); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUpserts != nil {
		return &Error{Op: "upsert", Cause: m.FailUpserts}
	}

	stored := *rec
	if stored.IngestedAt.IsZero() {
		stored.IngestedAt = m.now().UTC()
	}
	m.articles[rec.Key()] = stored
	return nil
}

// Exists implements Store.
func (m *MemoryStore) Exists(_ context.Context, ownerID, url string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.articles[types.ArticleKey{OwnerID: ownerID, URL: url}]
	return ok, nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, ownerID string, q Query) ([]types.ArticleRecord, error) {
	m.mu.RLock()
	var out []types.ArticleRecord
	for key, rec := range m.articles {
		if key.OwnerID != ownerID || !matches(rec, q) {
			continue
		}
		out = append(out, rec)
	}
	m.mu.RUnlock()

	SortByDate(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matches(rec types.ArticleRecord, q Query) bool {
	if !q.IncludeRejected && rec.Suitability != types.SuitabilityAccepted {
		return false
	}
	if q.Company != "" && !strings.EqualFold(rec.Company, q.Company) {
		return false
	}
	if q.From != nil || q.To != nil {
		if rec.PublishedAt == nil {
			return false
		}
		day := rec.PublishedAt.UTC().Format(types.DateLayout)
		if q.From != nil && day < q.From.UTC().Format(types.DateLayout) {
			return false
		}
		if q.To != nil && day > q.To.UTC().Format(types.DateLayout) {
			return false
		}
	}
	return true
}

// SortByDate orders records by published date ascending, undated last, then by URL.
func SortByDate(recs []types.ArticleRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i].PublishedAt, recs[j].PublishedAt
		switch {
		case a == nil && b == nil:
			return recs[i].URL < recs[j].URL
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.Before(*b)
		default:
			return recs[i].URL < recs[j].URL
		}
	})
}

// DeleteOwner implements Store.
func (m *MemoryStore) DeleteOwner(_ context.Context, ownerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key := range m.articles {
		if key.OwnerID == ownerID {
			delete(m.articles, key)
			n++
		}
	}
	return n, nil
}

// Count returns the number of stored records for an owner regardless of verdict.
func (m *MemoryStore) Count(ownerID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for key := range m.articles {
		if key.OwnerID == ownerID {
			n++
		}
	}
	return n
}

// Get returns a stored record.
func (m *MemoryStore) Get(ownerID, url string) (types.ArticleRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.articles[types.ArticleKey{OwnerID: ownerID, URL: url}]
	return rec, ok
}

// SaveRun implements RunLedger.
func (m *MemoryStore) SaveRun(_ context.Context, run *types.IngestionRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	return nil
}

// GetRun implements RunLedger.
func (m *MemoryStore) GetRun(_ context.Context, ownerID, runID string) (*types.IngestionRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	if !ok || run.Criteria.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return &run, nil
}

// ListRuns implements RunLedger.
func (m *MemoryStore) ListRuns(_ context.Context, ownerID string, limit int) ([]types.IngestionRun, error) {
	m.mu.RLock()
	var out []types.IngestionRun
	for _, run := range m.runs {
		if run.Criteria.OwnerID == ownerID {
			out = append(out, run)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit = runLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CreateOwner implements OwnerStore.
func (m *MemoryStore) CreateOwner(_ context.Context, username, passwordHash string) (*OwnerAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.owners[username]; ok {
		return nil, ErrOwnerExists
	}
	acct := OwnerAccount{Username: username, PasswordHash: passwordHash, CreatedAt: m.now().UTC()}
	m.owners[username] = acct
	return &acct, nil
}

// GetOwner implements OwnerStore.
func (m *MemoryStore) GetOwner(_ context.Context, username string) (*OwnerAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acct, ok := m.owners[username]
	if !ok {
		return nil, ErrNotFound
	}
	return &acct, nil
}

// Close implements Backend.
func (m *MemoryStore) Close() error {
	return nil
}
