// Package journal records every transaction the desk submits and its final status.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

type Kind string

const (
	KindApprove Kind = "approve"
	KindRedeem  Kind = "redeem"
	KindCollect Kind = "collect"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusSuccess  Status = "success"
	StatusReverted Status = "reverted"
	StatusFailed   Status = "failed"
	StatusTimeout  Status = "timeout"
)

// Entry is one submitted transaction.
type Entry struct {
	TxHash          string    `json:"txHash"`
	Kind            Kind      `json:"kind"`
	CollateralIndex uint64    `json:"collateralIndex"`
	Amount          string    `json:"amount,omitempty"` // fixed-point
	Block           uint64    `json:"block,omitempty"`
	Status          Status    `json:"status"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Store abstracts journal persistence.
type Store interface {
	// Put inserts or replaces the entry keyed by TxHash. CreatedAt of an
	// existing entry is kept.
	Put(ctx context.Context, entry Entry) error
	// List returns up to limit entries, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Entry, error)
}

// MemoryStore is mostly for testing.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Entry),
	}
}

func (m *MemoryStore) Put(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[entry.TxHash] = merge(m.data, entry)
	return nil
}

func (m *MemoryStore) List(_ context.Context, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(m.data, limit), nil
}

// FileStore persists entries to a JSON file. Suitable for a single local desk.
type FileStore struct {
	path string
	mu   sync.Mutex
	data map[string]Entry
}

func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path: path,
		data: make(map[string]Entry),
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	blob, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(blob) == 0 {
		return nil
	}
	return json.Unmarshal(blob, &f.data)
}

func (f *FileStore) persist() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	blob, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Put(_ context.Context, entry Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[entry.TxHash] = merge(f.data, entry)
	return f.persist()
}

func (f *FileStore) List(_ context.Context, limit int) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return newestFirst(f.data, limit), nil
}

func merge(data map[string]Entry, entry Entry) Entry {
	now := time.Now().UTC()
	if prev, ok := data[entry.TxHash]; ok && !prev.CreatedAt.IsZero() {
		entry.CreatedAt = prev.CreatedAt
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	return entry
}

func newestFirst(data map[string]Entry, limit int) []Entry {
	out := make([]Entry, 0, len(data))
	for _, e := range data {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].TxHash < out[j].TxHash
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
