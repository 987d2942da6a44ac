package failover

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// PreferenceKey is the single key under which the explicit mode choice is
// persisted.
const PreferenceKey = "atrium-mode-preference"

// PreferenceStore is one persistent per-origin key/value backend. Get
// returns "" for a missing value; errors mean the store is unreachable and
// the caller skips it.
type PreferenceStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// ReadPreference reads the persisted mode choice across stores,
// first-match-wins. Unreachable stores and unrecognized values are skipped.
func ReadPreference(key string, stores ...PreferenceStore) string {
	for _, s := range stores {
		if s == nil {
			continue
		}
		v, err := s.Get(key)
		if err != nil {
			continue
		}
		v = strings.TrimSpace(v)
		if v == ModeImmersive || v == ModeText {
			return v
		}
	}
	return ""
}

// WritePreference writes the choice to every reachable store, best-effort.
func WritePreference(key, value string, stores ...PreferenceStore) {
	for _, s := range stores {
		if s == nil {
			continue
		}
		_ = s.Set(key, value)
	}
}

// MemoryPreferenceStore is the in-process backend.
type MemoryPreferenceStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryPreferenceStore() *MemoryPreferenceStore {
	return &MemoryPreferenceStore{data: make(map[string]string)}
}

func (s *MemoryPreferenceStore) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[key], nil
}

func (s *MemoryPreferenceStore) Set(key, value string) error {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
	return nil
}

// FilePreferenceStore keeps one small file per key under dir, written
// atomically via tmp+rename.
type FilePreferenceStore struct {
	dir string
}

func NewFilePreferenceStore(dir string) *FilePreferenceStore {
	return &FilePreferenceStore{dir: dir}
}

func (s *FilePreferenceStore) path(key string) string {
	sum := sha1.Sum([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".pref")
}

func (s *FilePreferenceStore) Get(key string) (string, error) {
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FilePreferenceStore) Set(key, value string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	path := s.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(value+"\n"), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
