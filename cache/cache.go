// Package cache persists analysis results across runs in two tiers: an
// in-memory LRU over parsed module records, and an on-disk badger store
// keyed by content hash. Badger's directory lock doubles as the
// exclusive advisory lock between concurrent processes: a second process
// fails to open the store and runs uncached.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/markjoshwel/raiseattention/config"
	"github.com/markjoshwel/raiseattention/model"
	"github.com/markjoshwel/raiseattention/output"
)

const (
	filePrefix = "file:"
	sigPrefix  = "sig:"
	metaPrefix = "meta:"
)

// fileMeta is the stat fast path: when mtime and size both match, the
// stored hash is trusted without re-reading the file.
type fileMeta struct {
	MTimeUnixNano int64  `json:"mtime"`
	Size          int64  `json:"size"`
	ContentHash   string `json:"hash"`
}

// Store is the two-tier cache. A store without an open database
// (disabled, locked by another process, or closed) degrades to no-ops so
// callers never branch on cache availability. The lookup, write and
// Close methods also accept a nil store; Status, Clear and Prune do not.
type Store struct {
	db     *badger.DB
	mem    *lru.Cache[string, *model.Module]
	ttl    time.Duration
	logger *output.Logger
	dir    string
}

// Open creates or opens the store for the given knobs. When the cache is
// disabled, or the directory lock is held by another process, the
// returned store is valid but performs no persistence.
func Open(cfg config.CacheConfig, logger *output.Logger) (*Store, error) {
	s := &Store{
		ttl:    time.Duration(cfg.TTLHours) * time.Hour,
		logger: logger,
	}
	mem, err := lru.New[string, *model.Module](max(cfg.MaxFileEntries, 16))
	if err != nil {
		return nil, err
	}
	s.mem = mem

	if !cfg.Enabled {
		return s, nil
	}

	dir := cfg.Dir
	if dir == "" {
		dir, err = config.DefaultCacheDir()
		if err != nil {
			logger.Debugf("cache: no user cache dir: %v", err)
			return s, nil
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Debugf("cache: cannot create %s: %v", dir, err)
		return s, nil
	}

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		// Most commonly the directory lock held by a concurrent
		// process; back off to uncached operation.
		logger.Warnf("cache at %s unavailable, continuing without: %v", dir, err)
		return s, nil
	}
	s.db = db
	s.dir = dir
	return s, nil
}

// Close releases the store and its directory lock.
func (s *Store) Close() {
	if s != nil && s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
}

// Persistent reports whether the on-disk tier is active.
func (s *Store) Persistent() bool {
	return s != nil && s.db != nil
}

// GetModule returns the cached visitor output for a file at a specific
// content hash.
func (s *Store) GetModule(path, contentHash string) (*model.Module, bool) {
	if s == nil {
		return nil, false
	}
	key := filePrefix + path + ":" + contentHash
	if mod, ok := s.mem.Get(key); ok {
		return mod, true
	}
	if s.db == nil {
		return nil, false
	}

	var mod model.Module
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &mod)
		})
	})
	if err != nil {
		if err != badger.ErrKeyNotFound {
			// Corruption invalidates silently; the entry is rebuilt.
			s.logger.Debugf("cache: dropping corrupt entry for %s: %v", path, err)
			s.delete(key)
		}
		return nil, false
	}
	s.mem.Add(key, &mod)
	return &mod, true
}

// PutModule stores visitor output under the file's path and hash, plus
// the stat fast-path record.
func (s *Store) PutModule(mod *model.Module) {
	if s == nil || mod == nil {
		return
	}
	key := filePrefix + mod.FilePath + ":" + mod.ContentHash
	s.mem.Add(key, mod)
	if s.db == nil {
		return
	}

	data, err := json.Marshal(mod)
	if err != nil {
		s.logger.Debugf("cache: cannot serialise %s: %v", mod.FilePath, err)
		return
	}
	meta := fileMeta{ContentHash: mod.ContentHash}
	if info, err := os.Stat(mod.FilePath); err == nil {
		meta.MTimeUnixNano = info.ModTime().UnixNano()
		meta.Size = info.Size()
	}
	metaData, _ := json.Marshal(meta)

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), data)
		metaEntry := badger.NewEntry([]byte(metaPrefix+mod.FilePath), metaData)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
			metaEntry = metaEntry.WithTTL(s.ttl)
		}
		if err := txn.SetEntry(entry); err != nil {
			return err
		}
		return txn.SetEntry(metaEntry)
	})
	if err != nil {
		s.logger.Debugf("cache: write failed for %s: %v", mod.FilePath, err)
	}
}

// FreshHash returns the stored content hash for a path when its mtime
// and size still match, letting callers skip re-hashing unchanged files.
func (s *Store) FreshHash(path string) (string, bool) {
	if s == nil || s.db == nil {
		return "", false
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}

	var meta fileMeta
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaPrefix + path))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if err != nil {
		return "", false
	}
	if meta.MTimeUnixNano != info.ModTime().UnixNano() || meta.Size != info.Size() {
		return "", false
	}
	return meta.ContentHash, true
}

// GetSignature returns a cached per-function signature. The key binds
// the function to its module content and the hash of its transitive
// dependency signatures, so any dependency change misses.
func (s *Store) GetSignature(qualName, moduleHash, depHash string) (model.ExceptionSet, bool) {
	if s == nil || s.db == nil {
		return nil, false
	}
	key := sigPrefix + qualName + ":" + moduleHash + ":" + depHash
	var set model.ExceptionSet
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &set)
		})
	})
	if err != nil {
		return nil, false
	}
	return set, true
}

// PutSignature stores one converged signature.
func (s *Store) PutSignature(qualName, moduleHash, depHash string, set model.ExceptionSet) {
	if s == nil || s.db == nil {
		return
	}
	data, err := json.Marshal(set)
	if err != nil {
		return
	}
	key := sigPrefix + qualName + ":" + moduleHash + ":" + depHash
	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), data)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		s.logger.Debugf("cache: signature write failed: %v", err)
	}
}

func (s *Store) delete(key string) {
	if s.db == nil {
		return
	}
	_ = s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Status summarises the store for the cache status subcommand.
type Status struct {
	Dir         string
	Persistent  bool
	FileEntries int
	SigEntries  int
	DiskBytes   int64
}

// Status counts entries per tier and sums on-disk size.
func (s *Store) Status() Status {
	st := Status{Dir: s.dir, Persistent: s.Persistent()}
	if s.db == nil {
		return st
	}
	_ = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			switch {
			case strings.HasPrefix(key, filePrefix):
				st.FileEntries++
			case strings.HasPrefix(key, sigPrefix):
				st.SigEntries++
			}
		}
		return nil
	})
	lsm, vlog := s.db.Size()
	st.DiskBytes = lsm + vlog
	return st
}

// Clear drops every entry.
func (s *Store) Clear() error {
	if s.db == nil {
		return nil
	}
	s.mem.Purge()
	return s.db.DropAll()
}

// Prune deletes entries older than maxAge and compacts the value log.
func (s *Store) Prune(maxAge time.Duration) (int, error) {
	if s.db == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{})
		defer it.Close()
		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if item.ExpiresAt() == 0 {
				continue
			}
			expires := time.Unix(int64(item.ExpiresAt()), 0)
			created := expires.Add(-s.ttl)
			if created.Before(cutoff) {
				stale = append(stale, item.KeyCopy(nil))
			}
		}
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("pruning cache: %w", err)
	}
	for {
		if err := s.db.RunValueLogGC(0.5); err != nil {
			break
		}
	}
	return removed, nil
}

// DirFor reports the effective cache directory for the knobs without
// opening the store; cache status uses it when another process holds the
// lock.
func DirFor(cfg config.CacheConfig) string {
	if cfg.Dir != "" {
		return cfg.Dir
	}
	dir, err := config.DefaultCacheDir()
	if err != nil {
		return ""
	}
	return dir
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
