// Package storage persists one PoolRegistry per chain as a JSON file,
// writing atomically via a temporary sibling file and rename so concurrent
// readers never observe a partial write.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/nemonetwork/dex-aggregator/internal/types"
)

// ErrStorageUnavailable is returned by SavePoolRegistry when the registry
// could not be written due to an underlying I/O failure. A failed read is
// not reported as an error: GetPoolRegistry logs it and returns an empty
// registry, which discovery repopulates.
var ErrStorageUnavailable = errors.New("storage: unavailable")

// Store is a durable, chain-keyed JSON file registry store.
type Store struct {
	dir    string
	logger *zap.Logger

	mu    sync.Mutex // guards the locks map itself
	locks map[int]*sync.Mutex
}

// New returns a Store rooted at dir. dir is created if it does not exist.
func New(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create dir: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: logger,
		locks:  make(map[int]*sync.Mutex),
	}, nil
}

func (s *Store) path(chainID int) string {
	return filepath.Join(s.dir, strconv.Itoa(chainID), "pools.json")
}

func (s *Store) lockFor(chainID int) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[chainID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[chainID] = l
	}
	return l
}

// GetPoolRegistry returns the persisted registry for chainID, or an empty
// registry if none has been persisted yet or the read fails.
func (s *Store) GetPoolRegistry(chainID int) *types.PoolRegistry {
	l := s.lockFor(chainID)
	l.Lock()
	defer l.Unlock()

	path := s.path(chainID)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("failed to read pool registry", zap.Int("chainId", chainID), zap.Error(err))
		}
		return types.NewPoolRegistry()
	}

	reg := types.NewPoolRegistry()
	if err := json.Unmarshal(data, reg); err != nil {
		s.logger.Error("failed to decode pool registry; treating as empty",
			zap.Int("chainId", chainID), zap.Error(err))
		return types.NewPoolRegistry()
	}
	return normalizeKeys(reg)
}

// normalizeKeys lowercases map keys on load, in case the file was hand-edited
// or written by a version that stored mixed-case keys.
func normalizeKeys(reg *types.PoolRegistry) *types.PoolRegistry {
	out := types.NewPoolRegistry()
	for _, pool := range reg.Pools {
		out.Pools[strings.ToLower(pool.Address)] = pool
	}
	for token, routes := range reg.PricingRoutes {
		out.PricingRoutes[strings.ToLower(token)] = routes
	}
	return out
}

// SavePoolRegistry atomically persists registry for chainID: write to a
// temporary sibling file, fsync, then rename over the target path.
func (s *Store) SavePoolRegistry(chainID int, registry *types.PoolRegistry) error {
	l := s.lockFor(chainID)
	l.Lock()
	defer l.Unlock()

	path := s.path(chainID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.logger.Error("failed to create chain directory", zap.Int("chainId", chainID), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	data, err := json.MarshalIndent(registry, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".pools-*.json.tmp")
	if err != nil {
		s.logger.Error("failed to create temp file", zap.Int("chainId", chainID), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.logger.Error("failed to write temp file", zap.Int("chainId", chainID), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		s.logger.Error("failed to rename temp file into place", zap.Int("chainId", chainID), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}
