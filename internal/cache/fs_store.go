package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	entrySuffix = ".entry"
	trashPrefix = ".trash-"
	tempPattern = ".cache-*"
	dirPerm     = 0o755
)

// NewFileStore 以 basePath 为根目录构建磁盘缓存，每个版本一个子目录。
func NewFileStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, dirPerm); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fileStore{
		basePath: abs,
		versions: newVersionLocks(),
		locks:    make(map[string]*entryLock),
	}, nil
}

// fileStore 通过 entryLock 避免同一 Key 并发写入，通过 versionLocks 隔离整版本删除。
type fileStore struct {
	basePath string
	versions *versionLocks

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fileStore) Open(ctx context.Context, version string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	if err := validateVersion(version); err != nil {
		return Handle{}, err
	}
	unlock := s.versions.rlock(version)
	defer unlock()

	if err := os.MkdirAll(s.versionDir(version), dirPerm); err != nil {
		return Handle{}, fmt.Errorf("open store %s: %w", version, err)
	}
	return Handle{Version: version}, nil
}

func (s *fileStore) Get(ctx context.Context, h Handle, key Key) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unlock := s.versions.rlock(h.Version)
	defer unlock()

	filePath, err := s.entryPath(h, key)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return &rec.Snapshot, nil
}

func (s *fileStore) Put(ctx context.Context, h Handle, key Key, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlockVersion := s.versions.rlock(h.Version)
	defer unlockVersion()

	unlock := s.lockEntry(h, key)
	defer unlock()

	filePath, err := s.entryPath(h, key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(filePath)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return ErrStoreUnavailable
	}

	if snap.StoredAt.IsZero() {
		snap.StoredAt = time.Now().UTC()
	}
	payload, err := encodeRecord(key, snap)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}

	tempFile, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(payload)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func (s *fileStore) DeleteEntry(ctx context.Context, h Handle, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlockVersion := s.versions.rlock(h.Version)
	defer unlockVersion()

	unlock := s.lockEntry(h, key)
	defer unlock()

	filePath, err := s.entryPath(h, key)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) Keys(ctx context.Context, h Handle) ([]Key, error) {
	if err := validateVersion(h.Version); err != nil {
		return nil, err
	}
	unlock := s.versions.rlock(h.Version)
	defer unlock()

	entries, err := os.ReadDir(s.versionDir(h.Version))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrStoreUnavailable
		}
		return nil, err
	}

	keys := make([]Key, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), entrySuffix) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.versionDir(h.Version), entry.Name()))
		if err != nil {
			continue
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			continue
		}
		keys = append(keys, rec.Key)
	}
	return keys, nil
}

func (s *fileStore) ListStores(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

func (s *fileStore) DeleteStore(ctx context.Context, version string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateVersion(version); err != nil {
		return err
	}
	unlock := s.versions.lock(version)
	defer unlock()

	// 先改名为隐藏的 trash 目录，ListStores 立即看不到它，再慢慢删除内容。
	trash := filepath.Join(s.basePath, fmt.Sprintf("%s%s-%d", trashPrefix, version, time.Now().UnixNano()))
	if err := os.Rename(s.versionDir(version), trash); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.RemoveAll(trash)
}

func (s *fileStore) Close() error {
	return nil
}

func (s *fileStore) lockEntry(h Handle, key Key) func() {
	id := h.Version + "::" + key.String()
	s.mu.Lock()
	lock := s.locks[id]
	if lock == nil {
		lock = &entryLock{}
		s.locks[id] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

func (s *fileStore) versionDir(version string) string {
	return filepath.Join(s.basePath, version)
}

func (s *fileStore) entryPath(h Handle, key Key) (string, error) {
	if err := validateVersion(h.Version); err != nil {
		return "", err
	}
	if key.URL == "" {
		return "", errors.New("cache key url required")
	}
	sum := sha1.Sum([]byte(key.String()))
	return filepath.Join(s.versionDir(h.Version), hex.EncodeToString(sum[:])+entrySuffix), nil
}
