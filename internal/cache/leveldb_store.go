package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB 键布局：
//
//	s:<version>                 版本标记
//	e:<version>\x00<METHOD URL> gob 编码的 record
var (
	storeMarkerPrefix = []byte("s:")
	entryPrefix       = []byte("e:")
)

// NewLevelDBStore 在 path 下打开（或创建）LevelDB 数据库，所有版本共享一个库。
func NewLevelDBStore(path string) (Store, error) {
	if path == "" {
		return nil, errors.New("storage path required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), dirPerm); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &levelStore{db: db, versions: newVersionLocks()}, nil
}

type levelStore struct {
	db       *leveldb.DB
	versions *versionLocks
}

func markerKey(version string) []byte {
	return append(append([]byte(nil), storeMarkerPrefix...), version...)
}

func versionEntryPrefix(version string) []byte {
	out := append([]byte(nil), entryPrefix...)
	out = append(out, version...)
	return append(out, 0)
}

func levelEntryKey(version string, key Key) []byte {
	return append(versionEntryPrefix(version), key.String()...)
}

func (s *levelStore) Open(ctx context.Context, version string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	if err := validateVersion(version); err != nil {
		return Handle{}, err
	}
	unlock := s.versions.rlock(version)
	defer unlock()

	if err := s.db.Put(markerKey(version), []byte{1}, nil); err != nil {
		return Handle{}, fmt.Errorf("open store %s: %w", version, err)
	}
	return Handle{Version: version}, nil
}

func (s *levelStore) Get(ctx context.Context, h Handle, key Key) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateVersion(h.Version); err != nil {
		return nil, err
	}
	unlock := s.versions.rlock(h.Version)
	defer unlock()

	raw, err := s.db.Get(levelEntryKey(h.Version, key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
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

func (s *levelStore) Put(ctx context.Context, h Handle, key Key, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateVersion(h.Version); err != nil {
		return err
	}
	unlock := s.versions.rlock(h.Version)
	defer unlock()

	ok, err := s.db.Has(markerKey(h.Version), nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrStoreUnavailable
	}

	payload, err := encodeRecord(key, snap)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	batch := new(leveldb.Batch)
	batch.Put(levelEntryKey(h.Version, key), payload)
	return s.db.Write(batch, nil)
}

func (s *levelStore) DeleteEntry(ctx context.Context, h Handle, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateVersion(h.Version); err != nil {
		return err
	}
	unlock := s.versions.rlock(h.Version)
	defer unlock()

	return s.db.Delete(levelEntryKey(h.Version, key), nil)
}

func (s *levelStore) Keys(ctx context.Context, h Handle) ([]Key, error) {
	if err := validateVersion(h.Version); err != nil {
		return nil, err
	}
	unlock := s.versions.rlock(h.Version)
	defer unlock()

	ok, err := s.db.Has(markerKey(h.Version), nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStoreUnavailable
	}

	it := s.db.NewIterator(util.BytesPrefix(versionEntryPrefix(h.Version)), nil)
	defer it.Release()

	var keys []Key
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(it.Value())
		if err != nil {
			continue
		}
		keys = append(keys, rec.Key)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *levelStore) ListStores(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	it := s.db.NewIterator(util.BytesPrefix(storeMarkerPrefix), nil)
	defer it.Release()

	var names []string
	for it.Next() {
		names = append(names, string(bytes.TrimPrefix(it.Key(), storeMarkerPrefix)))
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return names, nil
}

func (s *levelStore) DeleteStore(ctx context.Context, version string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateVersion(version); err != nil {
		return err
	}
	unlock := s.versions.lock(version)
	defer unlock()

	batch := new(leveldb.Batch)
	batch.Delete(markerKey(version))

	it := s.db.NewIterator(util.BytesPrefix(versionEntryPrefix(version)), nil)
	for it.Next() {
		batch.Delete(it.Key())
	}
	iterErr := it.Error()
	it.Release()
	if iterErr != nil {
		return iterErr
	}
	return s.db.Write(batch, nil)
}

func (s *levelStore) Close() error {
	return s.db.Close()
}
