package cache

import (
	"bytes"
	"encoding/gob"
	"strings"
	"sync"
)

// record 是落盘的条目格式，保留原始 Key 以便 Keys() 枚举。
type record struct {
	Key      Key
	Snapshot Snapshot
}

func encodeRecord(key Key, snap Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(record{Key: key, Snapshot: snap}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(b []byte) (record, error) {
	var rec record
	err := gob.NewDecoder(bytes.NewReader(b)).Decode(&rec)
	return rec, err
}

func validateVersion(version string) error {
	if version == "" || strings.HasPrefix(version, ".") ||
		strings.ContainsAny(version, "/\\\x00") {
		return ErrInvalidVersion
	}
	return nil
}

// versionLocks 为每个版本提供读写锁：条目读写持读锁，DeleteStore 持写锁，
// 因此删除旧版本不会阻塞当前版本的请求。
type versionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func newVersionLocks() *versionLocks {
	return &versionLocks{locks: make(map[string]*sync.RWMutex)}
}

func (v *versionLocks) get(version string) *sync.RWMutex {
	v.mu.Lock()
	defer v.mu.Unlock()
	lock := v.locks[version]
	if lock == nil {
		lock = &sync.RWMutex{}
		v.locks[version] = lock
	}
	return lock
}

func (v *versionLocks) rlock(version string) func() {
	lock := v.get(version)
	lock.RLock()
	return lock.RUnlock
}

func (v *versionLocks) lock(version string) func() {
	lock := v.get(version)
	lock.Lock()
	return lock.Unlock
}
