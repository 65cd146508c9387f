package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// NewMemoryFront 在 durable 之前叠加一个容量为 size 的 LRU，热点条目直接从内存返回。
// 写入与删除总是先落到 durable，再使内存副本失效。
func NewMemoryFront(durable Store, size int) (Store, error) {
	if durable == nil {
		return nil, ErrStoreUnavailable
	}
	hot, err := lru.New[string, Snapshot](size)
	if err != nil {
		return nil, fmt.Errorf("create memory front: %w", err)
	}
	return &memoryFront{
		durable:     durable,
		hot:         hot,
		versions:    newVersionLocks(),
		generations: make(map[string]uint64),
	}, nil
}

// memoryFront 的回填只在 generation 未变化时生效：Get 读 durable 期间若发生
// Put/DeleteEntry，读到的快照已过期，不能再放回内存。
type memoryFront struct {
	durable  Store
	hot      *lru.Cache[string, Snapshot]
	versions *versionLocks

	mu          sync.Mutex
	generations map[string]uint64
}

func memoryKey(version string, key Key) string {
	return version + "\x00" + key.String()
}

func (m *memoryFront) Open(ctx context.Context, version string) (Handle, error) {
	return m.durable.Open(ctx, version)
}

func (m *memoryFront) Get(ctx context.Context, h Handle, key Key) (*Snapshot, error) {
	unlock := m.versions.rlock(h.Version)
	defer unlock()

	id := memoryKey(h.Version, key)
	if snap, ok := m.hot.Get(id); ok {
		out := snap.Clone()
		return &out, nil
	}
	gen := m.generation(id)
	snap, err := m.durable.Get(ctx, h, key)
	if err != nil {
		return nil, err
	}
	m.fill(id, gen, snap.Clone())
	return snap, nil
}

func (m *memoryFront) generation(id string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generations[id]
}

func (m *memoryFront) fill(id string, gen uint64, snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generations[id] == gen {
		m.hot.Add(id, snap)
	}
}

// invalidate 必须在 durable 写入完成之后调用。
func (m *memoryFront) invalidate(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generations[id]++
	m.hot.Remove(id)
}

func (m *memoryFront) Put(ctx context.Context, h Handle, key Key, snap Snapshot) error {
	unlock := m.versions.rlock(h.Version)
	defer unlock()

	if err := m.durable.Put(ctx, h, key, snap); err != nil {
		return err
	}
	m.invalidate(memoryKey(h.Version, key))
	return nil
}

func (m *memoryFront) DeleteEntry(ctx context.Context, h Handle, key Key) error {
	unlock := m.versions.rlock(h.Version)
	defer unlock()

	if err := m.durable.DeleteEntry(ctx, h, key); err != nil {
		return err
	}
	m.invalidate(memoryKey(h.Version, key))
	return nil
}

func (m *memoryFront) Keys(ctx context.Context, h Handle) ([]Key, error) {
	return m.durable.Keys(ctx, h)
}

func (m *memoryFront) ListStores(ctx context.Context) ([]string, error) {
	return m.durable.ListStores(ctx)
}

func (m *memoryFront) DeleteStore(ctx context.Context, version string) error {
	unlock := m.versions.lock(version)
	defer unlock()

	if err := m.durable.DeleteStore(ctx, version); err != nil {
		return err
	}
	prefix := version + "\x00"
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.hot.Keys() {
		if strings.HasPrefix(id, prefix) {
			m.hot.Remove(id)
		}
	}
	for id := range m.generations {
		if strings.HasPrefix(id, prefix) {
			delete(m.generations, id)
		}
	}
	return nil
}

func (m *memoryFront) Close() error {
	m.hot.Purge()
	return m.durable.Close()
}
