package cache

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Store 负责管理按版本划分的缓存代。布局由具体后端决定，但语义一致：
//
//	<version> → { <METHOD URL> → Snapshot }
//
// 同一 Key 的写入整体覆盖，读方只会看到完整的旧值或新值。
type Store interface {
	// Open 打开（必要时创建）指定版本的缓存，可重复调用。
	Open(ctx context.Context, version string) (Handle, error)

	// Get 返回缓存快照。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, h Handle, key Key) (*Snapshot, error)

	// Put 写入快照并覆盖同 Key 的旧值。目标版本已被删除时返回 ErrStoreUnavailable，
	// 避免迟到的写入让旧缓存代“复活”。
	Put(ctx context.Context, h Handle, key Key, snap Snapshot) error

	// DeleteEntry 删除单个条目，条目不存在时不报错。
	DeleteEntry(ctx context.Context, h Handle, key Key) error

	// Keys 列出某个版本下的全部 Key。
	Keys(ctx context.Context, h Handle) ([]Key, error)

	// ListStores 返回当前持久化的全部版本名。
	ListStores(ctx context.Context) ([]string, error)

	// DeleteStore 删除整个版本及其条目，可与其它版本的读写并发执行。
	DeleteStore(ctx context.Context, version string) error

	// Close 释放底层资源。
	Close() error
}

// Handle 指向一个已打开的缓存版本。
type Handle struct {
	Version string
}

// Key 唯一定位一个缓存条目：请求方法 + 含 query 的绝对 URL。
type Key struct {
	Method string
	URL    string
}

// String 输出 `METHOD URL` 形式，作为后端存储键与日志字段。
func (k Key) String() string {
	return k.Method + " " + k.URL
}

// Snapshot 是一次响应的完整捕获：状态码、头部与正文。
type Snapshot struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// Clone 返回独立副本，调用方可以随意修改而不影响缓存内容。
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Header = s.Header.Clone()
	if s.Body != nil {
		out.Body = append([]byte(nil), s.Body...)
	}
	return out
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrStoreUnavailable 表示目标版本不存在（未打开或已被删除）。
	ErrStoreUnavailable = errors.New("cache store unavailable")
	// ErrInvalidVersion 表示版本名不能安全地作为存储名使用。
	ErrInvalidVersion = errors.New("invalid cache version")
)
