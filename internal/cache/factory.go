package cache

import (
	"fmt"
	"path/filepath"
)

// Options 描述如何组装缓存后端。
type Options struct {
	// Backend 取值 "fs" 或 "leveldb"，为空时使用 fs。
	Backend string
	// Path 是缓存根目录；leveldb 后端在其下的 leveldb/ 子目录建库。
	Path string
	// MemoryEntries 大于 0 时在 durable 之前叠加 LRU。
	MemoryEntries int
}

// New 按 Options 构建 Store。
func New(opts Options) (Store, error) {
	var (
		durable Store
		err     error
	)
	switch opts.Backend {
	case "", "fs":
		durable, err = NewFileStore(opts.Path)
	case "leveldb":
		durable, err = NewLevelDBStore(filepath.Join(opts.Path, "leveldb"))
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	if opts.MemoryEntries <= 0 {
		return durable, nil
	}
	front, err := NewMemoryFront(durable, opts.MemoryEntries)
	if err != nil {
		durable.Close()
		return nil, err
	}
	return front, nil
}
