// Package strategy executes the three fetch/cache strategies of the
// coordinator: passthrough with a synthesized offline fallback, network-first
// with cache fallback, and cache-first with network populate.
package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/groovecache/groovecache/internal/cache"
	"github.com/groovecache/groovecache/internal/classify"
	"github.com/groovecache/groovecache/internal/fetch"
	"github.com/groovecache/groovecache/internal/logging"
)

// SourceHeader 标记响应来源，便于排查。
const SourceHeader = "X-Groovecache-Source"

// 响应来源取值。
const (
	SourceNetwork  = "network"
	SourceCache    = "cache"
	SourceFallback = "fallback"
)

// ErrUnrecoverable 表示静态资源既无缓存又无法从网络获取。
var ErrUnrecoverable = errors.New("static asset unavailable: cache miss and network failure")

// Options 描述 Engine 依赖的协作者。
type Options struct {
	Store            cache.Store
	Handle           cache.Handle
	Fetcher          fetch.Fetcher
	Logger           *logrus.Logger
	OfflineMessage   string
	ShellOfflineText string
}

// Engine 针对当前缓存代执行策略。单个 Engine 可被任意多个请求并发使用。
type Engine struct {
	store            cache.Store
	handle           cache.Handle
	fetcher          fetch.Fetcher
	log              *logrus.Entry
	offlineMessage   string
	shellOfflineText string

	// mu 保证 pending.Add 不会与 Wait 并发；closing 之后的写入改为同步执行。
	mu      sync.Mutex
	closing bool
	pending sync.WaitGroup
}

// NewEngine validates the collaborators and binds the engine to opts.Handle.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("strategy: store required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("strategy: fetcher required")
	}
	if opts.Handle.Version == "" {
		return nil, errors.New("strategy: store handle required")
	}
	return &Engine{
		store:            opts.Store,
		handle:           opts.Handle,
		fetcher:          opts.Fetcher,
		log:              logging.Component(opts.Logger, "strategy"),
		offlineMessage:   opts.OfflineMessage,
		shellOfflineText: opts.ShellOfflineText,
	}, nil
}

// Execute dispatches req to the strategy matching class.
func (e *Engine) Execute(ctx context.Context, class classify.Class, req *fetch.Request) (*fetch.Response, error) {
	var (
		resp *fetch.Response
		err  error
	)
	switch class {
	case classify.PassthroughExternal:
		resp, err = e.Passthrough(ctx, req)
	case classify.AppShell:
		resp, err = e.NetworkFirst(ctx, req)
	case classify.StaticAsset:
		resp, err = e.CacheFirst(ctx, req)
	default:
		resp, err = e.fetcher.Fetch(ctx, req)
		if err == nil {
			tag(resp, SourceNetwork)
		}
	}

	source := ""
	if resp != nil {
		source = resp.Header.Get(SourceHeader)
	}
	entry := e.log.WithFields(logging.RequestFields(req.Method, req.URL, class.String(), e.handle.Version, source))
	if err != nil {
		entry.WithError(err).Warn("strategy_failed")
		return nil, err
	}
	entry.WithField("status", resp.Status).Debug("strategy_complete")
	return resp, nil
}

// Passthrough 只走网络，从不读写缓存。网络失败时合成 503 JSON。
func (e *Engine) Passthrough(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	resp, err := e.fetcher.Fetch(ctx, req)
	if err != nil {
		e.log.WithError(err).WithField("url", req.URL).Info("passthrough_offline")
		return e.offlineJSON(req), nil
	}
	return tag(resp, SourceNetwork), nil
}

// NetworkFirst 优先返回实时响应，并在后台写入缓存；网络失败时读缓存，
// 缓存也没有则合成 404 离线提示。
func (e *Engine) NetworkFirst(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	resp, err := e.fetcher.Fetch(ctx, req)
	if err == nil {
		e.writeAsync(ctx, req.Key(), resp.Clone())
		return tag(resp, SourceNetwork), nil
	}

	e.log.WithError(err).WithField("url", req.URL).Info("network_first_fallback")
	if cached := e.lookup(ctx, req); cached != nil {
		return tag(cached, SourceCache), nil
	}
	return e.offlineShell(req), nil
}

// CacheFirst 命中缓存时不访问网络；未命中时回源，成功且同源的响应写入缓存。
// 回源失败不做兜底，错误包装 ErrUnrecoverable 返回。
func (e *Engine) CacheFirst(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	if cached := e.lookup(ctx, req); cached != nil {
		return tag(cached, SourceCache), nil
	}

	resp, err := e.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnrecoverable, err)
	}
	if resp.Cacheable() {
		e.write(ctx, req.Key(), resp.Clone())
	}
	return tag(resp, SourceNetwork), nil
}

// Wait blocks until every background cache write has finished. Writes
// started after Wait run synchronously on the request goroutine.
func (e *Engine) Wait() {
	e.mu.Lock()
	e.closing = true
	e.mu.Unlock()
	e.pending.Wait()
}

func (e *Engine) lookup(ctx context.Context, req *fetch.Request) *fetch.Response {
	snap, err := e.store.Get(ctx, e.handle, req.Key())
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			e.log.WithError(err).WithField("url", req.URL).Warn("cache_read_failed")
		}
		return nil
	}
	return fetch.FromSnapshot(req.URL, snap)
}

// writeAsync 在请求返回后继续写缓存，不受调用方取消影响。
func (e *Engine) writeAsync(ctx context.Context, key cache.Key, resp *fetch.Response) {
	ctx = context.WithoutCancel(ctx)
	e.mu.Lock()
	if e.closing {
		e.mu.Unlock()
		e.write(ctx, key, resp)
		return
	}
	e.pending.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				e.log.WithFields(logrus.Fields{
					"key":     key.String(),
					"version": e.handle.Version,
					"panic":   r,
				}).Error("cache_write_panic")
			}
		}()
		e.write(ctx, key, resp)
	}()
}

func (e *Engine) write(ctx context.Context, key cache.Key, resp *fetch.Response) {
	if err := e.store.Put(ctx, e.handle, key, resp.Snapshot()); err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"key":     key.String(),
			"version": e.handle.Version,
		}).Warn("cache_write_failed")
	}
}

func (e *Engine) offlineJSON(req *fetch.Request) *fetch.Response {
	body, _ := json.Marshal(map[string]string{"error": e.offlineMessage})
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	return tag(&fetch.Response{
		Status: http.StatusServiceUnavailable,
		Header: header,
		Body:   body,
		Type:   fetch.TypeSynthetic,
		URL:    req.URL,
	}, SourceFallback)
}

func (e *Engine) offlineShell(req *fetch.Request) *fetch.Response {
	header := http.Header{}
	header.Set("Content-Type", "text/plain; charset=utf-8")
	return tag(&fetch.Response{
		Status: http.StatusNotFound,
		Header: header,
		Body:   []byte(e.shellOfflineText),
		Type:   fetch.TypeSynthetic,
		URL:    req.URL,
	}, SourceFallback)
}

func tag(resp *fetch.Response, source string) *fetch.Response {
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	resp.Header.Set(SourceHeader, source)
	return resp
}
