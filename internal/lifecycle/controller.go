// Package lifecycle drives the coordinator through its install, activate and
// request-intercept phases. The Controller owns the current version, seeds
// and garbage-collects cache generations, and hands each intercepted request
// to the strategy engine.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/groovecache/groovecache/internal/cache"
	"github.com/groovecache/groovecache/internal/classify"
	"github.com/groovecache/groovecache/internal/fetch"
	"github.com/groovecache/groovecache/internal/logging"
	"github.com/groovecache/groovecache/internal/strategy"
)

// Phase 是生命周期状态机的当前阶段。
type Phase int32

const (
	PhaseUninstalled Phase = iota
	PhaseInstalling
	PhaseInstalled
	PhaseActivating
	PhaseActive
)

func (p Phase) String() string {
	switch p {
	case PhaseInstalling:
		return "installing"
	case PhaseInstalled:
		return "installed"
	case PhaseActivating:
		return "activating"
	case PhaseActive:
		return "active"
	default:
		return "uninstalled"
	}
}

// DefaultInstallConcurrency 限制 install 阶段并发预取的资源数。
const DefaultInstallConcurrency = 8

var (
	// ErrNotInstalled 表示在 install 完成之前调用了 activate。
	ErrNotInstalled = errors.New("lifecycle: install has not completed")
	// ErrTransitionInProgress 表示另一次 install/activate 仍在执行。
	ErrTransitionInProgress = errors.New("lifecycle: another phase transition is in progress")
	// ErrStrategyPanic 表示单个请求的策略执行发生 panic，只影响该请求。
	ErrStrategyPanic = errors.New("lifecycle: strategy panicked")
)

// Options 描述 Controller 的协作者与配置。
type Options struct {
	Registry           *VersionRegistry
	Store              cache.Store
	Fetcher            fetch.Fetcher
	Classifier         classify.Classifier
	Assets             []string
	Logger             *logrus.Logger
	OfflineMessage     string
	ShellOfflineText   string
	InstallConcurrency int
}

// AssetFailure 记录 install 阶段单个资源的失败原因。
type AssetFailure struct {
	URL string
	Err error
}

// InstallReport 汇总一次 install。
type InstallReport struct {
	Version  string
	Cached   int
	Failures []AssetFailure
}

// StoreFailure 记录 activate 阶段删除旧缓存代失败的情况。
type StoreFailure struct {
	Version string
	Err     error
}

// ActivateReport 汇总一次 activate。
type ActivateReport struct {
	Version  string
	Deleted  []string
	Failures []StoreFailure
}

// Status 是诊断接口使用的快照。
type Status struct {
	Version string   `json:"version"`
	Phase   string   `json:"phase"`
	Stores  []string `json:"stores"`
	Entries int      `json:"entries"`
}

// Controller 串联 install → activate → 请求拦截。
type Controller struct {
	registry    *VersionRegistry
	store       cache.Store
	fetcher     fetch.Fetcher
	classifier  classify.Classifier
	assets      []string
	log         *logrus.Entry
	logger      *logrus.Logger
	offlineMsg  string
	shellText   string
	concurrency int

	transition sync.Mutex
	phase      atomic.Int32
	engine     atomic.Pointer[strategy.Engine]
}

// NewController validates options and returns a controller in PhaseUninstalled.
func NewController(opts Options) (*Controller, error) {
	if opts.Registry == nil {
		return nil, errors.New("lifecycle: version registry required")
	}
	if opts.Store == nil {
		return nil, errors.New("lifecycle: cache store required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("lifecycle: fetcher required")
	}
	concurrency := opts.InstallConcurrency
	if concurrency <= 0 {
		concurrency = DefaultInstallConcurrency
	}
	return &Controller{
		registry:    opts.Registry,
		store:       opts.Store,
		fetcher:     opts.Fetcher,
		classifier:  opts.Classifier,
		assets:      append([]string(nil), opts.Assets...),
		log:         logging.Component(opts.Logger, "lifecycle"),
		logger:      opts.Logger,
		offlineMsg:  opts.OfflineMessage,
		shellText:   opts.ShellOfflineText,
		concurrency: concurrency,
	}, nil
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	return Phase(c.phase.Load())
}

// Version returns the current store version.
func (c *Controller) Version() string {
	return c.registry.Current()
}

// OnInstall 打开当前版本的缓存并尽力预取全部清单资源。单个资源失败只记录，
// 不影响其它资源；只有打开缓存失败才返回错误。完成后立即进入 Installed，
// 无需等待旧实例退出。重复调用是安全的。
func (c *Controller) OnInstall(ctx context.Context) (InstallReport, error) {
	if !c.transition.TryLock() {
		return InstallReport{}, ErrTransitionInProgress
	}
	defer c.transition.Unlock()

	version := c.registry.Current()
	report := InstallReport{Version: version}
	prev := c.Phase()
	if prev < PhaseInstalled {
		c.setPhase(PhaseInstalling)
	}

	handle, err := c.store.Open(ctx, version)
	if err != nil {
		c.setPhase(prev)
		return report, fmt.Errorf("open store %s: %w", version, err)
	}
	if _, err := c.ensureEngine(handle); err != nil {
		c.setPhase(prev)
		return report, err
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(c.concurrency)
	for _, asset := range c.assets {
		g.Go(func() error {
			err := c.seed(ctx, handle, asset)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failures = append(report.Failures, AssetFailure{URL: asset, Err: err})
				c.log.WithError(err).WithField("url", asset).Warn("install_asset_failed")
				return nil
			}
			report.Cached++
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].URL < report.Failures[j].URL })
	if prev < PhaseInstalled {
		c.setPhase(PhaseInstalled)
	}
	c.log.WithFields(logging.LifecycleFields(c.Phase().String(), version)).
		WithFields(logrus.Fields{"cached": report.Cached, "failed": len(report.Failures)}).
		Info("install_complete")
	return report, nil
}

func (c *Controller) seed(ctx context.Context, handle cache.Handle, asset string) error {
	resp, err := c.fetcher.Fetch(ctx, fetch.NewRequest(http.MethodGet, asset))
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("unexpected status %d", resp.Status)
	}
	req := fetch.NewRequest(http.MethodGet, asset)
	return c.store.Put(ctx, handle, req.Key(), resp.Snapshot())
}

// OnActivate 删除所有非当前版本的缓存代，然后接管请求拦截。
// 单个缓存代删除失败会被记录并写入报告，不阻止激活。
func (c *Controller) OnActivate(ctx context.Context) (ActivateReport, error) {
	if !c.transition.TryLock() {
		return ActivateReport{}, ErrTransitionInProgress
	}
	defer c.transition.Unlock()

	version := c.registry.Current()
	report := ActivateReport{Version: version}
	prev := c.Phase()
	if prev < PhaseInstalled || c.engine.Load() == nil {
		return report, ErrNotInstalled
	}
	if prev != PhaseActive {
		c.setPhase(PhaseActivating)
	}

	names, err := c.store.ListStores(ctx)
	if err != nil {
		c.setPhase(prev)
		return report, fmt.Errorf("list stores: %w", err)
	}
	sort.Strings(names)
	for _, name := range names {
		if !c.registry.Superseded(name) {
			continue
		}
		if err := c.store.DeleteStore(ctx, name); err != nil {
			report.Failures = append(report.Failures, StoreFailure{Version: name, Err: err})
			c.log.WithError(err).WithField("store", name).Warn("activate_delete_failed")
			continue
		}
		report.Deleted = append(report.Deleted, name)
	}

	c.setPhase(PhaseActive)
	c.log.WithFields(logging.LifecycleFields(PhaseActive.String(), version)).
		WithFields(logrus.Fields{"deleted": report.Deleted, "failed": len(report.Failures)}).
		Info("activate_complete")
	return report, nil
}

// OnFetch 处理一次拦截到的请求。未激活或被忽略的请求直接走网络；
// 策略中的 panic 被恢复为 ErrStrategyPanic，仅影响当前请求。
func (c *Controller) OnFetch(ctx context.Context, req *fetch.Request) (resp *fetch.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = fmt.Errorf("%w: %v", ErrStrategyPanic, r)
			c.log.WithField("url", req.URL).WithError(err).Error("strategy_panic")
		}
	}()

	engine := c.engine.Load()
	if c.Phase() != PhaseActive || engine == nil {
		return c.fetcher.Fetch(ctx, req)
	}
	class := c.classifier.Classify(req.Method, req.URL)
	if class == classify.Ignored {
		return c.fetcher.Fetch(ctx, req)
	}
	return engine.Execute(ctx, class, req)
}

// EvictEntry removes a single GET entry from the current store.
func (c *Controller) EvictEntry(ctx context.Context, rawURL string) error {
	req := fetch.NewRequest(http.MethodGet, rawURL)
	return c.store.DeleteEntry(ctx, cache.Handle{Version: c.registry.Current()}, req.Key())
}

// Status 汇总当前版本、阶段与缓存概况。
func (c *Controller) Status(ctx context.Context) (Status, error) {
	st := Status{Version: c.registry.Current(), Phase: c.Phase().String()}
	names, err := c.store.ListStores(ctx)
	if err != nil {
		return st, err
	}
	sort.Strings(names)
	st.Stores = names
	if c.engine.Load() == nil {
		return st, nil
	}
	keys, err := c.store.Keys(ctx, cache.Handle{Version: st.Version})
	if err != nil {
		if errors.Is(err, cache.ErrStoreUnavailable) {
			return st, nil
		}
		return st, err
	}
	st.Entries = len(keys)
	return st, nil
}

// Wait blocks until background cache writes finish.
func (c *Controller) Wait() {
	if engine := c.engine.Load(); engine != nil {
		engine.Wait()
	}
}

func (c *Controller) ensureEngine(handle cache.Handle) (*strategy.Engine, error) {
	if engine := c.engine.Load(); engine != nil {
		return engine, nil
	}
	engine, err := strategy.NewEngine(strategy.Options{
		Store:            c.store,
		Handle:           handle,
		Fetcher:          c.fetcher,
		Logger:           c.logger,
		OfflineMessage:   c.offlineMsg,
		ShellOfflineText: c.shellText,
	})
	if err != nil {
		return nil, err
	}
	c.engine.Store(engine)
	return engine, nil
}

func (c *Controller) setPhase(p Phase) {
	old := Phase(c.phase.Swap(int32(p)))
	if old != p {
		c.log.WithFields(logging.LifecycleFields(p.String(), c.registry.Current())).
			WithField("from", old.String()).Debug("phase_transition")
	}
}
