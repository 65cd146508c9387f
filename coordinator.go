package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/groovecache/groovecache/internal/cache"
	"github.com/groovecache/groovecache/internal/classify"
	"github.com/groovecache/groovecache/internal/config"
	"github.com/groovecache/groovecache/internal/fetch"
	"github.com/groovecache/groovecache/internal/lifecycle"
	"github.com/groovecache/groovecache/internal/manifest"
)

// assetPlan 是 install 阶段要预缓存的版本与绝对 URL 列表。
type assetPlan struct {
	version string
	assets  []string
}

// resolveAssets 合并 manifest 与内联 Assets，并以 Origin 解析为绝对地址。
// 配置中的 CacheVersion 优先于 manifest 的 version。
func resolveAssets(cfg *config.Config) (assetPlan, error) {
	var m manifest.Manifest
	if cfg.Coordinator.UsesManifest() {
		loaded, err := manifest.Load(cfg.Coordinator.ManifestPath)
		if err != nil {
			return assetPlan{}, err
		}
		m = loaded
	}
	m = m.Merge(cfg.Coordinator.Assets)

	plan := assetPlan{version: cfg.Coordinator.CacheVersion}
	if plan.version == "" {
		plan.version = m.Version
	}
	if plan.version == "" {
		return assetPlan{}, errors.New("cache version missing in config and manifest")
	}

	assets, err := m.Resolve(cfg.Coordinator.OriginURL())
	if err != nil {
		return assetPlan{}, err
	}
	plan.assets = assets
	return plan, nil
}

// coordinator 持有运行期共享的缓存与生命周期控制器。
type coordinator struct {
	store      cache.Store
	controller *lifecycle.Controller
	logger     *logrus.Logger
}

func buildCoordinator(cfg *config.Config, plan assetPlan, logger *logrus.Logger) (*coordinator, error) {
	registry, err := lifecycle.NewVersionRegistry(plan.version)
	if err != nil {
		return nil, err
	}

	store, err := cache.New(cache.Options{
		Backend:       cfg.Global.StorageBackend,
		Path:          cfg.Global.StoragePath,
		MemoryEntries: cfg.Global.MemoryEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化缓存失败: %w", err)
	}

	client := fetch.NewClient(cfg.Global.UpstreamTimeout.DurationValue())
	fetcher := fetch.NewHTTPFetcher(client, cfg.Coordinator.OriginURL())

	controller, err := lifecycle.NewController(lifecycle.Options{
		Registry:           registry,
		Store:              store,
		Fetcher:            fetcher,
		Classifier:         classify.New(cfg.Coordinator.ExternalAPIHost, cfg.Coordinator.ShellPaths),
		Assets:             plan.assets,
		Logger:             logger,
		OfflineMessage:     cfg.Coordinator.OfflineMessage,
		ShellOfflineText:   cfg.Coordinator.ShellOfflineText,
		InstallConcurrency: cfg.Global.InstallConcurrency,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	return &coordinator{store: store, controller: controller, logger: logger}, nil
}

// bringUp 依次执行 install 与 activate。单个资源或旧缓存代的失败只记录日志。
func (c *coordinator) bringUp(ctx context.Context) error {
	install, err := c.controller.OnInstall(ctx)
	if err != nil {
		return err
	}
	for _, f := range install.Failures {
		c.logger.WithError(f.Err).WithField("url", f.URL).Warn("asset not cached")
	}
	activate, err := c.controller.OnActivate(ctx)
	if err != nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{
		"action":  "bring_up",
		"version": install.Version,
		"cached":  install.Cached,
		"deleted": activate.Deleted,
	}).Info("协调器已激活")
	return nil
}

func (c *coordinator) close() {
	c.controller.Wait()
	if err := c.store.Close(); err != nil {
		c.logger.WithError(err).Warn("关闭缓存失败")
	}
}
