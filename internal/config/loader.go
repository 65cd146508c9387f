package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// 默认值，与 setDefaults 保持一致。
const (
	DefaultExternalAPIHost  = "generativelanguage.googleapis.com"
	DefaultOfflineMessage   = "App is offline. AI features are unavailable."
	DefaultShellOfflineText = "You are offline and this page has not been cached yet."
)

// DefaultShellPaths 为应用入口文档的默认路径集合。
var DefaultShellPaths = []string{"/", "/index.html"}

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyCoordinatorDefaults(&cfg.Coordinator)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	if cfg.Coordinator.UsesManifest() && !filepath.IsAbs(cfg.Coordinator.ManifestPath) {
		// manifest 相对路径以配置文件所在目录为基准。
		cfg.Coordinator.ManifestPath = filepath.Join(filepath.Dir(path), cfg.Coordinator.ManifestPath)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5080)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("StorageBackend", BackendFS)
	v.SetDefault("MemoryEntries", 0)
	v.SetDefault("UpstreamTimeout", "0s")
	v.SetDefault("InstallConcurrency", 8)
	v.SetDefault("ShellPaths", DefaultShellPaths)
	v.SetDefault("ExternalAPIHost", DefaultExternalAPIHost)
	v.SetDefault("OfflineMessage", DefaultOfflineMessage)
	v.SetDefault("ShellOfflineText", DefaultShellOfflineText)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5080
	}
	g.StorageBackend = strings.ToLower(strings.TrimSpace(g.StorageBackend))
	if g.StorageBackend == "" {
		g.StorageBackend = BackendFS
	}
	if g.InstallConcurrency == 0 {
		g.InstallConcurrency = 8
	}
}

func applyCoordinatorDefaults(c *CoordinatorConfig) {
	c.CacheVersion = strings.TrimSpace(c.CacheVersion)
	c.AppDomain = strings.ToLower(strings.TrimSpace(c.AppDomain))
	c.ExternalAPIHost = strings.ToLower(strings.TrimSpace(c.ExternalAPIHost))
	c.Origin = strings.TrimRight(strings.TrimSpace(c.Origin), "/")
	if len(c.ShellPaths) == 0 {
		c.ShellPaths = append([]string(nil), DefaultShellPaths...)
	}
	if c.OfflineMessage == "" {
		c.OfflineMessage = DefaultOfflineMessage
	}
	if c.ShellOfflineText == "" {
		c.ShellOfflineText = DefaultShellOfflineText
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
