package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 存储后端取值。
const (
	BackendFS      = "fs"
	BackendLevelDB = "leveldb"
)

// GlobalConfig 描述进程级运行参数：监听端口、日志、缓存落盘位置与上游客户端。
type GlobalConfig struct {
	ListenPort         int      `mapstructure:"ListenPort"`
	LogLevel           string   `mapstructure:"LogLevel"`
	LogFilePath        string   `mapstructure:"LogFilePath"`
	LogMaxSize         int      `mapstructure:"LogMaxSize"`
	LogMaxBackups      int      `mapstructure:"LogMaxBackups"`
	LogCompress        bool     `mapstructure:"LogCompress"`
	StoragePath        string   `mapstructure:"StoragePath"`
	StorageBackend     string   `mapstructure:"StorageBackend"`
	MemoryEntries      int      `mapstructure:"MemoryEntries"`
	UpstreamTimeout    Duration `mapstructure:"UpstreamTimeout"`
	InstallConcurrency int      `mapstructure:"InstallConcurrency"`
}

// CoordinatorConfig 描述离线缓存协调器的行为，部署后不可在运行期修改。
type CoordinatorConfig struct {
	// CacheVersion 是当前缓存代的标签；为空时使用 manifest 中的 version。
	CacheVersion string `mapstructure:"CacheVersion"`
	// ManifestPath 指向宿主应用提供的 YAML 资源清单。
	ManifestPath string `mapstructure:"ManifestPath"`
	// Assets 为直接写在配置中的预缓存路径，与 manifest 合并。
	Assets []string `mapstructure:"Assets"`
	// AppDomain 是应用自身的 Host，匹配该 Host 的请求会被解析到 Origin。
	AppDomain string `mapstructure:"AppDomain"`
	// Origin 是应用资源的真实来源地址，同源判断以它为准。
	Origin           string   `mapstructure:"Origin"`
	ShellPaths       []string `mapstructure:"ShellPaths"`
	ExternalAPIHost  string   `mapstructure:"ExternalAPIHost"`
	OfflineMessage   string   `mapstructure:"OfflineMessage"`
	ShellOfflineText string   `mapstructure:"ShellOfflineText"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global      GlobalConfig      `mapstructure:",squash"`
	Coordinator CoordinatorConfig `mapstructure:",squash"`
}

// UsesManifest 表示是否配置了外部资源清单。
func (c CoordinatorConfig) UsesManifest() bool {
	return strings.TrimSpace(c.ManifestPath) != ""
}
