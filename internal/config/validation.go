package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	switch g.StorageBackend {
	case BackendFS, BackendLevelDB:
	default:
		return newFieldError("Global.StorageBackend", "仅支持 fs/leveldb")
	}
	if g.MemoryEntries < 0 {
		return newFieldError("Global.MemoryEntries", "不能为负数")
	}
	if g.UpstreamTimeout.DurationValue() < 0 {
		return newFieldError("Global.UpstreamTimeout", "不能为负数")
	}
	if g.InstallConcurrency < 0 {
		return newFieldError("Global.InstallConcurrency", "不能为负数")
	}

	co := c.Coordinator
	if co.CacheVersion == "" && !co.UsesManifest() {
		return newFieldError("Coordinator.CacheVersion", "未配置 ManifestPath 时不能为空")
	}
	if err := validateVersionTag(co.CacheVersion); err != nil {
		return fmt.Errorf("Coordinator.CacheVersion: %w", err)
	}
	if err := validateDomain(co.AppDomain); err != nil {
		return fmt.Errorf("Coordinator.AppDomain: %w", err)
	}
	if err := validateOrigin(co.Origin); err != nil {
		return fmt.Errorf("Coordinator.Origin: %w", err)
	}
	if co.ExternalAPIHost == "" {
		return newFieldError("Coordinator.ExternalAPIHost", "不能为空")
	}
	if strings.Contains(co.ExternalAPIHost, "/") {
		return newFieldError("Coordinator.ExternalAPIHost", "只能填写主机名")
	}
	for i, p := range co.ShellPaths {
		if !strings.HasPrefix(p, "/") {
			return newFieldError(listField("Coordinator.ShellPaths", i), "必须以 / 开头")
		}
	}
	for i, p := range co.Assets {
		if strings.TrimSpace(p) == "" {
			return newFieldError(listField("Coordinator.Assets", i), "不能为空")
		}
	}

	return nil
}

// validateVersionTag 约束版本标签可以安全地作为目录名/键前缀使用。
func validateVersionTag(tag string) error {
	if tag == "" {
		return nil
	}
	if strings.ContainsAny(tag, `/\ `) || strings.ContainsRune(tag, 0) {
		return errors.New("不允许包含路径分隔符或空白")
	}
	if strings.HasPrefix(tag, ".") {
		return errors.New("不允许以 . 开头")
	}
	return nil
}

func validateDomain(domain string) error {
	if domain == "" {
		return errors.New("Domain 不能为空")
	}
	if strings.Contains(domain, "/") {
		return errors.New("Domain 不允许包含路径")
	}
	if strings.Contains(domain, " ") {
		return errors.New("Domain 不允许包含空格")
	}
	if strings.HasPrefix(domain, "http") {
		return errors.New("Domain 不应包含协议头")
	}
	return nil
}

func validateOrigin(raw string) error {
	if raw == "" {
		return errors.New("缺少 Origin 地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，Origin: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("Origin 缺少 Host: %s", raw)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return fmt.Errorf("Origin 不应包含路径: %s", raw)
	}
	return nil
}

// OriginURL 返回解析后的 Origin（假定 Validate 已经通过）。
func (c CoordinatorConfig) OriginURL() *url.URL {
	parsed, err := url.Parse(c.Origin)
	if err != nil {
		return nil
	}
	return parsed
}
