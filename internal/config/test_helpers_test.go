package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// minimalConfig 只包含通过校验所需的字段，测试在其后追加要覆盖的键。
const minimalConfig = `
StoragePath = "./data"
CacheVersion = "v1"
AppDomain = "groove.local"
Origin = "https://groove.example"
`

func testConfigPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join("testdata", name)
}

// writeTempConfig 将 minimalConfig 与 extra 拼接后写入临时 config.toml。
func writeTempConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	content := strings.TrimSpace(minimalConfig) + "\n" + strings.TrimSpace(extra) + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}
