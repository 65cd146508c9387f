// Package manifest loads the versioned list of essential assets that the
// install phase seeds into a fresh cache generation.
package manifest

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest 对应宿主应用随构建产出的 YAML 文件。
type Manifest struct {
	Version string   `yaml:"version"`
	Assets  []string `yaml:"assets"`
}

// Load reads and normalizes a manifest file.
func Load(path string) (Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	m, err := Parse(b)
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes YAML, trims entries, drops duplicates and rejects empty ones.
func Parse(b []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return Manifest{}, err
	}
	m.Version = strings.TrimSpace(m.Version)
	assets, err := normalize(m.Assets)
	if err != nil {
		return Manifest{}, err
	}
	m.Assets = assets
	return m, nil
}

// Merge 追加 extra 中尚未出现的资源，保持原有顺序。
func (m Manifest) Merge(extra []string) Manifest {
	seen := make(map[string]struct{}, len(m.Assets))
	out := Manifest{Version: m.Version, Assets: make([]string, 0, len(m.Assets)+len(extra))}
	for _, a := range append(append([]string(nil), m.Assets...), extra...) {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out.Assets = append(out.Assets, a)
	}
	return out
}

// Resolve 把相对路径解析为 origin 下的绝对 URL，已是绝对地址的条目原样保留。
func (m Manifest) Resolve(origin *url.URL) ([]string, error) {
	if origin == nil {
		return nil, errors.New("origin required")
	}
	out := make([]string, 0, len(m.Assets))
	seen := make(map[string]struct{}, len(m.Assets))
	for i, a := range m.Assets {
		ref, err := url.Parse(a)
		if err != nil {
			return nil, fmt.Errorf("assets[%d]: %w", i, err)
		}
		if !ref.IsAbs() {
			ref = origin.ResolveReference(ref)
		}
		if ref.Scheme != "http" && ref.Scheme != "https" {
			return nil, fmt.Errorf("assets[%d]: unsupported scheme %q", i, ref.Scheme)
		}
		abs := ref.String()
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	}
	return out, nil
}

func normalize(assets []string) ([]string, error) {
	out := make([]string, 0, len(assets))
	seen := make(map[string]struct{}, len(assets))
	for i, a := range assets {
		a = strings.TrimSpace(a)
		if a == "" {
			return nil, fmt.Errorf("assets[%d]: empty entry", i)
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out, nil
}
