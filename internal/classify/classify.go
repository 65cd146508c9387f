// Package classify maps an intercepted request to the strategy class that
// handles it. Classification is derived from method and URL only and is never
// persisted.
package classify

import (
	"net/http"
	"net/url"
	"strings"
)

// Class 表示请求的处理类别。
type Class int

const (
	// Ignored 请求不被拦截，直接走网络且不涉及缓存。
	Ignored Class = iota
	// PassthroughExternal 外部 AI API 请求：只走网络，离线时合成 503。
	PassthroughExternal
	// AppShell 入口文档：网络优先，缓存兜底。
	AppShell
	// StaticAsset 其余 GET 请求：缓存优先。
	StaticAsset
)

func (c Class) String() string {
	switch c {
	case PassthroughExternal:
		return "passthrough_external"
	case AppShell:
		return "app_shell"
	case StaticAsset:
		return "static_asset"
	default:
		return "ignored"
	}
}

// Classifier holds the configured external host substring and the app shell
// path set.
type Classifier struct {
	ExternalHost string
	ShellPaths   []string
}

// New builds a classifier. Shell paths are matched exactly after cleaning an
// empty path to "/".
func New(externalHost string, shellPaths []string) Classifier {
	paths := make([]string, 0, len(shellPaths))
	for _, p := range shellPaths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		paths = append(paths, p)
	}
	return Classifier{ExternalHost: strings.ToLower(strings.TrimSpace(externalHost)), ShellPaths: paths}
}

// Classify evaluates, in order: external host (any method), method filter,
// app shell path, then static asset.
func (c Classifier) Classify(method, rawURL string) Class {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Ignored
	}
	if c.ExternalHost != "" && strings.Contains(strings.ToLower(u.Hostname()), strings.ToLower(c.ExternalHost)) {
		return PassthroughExternal
	}
	if !strings.EqualFold(method, http.MethodGet) {
		return Ignored
	}
	if c.isShellPath(u.Path) {
		return AppShell
	}
	return StaticAsset
}

func (c Classifier) isShellPath(p string) bool {
	if p == "" {
		p = "/"
	}
	for _, shell := range c.ShellPaths {
		if p == shell {
			return true
		}
	}
	return false
}
