package server

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ErrHostMissing 表示请求没有可用的 Host。
var ErrHostMissing = errors.New("request host missing")

// HostRouter 将 Host + URI 还原成应用原本请求的绝对 URL：
// AppDomain 上的请求按 Origin 解析，其余 Host 视为外部 https 目标（例如 AI API）。
type HostRouter struct {
	appHost string
	origin  *url.URL
}

// NewHostRouter 在启动阶段构建一次并复用。
func NewHostRouter(appDomain string, origin *url.URL) (*HostRouter, error) {
	host := normalizeDomain(appDomain)
	if host == "" {
		return nil, fmt.Errorf("invalid app domain %q", appDomain)
	}
	if origin == nil || origin.Host == "" {
		return nil, errors.New("origin is required")
	}
	return &HostRouter{appHost: host, origin: origin}, nil
}

// IsApp reports whether rawHost addresses the application itself.
func (r *HostRouter) IsApp(rawHost string) bool {
	host, _ := normalizeHost(rawHost)
	return host != "" && host == r.appHost
}

// Target 返回请求对应的绝对 URL，requestURI 为 path + query。
func (r *HostRouter) Target(rawHost, requestURI string) (string, error) {
	host, _ := normalizeHost(rawHost)
	if host == "" {
		return "", ErrHostMissing
	}
	ref, err := url.ParseRequestURI(requestURI)
	if err != nil {
		return "", fmt.Errorf("invalid request uri %q: %w", requestURI, err)
	}
	if host == r.appHost {
		return r.origin.ResolveReference(ref).String(), nil
	}
	target := &url.URL{Scheme: "https", Host: host, Path: ref.Path, RawPath: ref.RawPath, RawQuery: ref.RawQuery}
	return target.String(), nil
}

func normalizeDomain(domain string) string {
	host, _ := normalizeHost(domain)
	return host
}

func normalizeHost(raw string) (string, int) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0
	}

	host := raw
	port := 0

	if strings.Contains(raw, ":") {
		if h, p, err := net.SplitHostPort(raw); err == nil {
			host = h
			if parsedPort, err := strconv.Atoi(p); err == nil {
				port = parsedPort
			}
		} else if idx := strings.LastIndex(raw, ":"); idx > -1 && strings.Count(raw[idx+1:], ":") == 0 {
			if parsedPort, err := strconv.Atoi(raw[idx+1:]); err == nil {
				host = raw[:idx]
				port = parsedPort
			}
		}
	}

	host = strings.TrimSuffix(host, ".")
	host = strings.ToLower(host)
	return host, port
}
