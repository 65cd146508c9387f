package lifecycle

import (
	"errors"
	"strings"
)

// VersionRegistry 持有当前缓存代的版本标签。标签在构造时确定，运行期不可修改；
// 新版本意味着重新部署并构造新的 Controller。
type VersionRegistry struct {
	current string
}

// NewVersionRegistry 校验并固定当前版本。
func NewVersionRegistry(tag string) (*VersionRegistry, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, errors.New("lifecycle: version tag required")
	}
	return &VersionRegistry{current: tag}, nil
}

// Current returns the current store version.
func (r *VersionRegistry) Current() string {
	return r.current
}

// Superseded reports whether a persisted store belongs to an older generation.
func (r *VersionRegistry) Superseded(name string) bool {
	return name != r.current
}
