package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供请求方法、地址、分类、缓存代与响应来源字段，供拦截日志复用。
func RequestFields(method, url, class, version, source string) logrus.Fields {
	return logrus.Fields{
		"method":  method,
		"url":     url,
		"class":   class,
		"version": version,
		"source":  source,
	}
}

// LifecycleFields 描述生命周期阶段切换日志的公共字段。
func LifecycleFields(phase, version string) logrus.Fields {
	return logrus.Fields{
		"action":  "lifecycle",
		"phase":   phase,
		"version": version,
	}
}
