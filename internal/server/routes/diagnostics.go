package routes

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/groovecache/groovecache/internal/lifecycle"
	"github.com/groovecache/groovecache/internal/server"
)

// RegisterDiagnosticsRoutes 暴露 /-/ 下的诊断与运维接口：状态查询、手动触发
// install/activate、删除当前缓存代中的单个条目。
func RegisterDiagnosticsRoutes(app *fiber.App, interceptor server.Interceptor) {
	if app == nil || interceptor == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		st, err := interceptor.Status(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "status_unavailable"})
		}
		return c.JSON(st)
	})

	app.Post("/-/lifecycle/install", func(c fiber.Ctx) error {
		report, err := interceptor.OnInstall(c.Context())
		if err != nil {
			return renderTransitionError(c, err)
		}
		return c.JSON(encodeInstall(report))
	})

	app.Post("/-/lifecycle/activate", func(c fiber.Ctx) error {
		report, err := interceptor.OnActivate(c.Context())
		if err != nil {
			return renderTransitionError(c, err)
		}
		return c.JSON(encodeActivate(report))
	})

	app.Delete("/-/cache", func(c fiber.Ctx) error {
		target := strings.TrimSpace(c.Query("url"))
		if target == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "url_required"})
		}
		if err := interceptor.EvictEntry(c.Context(), target); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "evict_failed"})
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func renderTransitionError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, lifecycle.ErrTransitionInProgress):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "transition_in_progress"})
	case errors.Is(err, lifecycle.ErrNotInstalled):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "not_installed"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "transition_failed"})
	}
}

type failurePayload struct {
	Target string `json:"target"`
	Error  string `json:"error"`
}

type installPayload struct {
	Version  string           `json:"version"`
	Cached   int              `json:"cached"`
	Failures []failurePayload `json:"failures"`
}

type activatePayload struct {
	Version  string           `json:"version"`
	Deleted  []string         `json:"deleted"`
	Failures []failurePayload `json:"failures"`
}

func encodeInstall(r lifecycle.InstallReport) installPayload {
	out := installPayload{Version: r.Version, Cached: r.Cached, Failures: []failurePayload{}}
	for _, f := range r.Failures {
		out.Failures = append(out.Failures, failurePayload{Target: f.URL, Error: f.Err.Error()})
	}
	return out
}

func encodeActivate(r lifecycle.ActivateReport) activatePayload {
	out := activatePayload{Version: r.Version, Deleted: append([]string{}, r.Deleted...), Failures: []failurePayload{}}
	for _, f := range r.Failures {
		out.Failures = append(out.Failures, failurePayload{Target: f.Version, Error: f.Err.Error()})
	}
	return out
}
