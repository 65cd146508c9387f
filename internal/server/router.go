package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/groovecache/groovecache/internal/fetch"
	"github.com/groovecache/groovecache/internal/lifecycle"
)

// Interceptor is the coordinator surface the HTTP layer drives. It allows
// injecting fakes during tests.
type Interceptor interface {
	OnInstall(ctx context.Context) (lifecycle.InstallReport, error)
	OnActivate(ctx context.Context) (lifecycle.ActivateReport, error)
	OnFetch(ctx context.Context, req *fetch.Request) (*fetch.Response, error)
	Status(ctx context.Context) (lifecycle.Status, error)
	EvictEntry(ctx context.Context, rawURL string) error
}

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger      *logrus.Logger
	Router      *HostRouter
	Interceptor Interceptor
	ListenPort  int
}

const contextKeyRequestID = "_groovecache_request_id"

// NewApp builds a Fiber application with request-id middleware, a catch-all
// intercept handler and structured error responses.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Router == nil {
		return nil, errors.New("host router is required")
	}
	if opts.Interceptor == nil {
		return nil, errors.New("interceptor is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	app.All("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		return intercept(c, opts)
	})

	return app, nil
}

// requestIDMiddleware 为每个请求生成 X-Request-ID。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

func intercept(c fiber.Ctx, opts AppOptions) error {
	requestID := RequestID(c)
	rawHost := strings.TrimSpace(getHostHeader(c))
	target, err := opts.Router.Target(rawHost, string(c.Request().RequestURI()))
	if err != nil {
		opts.Logger.WithError(err).WithFields(logrus.Fields{
			"action":     "host_lookup",
			"host":       rawHost,
			"port":       opts.ListenPort,
			"request_id": requestID,
		}).Warn("request target unresolved")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "target_unresolved"})
	}

	req := &fetch.Request{
		Method: c.Method(),
		URL:    target,
		Header: fiberHeadersAsHTTP(c),
		Body:   append([]byte(nil), c.Body()...),
	}
	resp, err := opts.Interceptor.OnFetch(c.Context(), req)
	if err != nil {
		code, status := "upstream_failed", fiber.StatusBadGateway
		if errors.Is(err, lifecycle.ErrStrategyPanic) {
			code, status = "strategy_panic", fiber.StatusInternalServerError
		}
		opts.Logger.WithError(err).WithFields(logrus.Fields{
			"action":     "intercept",
			"method":     req.Method,
			"url":        req.URL,
			"request_id": requestID,
		}).Error(code)
		return c.Status(status).JSON(fiber.Map{"error": code})
	}

	copyResponseHeaders(c, resp.Header)
	c.Status(resp.Status)
	return c.Send(resp.Body)
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		name := string(key)
		if strings.EqualFold(name, fiber.HeaderHost) || fetch.IsHopByHopHeader(name) {
			return
		}
		header.Add(name, string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if fetch.IsHopByHopHeader(key) || strings.EqualFold(key, fiber.HeaderContentLength) {
			continue
		}
		for _, value := range values {
			c.Response().Header.Add(key, value)
		}
	}
}

func getHostHeader(c fiber.Ctx) string {
	if raw := c.Request().Header.Peek(fiber.HeaderHost); len(raw) > 0 {
		return string(raw)
	}
	return c.Hostname()
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
