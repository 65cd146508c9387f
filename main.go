package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/groovecache/groovecache/internal/config"
	"github.com/groovecache/groovecache/internal/lifecycle"
	"github.com/groovecache/groovecache/internal/logging"
	"github.com/groovecache/groovecache/internal/server"
	"github.com/groovecache/groovecache/internal/server/routes"
	"github.com/groovecache/groovecache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	plan, err := resolveAssets(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "加载资源清单失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["cache_version"] = plan.version
		fields["assets"] = len(plan.assets)
		fields["backend"] = cfg.Global.StorageBackend
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 资源清单 → 缓存 → 网络 → 生命周期（install → activate）→ Fiber server。
	// 激活完成后才开始监听，保证首个请求即被拦截。
	coord, err := buildCoordinator(cfg, plan, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化协调器失败: %v\n", err)
		return 1
	}
	defer coord.close()

	if err := coord.bringUp(context.Background()); err != nil {
		fmt.Fprintf(stdErr, "生命周期启动失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["cache_version"] = plan.version
	fields["listen_port"] = cfg.Global.ListenPort
	fields["backend"] = cfg.Global.StorageBackend
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, coord.controller, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("groovecache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 GROOVECACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置与资源清单后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("GROOVECACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func newHTTPApp(cfg *config.Config, controller *lifecycle.Controller, logger *logrus.Logger) (*fiber.App, error) {
	router, err := server.NewHostRouter(cfg.Coordinator.AppDomain, cfg.Coordinator.OriginURL())
	if err != nil {
		return nil, err
	}
	app, err := server.NewApp(server.AppOptions{
		Logger:      logger,
		Router:      router,
		Interceptor: controller,
		ListenPort:  cfg.Global.ListenPort,
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterDiagnosticsRoutes(app, controller)
	return app, nil
}

func startHTTPServer(cfg *config.Config, controller *lifecycle.Controller, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := newHTTPApp(cfg, controller, logger)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	err = app.Listen(fmt.Sprintf(":%d", port))
	controller.Wait()
	return err
}
