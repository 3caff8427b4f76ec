package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/blobcache/internal/cache"
	"github.com/any-hub/blobcache/internal/config"
	"github.com/any-hub/blobcache/internal/logging"
	"github.com/any-hub/blobcache/internal/server"
	"github.com/any-hub/blobcache/internal/server/routes"
	"github.com/any-hub/blobcache/internal/storage"
	"github.com/any-hub/blobcache/internal/version"
)

const shutdownTimeout = 30 * time.Second

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

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["driver"] = cfg.Global.Driver
		fields["folder"] = cfg.Global.CacheFolder
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 存储驱动 → 缓存引擎（后台初始化）→ 定时清理 → Fiber server。
	store, err := buildCache(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["driver"] = cfg.Global.Driver
	fields["listen_port"] = cfg.Global.ListenPort
	fields["default_ttl"] = cfg.Global.DefaultTTL.DurationValue().String()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go store.RunSweeper(ctx, cfg.Global.SweepInterval.DurationValue())

	if err := startHTTPServer(ctx, cfg, store, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := store.Close(closeCtx); err != nil {
		logger.WithError(err).WithField("action", "shutdown").Warn("待写入队列未能在超时内完成")
	}
	return 0
}

// buildCache 按配置选择存储驱动并构建缓存引擎。
func buildCache(cfg *config.Config, logger *logrus.Logger) (*cache.Cache, error) {
	backend, err := storage.Open(cfg.Global.Driver, cfg.StorageParams())
	if err != nil {
		return nil, err
	}

	opts := cache.Options{
		Backend:    backend,
		FolderName: cfg.Global.CacheFolder,
		DefaultTTL: cfg.Global.DefaultTTL.DurationValue(),
		Logger:     logger,
	}
	if params, ok := cfg.FallbackParams(); ok {
		fallback, err := storage.Open(storage.DefaultDriverKey(), params)
		if err != nil {
			return nil, fmt.Errorf("回退目录不可用: %w", err)
		}
		opts.Fallback = fallback
	}
	return cache.New(opts)
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("blobcache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 BLOBCACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("BLOBCACHE_CONFIG")
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

// startHTTPServer 阻塞直到 ctx 结束后完成优雅关闭，或监听失败。
func startHTTPServer(ctx context.Context, cfg *config.Config, store *cache.Cache, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Store:      store,
		DefaultTTL: cfg.Global.DefaultTTL.DurationValue(),
	})
	if err != nil {
		return err
	}
	routes.RegisterDiagnosticRoutes(app, store, cfg.Global.Driver)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.WithError(err).WithField("action", "shutdown").Warn("Fiber 服务关闭失败")
		}
	}()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	if err := app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true}); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
