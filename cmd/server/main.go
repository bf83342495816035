package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"datetime_nexus/internal/server"
	"datetime_nexus/internal/service/web"
	"datetime_nexus/internal/shared/config"
	"datetime_nexus/internal/shared/logger"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run is the whole server process; it returns the exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("server", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configDir := flags.String("configdir", "configs", "Path to config directory")
	host := flags.String("host", "", "Listen host, overrides the config file")
	port := flags.Int("port", -1, "Listen port, overrides the config file")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	iniPath := filepath.Join(*configDir, "datetime.ini")

	// 1. 加载 .ini 配置
	cfg, err := config.Load(iniPath)
	if err != nil {
		// Use standard fmt before logger is initialized.
		fmt.Fprintf(stderr, "Fatal: Failed to load config file '%s': %v\n", iniPath, err)
		return 1
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *port >= 0 {
		cfg.Port = *port
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "Fatal: Invalid configuration: %v\n", err)
		return 1
	}

	// 1.1 初始化日志系统
	if err := logger.InitWithWriter(cfg.LogConf, stderr); err != nil {
		fmt.Fprintf(stderr, "Fatal: Failed to initialize logger: %v\n", err)
		return 1
	}

	// 2. 状态推送 (可选)
	var hub *web.Hub
	var reporter server.Reporter
	if cfg.WebPort > 0 {
		hub = web.NewHub()
		reporter = hub
	}

	// 3. 创建并运行服务器
	srv := server.New(cfg, reporter)
	addr, err := srv.Listen()
	if err != nil {
		logger.Error().Err(err).Msg("Server bootstrap failed")
		return 1
	}

	var wg sync.WaitGroup
	var statusServer *http.Server
	if hub != nil {
		go hub.Run()
		statusServer, err = web.StartServer(&wg, cfg.Host, cfg.WebPort, hub, srv)
		if err != nil {
			logger.Warn().Err(err).Msg("Status feed is disabled.")
		}
	}

	watcher := server.NewConsoleWatcher(stdin, cfg.QuitKeyword)
	go func() {
		if err := watcher.Run(srv.Stop); err != nil {
			logger.Warn().Err(err).Msg("Console watcher stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("Shutting down server...")
			srv.Stop()
		case <-srv.Done():
		}
	}()

	logger.Info().Stringer("addr", addr).Msgf("Type '%s' and press Enter to stop the server.", cfg.QuitKeyword)
	if err := srv.Serve(); err != nil {
		logger.Error().Err(err).Msg("Accept loop failed")
		return 1
	}

	if hub != nil {
		hub.BroadcastShutdown()
		if statusServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = statusServer.Shutdown(ctx)
			cancel()
		}
		hub.Stop()
		wg.Wait()
	}

	stats := srv.Stats()
	logger.Info().
		Uint64("served", stats.Served).
		Uint64("write_errors", stats.WriteErrors).
		Msg("Server stopped.")
	return 0
}
