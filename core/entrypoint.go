package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/encodeous/dvr/state"
	"github.com/encodeous/tint"
	"github.com/goccy/go-yaml"
	slogmulti "github.com/samber/slog-multi"
)

func setupDebugging(addr string) {
	if addr == "" {
		return
	}
	go func() {
		log.Println(http.ListenAndServe(addr, nil))
	}()
}

func ReadRouterConfig(cfgPath string) (*state.RouterCfg, error) {
	var cfg state.RouterCfg
	file, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, err
	}
	err = yaml.Unmarshal(file, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newLogger(cfg *state.RouterCfg, logLevel slog.Level) (*slog.Logger, io.Closer, error) {
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        logLevel,
			AddSource:    false,
			CustomPrefix: cfg.Id.String(),
			TimeFormat:   "15:04:05",
		}))

	var closer io.Closer = io.NopCloser(nil)
	if cfg.LogPath != "" {
		err := os.MkdirAll(path.Dir(cfg.LogPath), 0700)
		if err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(cfg.LogPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: logLevel}))
		closer = f
	}
	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

// Start runs a router process until it is interrupted, the console exits or a fatal error occurs.
func Start(cfg state.RouterCfg, logLevel slog.Level, console bool) error {
	state.ExpandRouterConfig(&cfg)
	if err := state.RouterConfigValidator(&cfg); err != nil {
		return err
	}
	neighs, err := state.NewNeighbourTable()
	if err != nil {
		return err
	}
	if cfg.Topology != "" {
		topo, err := state.ReadTopology(cfg.Topology)
		if err != nil {
			return fmt.Errorf("failed to read topology: %w", err)
		}
		neighs, err = topo.Neighbours(cfg.Id, cfg.Locator())
		if err != nil {
			return err
		}
	}
	var static []state.StaticRoute
	if cfg.Static() {
		static, err = state.ReadStaticRoutes(cfg.StaticRoutes)
		if err != nil {
			return fmt.Errorf("failed to read static routes: %w", err)
		}
	}

	logger, logFile, err := newLogger(&cfg, logLevel)
	if err != nil {
		return err
	}
	defer logFile.Close()

	self := cfg.Self()
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(self.Addr))
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", self, err)
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(context.Canceled)

	env := &state.Env{
		RouterCfg: cfg,
		Context:   ctx,
		Cancel:    cancel,
		Log:       logger,
	}
	r := NewRouter(env, neighs, conn)
	if err := r.LoadStaticRoutes(static); err != nil {
		r.Close()
		_ = conn.Close()
		return err
	}

	setupDebugging(cfg.DebugAddr)

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)
	go func() {
		select {
		case _ = <-c:
			cancel(errors.New("received shutdown signal"))
		case <-ctx.Done():
			return
		}
	}()

	if console {
		go func() {
			err := r.RunConsole(ctx, os.Stdin, os.Stdout)
			if errors.Is(err, ErrQuit) {
				cancel(err)
			}
		}()
	}

	logger.Info("router has been initialized. To gracefully exit, type quit, send SIGINT or Ctrl+C.")
	err = r.Run()
	if err != nil {
		logger.Error("router failed", "error", err)
	}
	return err
}
