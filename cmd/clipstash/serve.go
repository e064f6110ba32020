package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipstash/internal/capture"
	"go.klb.dev/clipstash/internal/hub"
	"go.klb.dev/clipstash/internal/ingest"
	"go.klb.dev/clipstash/internal/ipc"
	"go.klb.dev/clipstash/internal/screenshot"
	"go.klb.dev/clipstash/internal/server"
	"go.klb.dev/clipstash/internal/settings"
	"go.klb.dev/clipstash/internal/store"
	"go.klb.dev/clipstash/internal/thumb"
	"go.klb.dev/clipstash/internal/watcher"
)

func newServeCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the clipboard history daemon",
		Long: `Starts the clipstash daemon: records clipboard activity into the
history database, serves client requests over a Unix socket (and optionally
TCP), and broadcasts changes to connected clients.

Config file search order:
  /etc/clipstash/clipstash.toml
  $HOME/.config/clipstash/clipstash.toml
  path supplied via --config

Precedence (lowest → highest): defaults → config file → CLIPSTASH_* env vars → flags`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runServe(v) },
	}

	f := cmd.Flags()
	f.String("addr", "", "TCP listen address (empty = unix socket only)")
	f.String("token", "", "shared secret for TCP clients (empty = no auth, no encryption)")
	f.String("data-dir", "", "state directory for database and settings (default: OS config dir)")
	f.Bool("no-capture", false, "disable local clipboard monitoring (serve ingested events only)")
	f.String("screenshot-cmd", "", "screenshot tool argv, space-separated; output path is appended")
	f.Duration("watch-interval", watcher.DefaultInterval, "database change poll interval")
	f.Int("thumb-workers", thumb.DefaultWorkers, "thumbnail worker count")
	f.Int("thumb-max-dim", thumb.DefaultMaxDim, "thumbnail longest-side pixel bound")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runServe(v *viper.Viper) error {
	setupLogging(v)

	dir, err := dataDir(v)
	if err != nil {
		return err
	}
	addr := v.GetString("addr")
	token := v.GetString("token")

	slog.Info("clipstash starting",
		"version", Version,
		"data_dir", dir,
		"addr", addr,
		"encrypted", token != "",
	)

	dbPath := filepath.Join(dir, "history.db")
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// The gateway serializes all access; extra pool connections would only
	// fight over the SQLite write lock.
	db.SetMaxOpenConns(1)

	if err := store.NewMigrationRunner(db).Run(); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	st, err := store.New(db)
	if err != nil {
		return err
	}
	gw := store.NewGateway(st)
	defer gw.Close()

	cfg, err := settings.Open(filepath.Join(dir, "settings.json"))
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}

	thumbs := thumb.NewPool(gw, v.GetInt("thumb-workers"), v.GetInt("thumb-max-dim"))
	pipeline := ingest.New(gw, thumbs, cfg)
	h := hub.New()

	var shot *screenshot.Capturer
	if cmdline := v.GetString("screenshot-cmd"); cmdline != "" {
		shot = screenshot.New(strings.Fields(cmdline), 0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(gw, cfg, pipeline, h, server.Options{
		Token:           token,
		ThumbMaxDim:     v.GetInt("thumb-max-dim"),
		Screenshot:      shot,
		RequestShutdown: stop,
	})
	if err != nil {
		return err
	}

	w := watcher.New(gw, h, srv, v.GetDuration("watch-interval"))
	go w.Run(ctx)

	if !v.GetBool("no-capture") {
		mon, err := capture.New(pipeline)
		if err != nil {
			slog.Warn("local clipboard capture unavailable", "err", err)
		} else {
			go mon.Run(ctx)
		}
	}

	ipcLn, err := ipc.Listen()
	if err != nil {
		return fmt.Errorf("ipc socket: %w", err)
	}
	slog.Info("ipc socket listening", "path", ipc.SocketPath())
	go srv.ServeLocal(ctx, ipcLn)

	if addr != "" {
		tcpLn, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		slog.Info("tcp listening", "addr", tcpLn.Addr())
		go srv.ServeTCP(ctx, tcpLn)
	}

	<-ctx.Done()
	slog.Info("shutting down")

	// Let in-flight thumbnail work land before the gateway closes.
	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := thumbs.Shutdown(drainCtx); err != nil {
		slog.Warn("thumbnail pool drain timed out", "err", err)
	}
	return nil
}
