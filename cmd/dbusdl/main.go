// Command dbusdl runs the D-Bus download daemon: it owns the
// de.tahifi.DBusDL well-known name, exports de.tahifi.FileTransfer at
// /de/tahifi/DBusDL, and drives the worker/registry/bus-adapter stack
// defined in the sibling internal packages. Structured the way
// _examples/warpdl-warpdl/cmd/warpdl/main.go drives its own cli.App,
// trimmed to this daemon's single mode of operation (no subcommands).
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/TplusA/DBusDL/internal/busadapter"
	"github.com/TplusA/DBusDL/internal/daemonize"
	"github.com/TplusA/DBusDL/internal/events"
	"github.com/TplusA/DBusDL/internal/fetcher"
	"github.com/TplusA/DBusDL/internal/registry"
	"github.com/TplusA/DBusDL/internal/supervisor"
	"github.com/TplusA/DBusDL/pkg/logger"
)

// version is overridden at build time via -ldflags.
var version = "dev"

const defaultDownloadDir = "/tmp/downloads"

var foreground bool

var flags = []cli.Flag{
	cli.BoolFlag{
		Name:        "fg",
		Usage:       "run in the foreground instead of daemonizing",
		Destination: &foreground,
	},
	cli.StringFlag{
		Name:  "tmpdir",
		Usage: "override the download directory",
		Value: defaultDownloadDir,
	},
	cli.StringFlag{
		Name:  "download-dir",
		Usage: "alias for --tmpdir",
	},
}

// resolveDownloadDir reconciles --tmpdir and its --download-dir alias.
// Each flag is backed by its own cli.StringFlag.Value (rather than a
// shared Destination, which urfave/cli would apply twice at
// registration time and leave set to whichever flag registers last,
// clobbering the other's default); --download-dir wins when the
// caller actually sets it, otherwise --tmpdir's value (defaulted to
// defaultDownloadDir) applies.
func resolveDownloadDir(ctx *cli.Context) string {
	if ctx.IsSet("download-dir") {
		return ctx.String("download-dir")
	}
	return ctx.String("tmpdir")
}

func run(ctx *cli.Context) error {
	downloadDir := resolveDownloadDir(ctx)

	if !foreground && !daemonize.IsChild() {
		// On unix, Daemonize re-execs a detached child and then calls
		// os.Exit in this (the parent) process; it only returns here
		// with a non-nil error. On Windows, which does not support
		// backgrounding, it always returns an error, so --fg is needed
		// there.
		if err := daemonize.Daemonize(); err != nil {
			return cli.NewExitError(fmt.Sprintf("dbusdl: %s", err), 1)
		}
	}

	instanceID := uuid.New().String()

	lg := newForegroundOrSyslogLogger(foreground, instanceID)
	defer lg.Close()
	lg.Info("starting dbusdl %s, instance %s, download dir %q", version, instanceID, downloadDir)

	fs := afero.NewOsFs()
	reg := registry.New(fs, downloadDir, true, lg)
	ch := events.NewChannel()
	fetch := fetcher.New()

	sup := supervisor.New(ch, reg, fetch, fs, lg, fetcher.Options{})
	sup.Start()

	conn, err := dbus.SessionBus()
	if err != nil {
		_ = sup.Stop()
		return cli.NewExitError(fmt.Sprintf("dbusdl: connecting to session bus: %s", err), 1)
	}

	adapter := busadapter.New(conn, reg, ch, lg)
	if err := adapter.Export(); err != nil {
		_ = sup.Stop()
		return cli.NewExitError(fmt.Sprintf("dbusdl: %s", err), 1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		lg.Info("received signal %s, shutting down", s)
		adapter.Stop()
	}()

	adapter.Run()

	if err := sup.Stop(); err != nil {
		lg.Error("error during shutdown: %v", err)
	}
	_ = adapter.Close()
	return nil
}

// newForegroundOrSyslogLogger picks the console logger when running in
// the foreground, and syslog otherwise, matching the original
// implementation's msg_info/msg_error split between stdout and syslog
// once backgrounded.
func newForegroundOrSyslogLogger(foreground bool, instanceID string) logger.Logger {
	if !foreground {
		if sl, err := logger.NewSyslogLogger("dbusdl"); err == nil {
			return sl
		}
		// Falls through to the console logger if syslog is unavailable
		// (e.g. this platform has no syslog daemon); this should not
		// itself be fatal for a process that has already detached.
	}

	flags := log.Ltime
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		flags = log.Ldate | log.Ltime
	}
	return logger.NewStandardLogger(log.New(os.Stdout, "["+instanceID[:8]+"] ", flags))
}

func main() {
	app := cli.App{
		Name:      "dbusdl",
		Usage:     "session-bus download daemon",
		UsageText: "dbusdl [options]",
		Version:   version,
		Flags:     flags,
		Action:    run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "dbusdl: %s\n", err)
		os.Exit(1)
	}
}
