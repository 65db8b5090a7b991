// Command rfidctl manages and monitors CL7206C2-class UHF RFID readers.
//
// Usage:
//
//	rfidctl [flags]
//
// Flags:
//
//	-config string    Configuration file path (YAML)
//	-addr string      Reader address, overrides the config file
//	-log-level string Log level: debug, info, warn, error (default "info")
//	-capture string   Protocol capture file (.rlog)
//	-interactive      Enable the interactive command prompt
//	-discover         Discover readers on the local network and exit
//	-inventory        Start inventory immediately and print tags
//
// Examples:
//
//	# Find readers on the LAN
//	rfidctl -discover
//
//	# Stream tags from a reader
//	rfidctl -addr 192.168.1.116:9090 -inventory
//
//	# Interactive management session with protocol capture
//	rfidctl -addr 192.168.1.116:9090 -interactive -capture session.rlog
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/malike-rnd/cl7206c2-rfid/pkg/config"
	"github.com/malike-rnd/cl7206c2-rfid/pkg/discovery"
	"github.com/malike-rnd/cl7206c2-rfid/pkg/inventory"
	"github.com/malike-rnd/cl7206c2-rfid/pkg/log"
	"github.com/malike-rnd/cl7206c2-rfid/pkg/reader"
	"github.com/malike-rnd/cl7206c2-rfid/pkg/session"
)

func main() {
	var (
		configFile  = flag.String("config", "", "configuration file path")
		addr        = flag.String("addr", "", "reader address (host:port), overrides config")
		logLevel    = flag.String("log-level", "info", "log level: debug, info, warn, error")
		captureFile = flag.String("capture", "", "protocol capture file (.rlog)")
		interactive = flag.Bool("interactive", false, "interactive command prompt")
		discover    = flag.Bool("discover", false, "discover readers and exit")
		runInv      = flag.Bool("inventory", false, "start inventory and print tags")
	)
	flag.Parse()

	if err := run(*configFile, *addr, *logLevel, *captureFile, *interactive, *discover, *runInv); err != nil {
		fmt.Fprintf(os.Stderr, "rfidctl: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, addr, logLevel, captureFile string, interactive, discover, runInv bool) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Reader.Addr = addr
	}
	if captureFile != "" {
		cfg.Log.CaptureFile = captureFile
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	if discover {
		return runDiscover(logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	capture, closeCapture, err := buildCapture(cfg.Log, logger)
	if err != nil {
		return err
	}
	defer closeCapture()

	sessCfg := cfg.SessionConfig()
	sessCfg.Logger = capture

	logger.Info("connecting", "addr", sessCfg.Addr)
	sess, err := session.Dial(ctx, sessCfg)
	if err != nil {
		return err
	}
	defer sess.Close()
	logger.Info("connected", "session", sess.ID(), "remote", sess.RemoteAddr())

	invCfg := cfg.InventoryConfig()
	invCfg.Logger = capture
	invCfg.SessionID = sess.ID()
	ctrl := inventory.New(sess, invCfg)

	cancelTags := sess.OnUnsolicited(ctrl.HandleFrame)
	defer cancelTags()
	sess.SetReplay(func(w session.FrameWriter) error { return ctrl.Replay(w) })

	rdr := reader.New(sess)

	if interactive {
		return runInteractive(ctx, logger, sess, rdr, ctrl)
	}

	if runInv {
		if err := ctrl.Start(); err != nil {
			return err
		}
		defer ctrl.Stop()
	}

	return streamTags(ctx, logger, ctrl)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// buildCapture assembles the protocol capture pipeline from config.
func buildCapture(cfg config.LogConfig, logger *slog.Logger) (log.Logger, func(), error) {
	var sinks []log.Logger
	closeFn := func() {}

	if cfg.CaptureFile != "" {
		fl, err := log.NewFileLogger(cfg.CaptureFile)
		if err != nil {
			return nil, nil, fmt.Errorf("open capture file: %w", err)
		}
		sinks = append(sinks, fl)
		closeFn = func() { fl.Close() }
	}
	if cfg.CaptureConsole {
		sinks = append(sinks, log.NewSlogAdapter(logger))
	}

	switch len(sinks) {
	case 0:
		return log.NoopLogger{}, closeFn, nil
	case 1:
		return sinks[0], closeFn, nil
	default:
		return log.NewMultiLogger(sinks...), closeFn, nil
	}
}

func runDiscover(logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	logger.Info("probing for readers", "group", discovery.MulticastGroup)
	found, err := discovery.Discover(ctx, nil, 0)
	if err != nil {
		return err
	}

	if len(found) == 0 {
		fmt.Println("no readers found")
		return nil
	}
	for _, a := range found {
		state := "inactive"
		if a.Active {
			state = "active"
		}
		fmt.Printf("%-18s %-18s %s dhcp=%v mode=%s net=%s\n",
			a.Addr(), a.MAC, a.Model, a.DHCP, a.Mode, state)
	}
	return nil
}

// streamTags prints accepted tag records until the context ends.
func streamTags(ctx context.Context, logger *slog.Logger, ctrl *inventory.Controller) error {
	for {
		select {
		case <-ctx.Done():
			if n := ctrl.Dropped(); n > 0 {
				logger.Warn("tag records dropped", "count", n)
			}
			return nil
		case rec := <-ctrl.Events():
			fmt.Printf("%s  epc=%X ant=%d rssi=%d\n",
				rec.Seen.Format(time.RFC3339), rec.EPC, rec.PhysicalAntenna(), rec.RSSI)
		}
	}
}
