package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/malike-rnd/cl7206c2-rfid/pkg/inventory"
	"github.com/malike-rnd/cl7206c2-rfid/pkg/protocol"
	"github.com/malike-rnd/cl7206c2-rfid/pkg/reader"
	"github.com/malike-rnd/cl7206c2-rfid/pkg/session"
)

// commandTimeout bounds every request issued from the prompt.
const commandTimeout = 5 * time.Second

// prompt is the interactive command loop for a connected reader.
type prompt struct {
	logger *slog.Logger
	sess   *session.Session
	rdr    *reader.Reader
	ctrl   *inventory.Controller
	rl     *readline.Instance
}

func runInteractive(ctx context.Context, logger *slog.Logger, sess *session.Session, rdr *reader.Reader, ctrl *inventory.Controller) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "rfid> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("create readline: %w", err)
	}
	defer rl.Close()

	p := &prompt{logger: logger, sess: sess, rdr: rdr, ctrl: ctrl, rl: rl}

	// Stream accepted tags to the prompt's stdout so they interleave
	// cleanly with command input.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case rec := <-ctrl.Events():
				fmt.Fprintf(rl.Stdout(), "tag epc=%X ant=%d rssi=%d\n",
					rec.EPC, rec.PhysicalAntenna(), rec.RSSI)
			}
		}
	}()

	p.printHelp()
	return p.run(ctx)
}

func (p *prompt) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := p.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(p.rl.Stdout(), "Exiting...")
			return nil
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		cctx, cancel := context.WithTimeout(ctx, commandTimeout)
		p.dispatch(cctx, cmd, args)
		cancel()
	}
}

func (p *prompt) dispatch(ctx context.Context, cmd string, args []string) {
	out := p.rl.Stdout()

	switch cmd {
	case "help", "?":
		p.printHelp()

	case "info", "i":
		p.cmdInfo(ctx)

	case "net":
		p.cmdNet(ctx, args)

	case "mac":
		p.cmdMAC(ctx, args)

	case "clock":
		p.cmdClock(ctx, args)

	case "gpi":
		p.cmdGPI(ctx)

	case "gpo":
		p.cmdGPO(ctx, args)

	case "antenna", "ant":
		p.cmdAntenna(ctx, args)

	case "power":
		p.cmdPower(ctx, args)

	case "start":
		if err := p.ctrl.Start(); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return
		}
		fmt.Fprintln(out, "inventory started")

	case "stop":
		if err := p.ctrl.Stop(); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return
		}
		fmt.Fprintln(out, "inventory stopped")

	case "stored":
		p.cmdStored(ctx)

	case "clear-stored":
		if err := p.rdr.ClearStoredTags(ctx); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return
		}
		fmt.Fprintln(out, "stored tags cleared")

	case "cache":
		p.cmdCache(ctx, args)

	case "relay":
		p.cmdRelay(ctx, args)

	case "dhcp":
		p.cmdDHCP(ctx, args)

	case "upgrade":
		p.cmdUpgrade(ctx, args)

	case "status", "s":
		p.cmdStatus()

	case "reboot":
		if err := p.rdr.Reboot(); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return
		}
		fmt.Fprintln(out, "reboot sent, reader will drop the connection")

	case "factory-reset":
		if err := p.rdr.FactoryReset(); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return
		}
		fmt.Fprintln(out, "factory reset sent")

	case "quit", "exit", "q":
		fmt.Fprintln(out, "Exiting...")
		p.sess.Close()
		os.Exit(0)

	default:
		fmt.Fprintf(out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
}

func (p *prompt) printHelp() {
	fmt.Fprintln(p.rl.Stdout(), `
RFID Reader Commands:
  Device:
    info                     - Show reader model, name and uptime
    net [ip mask gw]         - Show or set the network configuration
    mac [aa:bb:cc:dd:ee:ff]  - Show or set the MAC address
    clock [sync]             - Show reader clock, 'sync' sets it to host time
    dhcp <on|off>            - Enable or disable DHCP
    reboot                   - Reboot the reader
    factory-reset            - Restore factory defaults

  IO:
    gpi                      - Show GPI input states
    gpo <pin> <0|1>          - Drive a GPO output
    relay <n> <ms>           - Pulse a relay for the given milliseconds

  RF:
    antenna <n>              - Show antenna configuration
    power <n> <dBm>          - Set antenna transmit power

  Inventory:
    start                    - Start continuous inventory
    stop                     - Stop inventory
    stored                   - Fetch tags cached on the reader
    clear-stored             - Clear the reader's tag cache
    cache <on|off> [secs]    - Configure offline tag caching

  Maintenance:
    upgrade <file>           - Upload a firmware image
    status                   - Show session state
    help                     - Show this help
    quit                     - Exit`)
}

func (p *prompt) cmdInfo(ctx context.Context) {
	out := p.rl.Stdout()
	info, err := p.rdr.Info(ctx)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "model:  %s\n", info.Model)
	fmt.Fprintf(out, "name:   %s\n", info.Name)
	fmt.Fprintf(out, "uptime: %s\n", time.Duration(info.UptimeSeconds)*time.Second)
}

func (p *prompt) cmdNet(ctx context.Context, args []string) {
	out := p.rl.Stdout()
	if len(args) == 0 {
		cfg, err := p.rdr.NetworkConfig(ctx)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return
		}
		fmt.Fprintf(out, "ip:      %s\nmask:    %s\ngateway: %s\n", cfg.IP, cfg.Mask, cfg.Gateway)
		return
	}
	if len(args) != 3 {
		fmt.Fprintln(out, "usage: net <ip> <mask> <gateway>")
		return
	}
	cfg := &protocol.NetworkConfig{
		IP:      net.ParseIP(args[0]),
		Mask:    net.ParseIP(args[1]),
		Gateway: net.ParseIP(args[2]),
	}
	if cfg.IP == nil || cfg.Mask == nil || cfg.Gateway == nil {
		fmt.Fprintln(out, "invalid address")
		return
	}
	if err := p.rdr.SetNetworkConfig(ctx, cfg); err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(out, "network configuration updated")
}

func (p *prompt) cmdMAC(ctx context.Context, args []string) {
	out := p.rl.Stdout()
	if len(args) == 0 {
		mac, err := p.rdr.MAC(ctx)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return
		}
		fmt.Fprintf(out, "mac: %s\n", mac)
		return
	}
	mac, err := net.ParseMAC(args[0])
	if err != nil {
		fmt.Fprintf(out, "invalid MAC: %v\n", err)
		return
	}
	if err := p.rdr.SetMAC(ctx, mac); err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(out, "MAC address updated")
}

func (p *prompt) cmdClock(ctx context.Context, args []string) {
	out := p.rl.Stdout()
	if len(args) > 0 && args[0] == "sync" {
		if err := p.rdr.SetClock(ctx, time.Now()); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return
		}
		fmt.Fprintln(out, "clock synchronized to host time")
		return
	}
	t, err := p.rdr.Clock(ctx)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "reader clock: %s (host delta %s)\n",
		t.Format(time.RFC3339), time.Since(t).Round(time.Millisecond))
}

func (p *prompt) cmdGPI(ctx context.Context) {
	out := p.rl.Stdout()
	states, err := p.rdr.GPIStates(ctx)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	for _, st := range states {
		fmt.Fprintf(out, "gpi %d: %d\n", st.Pin, st.Level)
	}
}

func (p *prompt) cmdGPO(ctx context.Context, args []string) {
	out := p.rl.Stdout()
	if len(args) != 2 {
		fmt.Fprintln(out, "usage: gpo <pin> <0|1>")
		return
	}
	pin, err1 := strconv.ParseUint(args[0], 10, 8)
	level, err2 := strconv.ParseUint(args[1], 10, 8)
	if err1 != nil || err2 != nil || level > 1 {
		fmt.Fprintln(out, "usage: gpo <pin> <0|1>")
		return
	}
	if err := p.rdr.SetGPO(ctx, byte(pin), byte(level)); err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "gpo %d set to %d\n", pin, level)
}

func (p *prompt) cmdAntenna(ctx context.Context, args []string) {
	out := p.rl.Stdout()
	if len(args) != 1 {
		fmt.Fprintln(out, "usage: antenna <index>")
		return
	}
	idx, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil {
		fmt.Fprintln(out, "usage: antenna <index>")
		return
	}
	cfg, err := p.rdr.AntennaConfig(ctx, byte(idx))
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "antenna %d: power=%ddBm protocol=%d freq=%d session=%d target=%d q=%d\n",
		cfg.Index, cfg.Power, cfg.Protocol, cfg.Frequency, cfg.Session, cfg.Target, cfg.QValue)
}

func (p *prompt) cmdPower(ctx context.Context, args []string) {
	out := p.rl.Stdout()
	if len(args) != 2 {
		fmt.Fprintln(out, "usage: power <antenna> <dBm>")
		return
	}
	idx, err1 := strconv.ParseUint(args[0], 10, 8)
	dbm, err2 := strconv.ParseUint(args[1], 10, 8)
	if err1 != nil || err2 != nil {
		fmt.Fprintln(out, "usage: power <antenna> <dBm>")
		return
	}
	if err := p.rdr.SetPower(ctx, byte(idx), byte(dbm)); err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "antenna %d power set to %d dBm\n", idx, dbm)
}

func (p *prompt) cmdStored(ctx context.Context) {
	out := p.rl.Stdout()
	tags, err := p.rdr.StoredTags(ctx, reader.DefaultCollectIdle)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	if len(tags) == 0 {
		fmt.Fprintln(out, "no stored tags")
		return
	}
	for _, t := range tags {
		fmt.Fprintf(out, "epc=%X ant=%d seen=%s\n",
			t.EPC, t.PhysicalAntenna(), t.Seen.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "%d stored tags\n", len(tags))
}

func (p *prompt) cmdCache(ctx context.Context, args []string) {
	out := p.rl.Stdout()
	if len(args) == 0 || (args[0] != "on" && args[0] != "off") {
		fmt.Fprintln(out, "usage: cache <on|off> [seconds]")
		return
	}
	enable := args[0] == "on"
	if err := p.rdr.SetTagCache(ctx, enable); err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	if enable && len(args) > 1 {
		secs, err := strconv.ParseUint(args[1], 10, 16)
		if err != nil {
			fmt.Fprintln(out, "usage: cache on <seconds>")
			return
		}
		if err := p.rdr.SetCacheTime(ctx, uint16(secs)); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return
		}
	}
	fmt.Fprintf(out, "tag cache %s\n", args[0])
}

func (p *prompt) cmdRelay(ctx context.Context, args []string) {
	out := p.rl.Stdout()
	if len(args) != 2 {
		fmt.Fprintln(out, "usage: relay <n> <milliseconds>")
		return
	}
	n, err1 := strconv.ParseUint(args[0], 10, 8)
	ms, err2 := strconv.ParseUint(args[1], 10, 16)
	if err1 != nil || err2 != nil {
		fmt.Fprintln(out, "usage: relay <n> <milliseconds>")
		return
	}
	if err := p.rdr.PulseRelay(ctx, byte(n), time.Duration(ms)*time.Millisecond); err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "relay %d pulsed for %dms\n", n, ms)
}

func (p *prompt) cmdDHCP(ctx context.Context, args []string) {
	out := p.rl.Stdout()
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		fmt.Fprintln(out, "usage: dhcp <on|off>")
		return
	}
	if err := p.rdr.SetDHCP(ctx, args[0] == "on"); err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "dhcp %s\n", args[0])
}

func (p *prompt) cmdUpgrade(ctx context.Context, args []string) {
	out := p.rl.Stdout()
	if len(args) != 1 {
		fmt.Fprintln(out, "usage: upgrade <firmware-file>")
		return
	}
	image, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}

	// Firmware uploads take longer than regular commands.
	uctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	fmt.Fprintf(out, "uploading %d bytes...\n", len(image))
	err = p.rdr.UploadFirmware(uctx, image, func(offset int) {
		fmt.Fprintf(out, "\r%d/%d bytes", offset, len(image))
	})
	fmt.Fprintln(out)
	if err != nil {
		fmt.Fprintf(out, "upload failed: %v\n", err)
		return
	}
	fmt.Fprintln(out, "upload complete, reader will reboot into the new firmware")
}

func (p *prompt) cmdStatus() {
	out := p.rl.Stdout()
	fmt.Fprintf(out, "session:   %s\n", p.sess.ID())
	fmt.Fprintf(out, "state:     %s\n", p.sess.State())
	fmt.Fprintf(out, "remote:    %s\n", p.sess.RemoteAddr())
	fmt.Fprintf(out, "inventory: %v\n", p.ctrl.Running())
	if n := p.ctrl.Dropped(); n > 0 {
		fmt.Fprintf(out, "dropped:   %d tag records\n", n)
	}
}
