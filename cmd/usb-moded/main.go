// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2023-2024 Jolla Ltd.
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	sysdaemon "github.com/coreos/go-systemd/daemon"
	systemddbus "github.com/coreos/go-systemd/dbus"
	"github.com/godbus/dbus/v5"
	"github.com/jessevdk/go-flags"
	"gopkg.in/tomb.v2"

	"github.com/sailfishos/usbmoded/appsync"
	"github.com/sailfishos/usbmoded/config"
	"github.com/sailfishos/usbmoded/connman"
	"github.com/sailfishos/usbmoded/logger"
	"github.com/sailfishos/usbmoded/modeconf"
	"github.com/sailfishos/usbmoded/modesetting"
	"github.com/sailfishos/usbmoded/network"
	"github.com/sailfishos/usbmoded/osutil"
	"github.com/sailfishos/usbmoded/umdbus"
)

var version = "unknown"

// interval between sweeps over the tracked gadget attribute values
var verifyInterval = 30 * time.Second

type options struct {
	Debug        bool   `long:"debug" short:"D" description:"Turn on debug printing"`
	Diag         bool   `long:"diag" short:"d" description:"Turn on diagnostic mode"`
	ForceBackend string `long:"force-backend" description:"Force the gadget backend (configfs, android or module)"`
	Version      bool   `long:"version" short:"v" description:"Output version information"`
}

func init() {
	err := logger.SimpleSetup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: failed to activate logging: %s\n", err)
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runWatchdog(tmb *tomb.Tomb) *time.Ticker {
	// not running under systemd
	if os.Getenv("WATCHDOG_USEC") == "" {
		return nil
	}
	usec := osutil.GetenvInt64("WATCHDOG_USEC")
	if usec == 0 {
		logger.Noticef("cannot parse WATCHDOG_USEC: %q", os.Getenv("WATCHDOG_USEC"))
		return nil
	}
	dur := time.Duration(usec/2) * time.Microsecond
	logger.Debugf("Setting up sd_notify() watchdog timer every %s", dur)
	wt := time.NewTicker(dur)

	tmb.Go(func() error {
		for {
			select {
			case <-wt.C:
				sysdaemon.SdNotify(false, sysdaemon.SdNotifyWatchdog)
			case <-tmb.Dying():
				return nil
			}
		}
	})
	return wt
}

func run() error {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.Parse(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			return nil
		}
		return err
	}
	if opts.Version {
		fmt.Fprintf(os.Stdout, "usb-moded %s\n", version)
		return nil
	}
	if opts.Debug {
		logger.EnableDebug()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.ForceBackend != "" {
		cfg.Backend = opts.ForceBackend
	}

	backend, err := modesetting.SelectBackend(cfg)
	if err != nil {
		return err
	}
	logger.Noticef("using %s gadget backend", backend.Name())

	modes := modeconf.LoadAll(opts.Diag)
	names := make([]string, len(modes))
	for i, mode := range modes {
		names[i] = mode.Name
	}
	logger.Noticef("%d modes configured: %s", len(modes), strings.Join(names, " "))

	emitter, err := umdbus.Connect()
	if err != nil {
		return fmt.Errorf("cannot claim %s on the system bus: %v", umdbus.BusName, err)
	}
	defer emitter.Close()

	var apps *appsync.Manager
	if systemd, err := systemddbus.New(); err != nil {
		logger.Noticef("cannot connect to systemd, appsync disabled: %v", err)
		apps = appsync.New(nil, nil)
	} else {
		defer systemd.Close()
		apps = appsync.New(systemd, appsync.LoadAll())
	}

	var tether modesetting.TetheringClient
	if conn, err := dbus.SystemBus(); err != nil {
		logger.Noticef("cannot connect to connman, tethering disabled: %v", err)
	} else {
		tether = connman.New(conn)
	}

	engine := modesetting.New(cfg, backend, emitter, network.New(cfg), apps, tether)
	defer engine.Quit()

	emitter.SupportedModesSignal(strings.Join(names, " "))

	sigch := make(chan os.Signal, 2)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)

	var tmb tomb.Tomb
	tmb.Go(func() error {
		ticker := time.NewTicker(verifyInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				engine.VerifyValues()
			case <-tmb.Dying():
				return nil
			}
		}
	})
	if wt := runWatchdog(&tmb); wt != nil {
		defer wt.Stop()
	}

	sysdaemon.SdNotify(false, sysdaemon.SdNotifyReady)
	logger.Debugf("activation done")

	select {
	case sig := <-sigch:
		logger.Noticef("Exiting on %s signal.", sig)
	case <-tmb.Dying():
	}

	sysdaemon.SdNotify(false, sysdaemon.SdNotifyStopping)
	engine.UnsetDynamicMode()
	tmb.Kill(nil)
	return tmb.Wait()
}
