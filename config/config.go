// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2024 Jolla Ltd.
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

// Package config loads the daemon-wide usb-moded configuration. Mode
// descriptors are handled separately by the modeconf package.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/mvo5/goconfigparser"

	"github.com/sailfishos/usbmoded/dirs"
	"github.com/sailfishos/usbmoded/logger"
)

// Backend selection values, exactly one strategy is active for the
// daemon's lifetime.
const (
	BackendAuto     = ""
	BackendConfigfs = "configfs"
	BackendAndroid  = "android"
	BackendModule   = "module"
)

// Config holds the daemon configuration from /etc/usb-moded/usb-moded.ini.
type Config struct {
	// MountString is the raw comma-separated mount point setting, as
	// some android gadget attributes take the whole list verbatim.
	MountString string
	// MountPoints is MountString split on commas.
	MountPoints []string
	// AltMount is where a read-only tmpfs is mounted when remounting
	// a shared filesystem fails on mass-storage disable.
	AltMount string
	// Sync is the FUA ("force unit access") setting forwarded to the
	// per-lun nofua attribute.
	Sync bool
	// AndroidVendorID is the platform default USB vendor id.
	AndroidVendorID string
	// Backend forces a gadget backend instead of probing for one.
	Backend string

	// NetworkIP is the address assigned to gadget network interfaces.
	NetworkIP string
	// NATInterface is the upstream interface used for NAT rules.
	NATInterface string
}

func defaults() *Config {
	return &Config{
		MountString:     "/home/user/MyDocs",
		MountPoints:     []string{"/home/user/MyDocs"},
		AltMount:        "/home/user/MyDocs",
		AndroidVendorID: "0x2931",
		NetworkIP:       "192.168.2.15",
		NATInterface:    "wlan0",
	}
}

func splitMounts(s string) []string {
	var out []string
	for _, m := range strings.Split(s, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

// Load reads the daemon configuration file. A missing file is not an
// error, the defaults are used in that case.
func Load() (*Config, error) {
	cfg := defaults()

	parser := goconfigparser.New()
	if err := parser.ReadFile(dirs.ConfFile); err != nil {
		if os.IsNotExist(err) {
			logger.Debugf("no configuration file %s, using defaults", dirs.ConfFile)
			return cfg, nil
		}
		return nil, fmt.Errorf("cannot read %s: %v", dirs.ConfFile, err)
	}

	get := func(section, key string) (string, bool) {
		val, err := parser.Get(section, key)
		if err != nil {
			return "", false
		}
		val = strings.TrimSpace(val)
		return val, val != ""
	}

	if val, ok := get("storage", "mount_points"); ok {
		cfg.MountString = val
		cfg.MountPoints = splitMounts(val)
		cfg.AltMount = cfg.MountPoints[0]
	}
	if val, ok := get("storage", "alt_mount"); ok {
		cfg.AltMount = val
	}
	if val, ok := get("storage", "sync"); ok {
		cfg.Sync = val == "1" || strings.EqualFold(val, "true")
	}
	if val, ok := get("android", "vendor_id"); ok {
		cfg.AndroidVendorID = val
	}
	if val, ok := get("backend", "type"); ok {
		switch val {
		case BackendConfigfs, BackendAndroid, BackendModule:
			cfg.Backend = val
		default:
			return nil, fmt.Errorf("cannot use backend type %q", val)
		}
	}
	if val, ok := get("network", "ip"); ok {
		cfg.NetworkIP = val
	}
	if val, ok := get("network", "nat_interface"); ok {
		cfg.NATInterface = val
	}

	return cfg, nil
}
