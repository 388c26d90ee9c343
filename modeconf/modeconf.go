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

// Package modeconf loads the dynamic mode descriptor files that define
// the selectable USB gadget personalities.
package modeconf

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mvo5/goconfigparser"

	"github.com/sailfishos/usbmoded/dirs"
	"github.com/sailfishos/usbmoded/logger"
)

// Well known mode and module names.
const (
	ModeMassStorage      = "mass_storage"
	ModeCharging         = "charging_only"
	ModeChargingFallback = "charging_only_fallback"

	ModuleMassStorage = "g_mass_storage"
	ModuleFileStorage = "g_file_storage"
	// ModuleNone marks modes that need no discrete kernel module.
	ModuleNone = "none"
)

// SysfsPair is one (attribute path, value) pair programmed by the
// android backend in addition to the primary sysfs write.
type SysfsPair struct {
	Path  string
	Value string
}

// ModeData describes one selectable USB mode. It is loaded once at
// configuration time and never mutated afterwards.
type ModeData struct {
	Name   string
	Module string

	AppSync     bool
	MassStorage bool

	Network          bool
	NetworkInterface string
	NAT              bool
	DHCPServer       bool

	SysfsPath       string
	SysfsValue      string
	SysfsResetValue string

	AndroidExtra []SysfsPair

	IDProduct        string
	IDVendorOverride string

	ConnmanTethering string

	SoftconnectPath       string
	Softconnect           string
	SoftconnectDisconnect string
}

func boolSetting(parser *goconfigparser.ConfigParser, section, key string) bool {
	val, err := parser.Get(section, key)
	if err != nil {
		return false
	}
	val = strings.TrimSpace(val)
	return val == "1" || strings.EqualFold(val, "true")
}

func stringSetting(parser *goconfigparser.ConfigParser, section, key string) string {
	val, err := parser.Get(section, key)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(val)
}

// Load reads and validates a single mode descriptor file.
func Load(filename string) (*ModeData, error) {
	parser := goconfigparser.New()
	if err := parser.ReadFile(filename); err != nil {
		return nil, fmt.Errorf("cannot read mode configuration file %s: %v", filename, err)
	}

	mode := &ModeData{
		Name:   stringSetting(parser, "mode", "name"),
		Module: stringSetting(parser, "mode", "module"),

		AppSync:     boolSetting(parser, "mode", "appsync"),
		MassStorage: boolSetting(parser, "mode", "mass_storage"),

		Network:          boolSetting(parser, "mode", "network"),
		NetworkInterface: stringSetting(parser, "mode", "network_interface"),
		NAT:              boolSetting(parser, "options", "nat"),
		DHCPServer:       boolSetting(parser, "options", "dhcp_server"),

		SysfsPath:       stringSetting(parser, "options", "sysfs_path"),
		SysfsValue:      stringSetting(parser, "options", "sysfs_value"),
		SysfsResetValue: stringSetting(parser, "options", "sysfs_reset_value"),

		IDProduct:        stringSetting(parser, "options", "idProduct"),
		IDVendorOverride: stringSetting(parser, "options", "idVendorOverride"),

		ConnmanTethering: stringSetting(parser, "options", "connman_tethering"),

		SoftconnectPath:       stringSetting(parser, "options", "softconnect_path"),
		Softconnect:           stringSetting(parser, "options", "softconnect"),
		SoftconnectDisconnect: stringSetting(parser, "options", "softconnect_disconnect"),
	}

	// up to four extra android attribute pairs
	for _, suffix := range []string{"", "2", "3", "4"} {
		path := stringSetting(parser, "options", "android_extra_sysfs_path"+suffix)
		value := stringSetting(parser, "options", "android_extra_sysfs_value"+suffix)
		if path != "" && value != "" {
			mode.AndroidExtra = append(mode.AndroidExtra, SysfsPair{Path: path, Value: value})
		}
	}

	if err := mode.validate(); err != nil {
		return nil, fmt.Errorf("%s: %v", filename, err)
	}
	return mode, nil
}

func (mode *ModeData) validate() error {
	if mode.Name == "" || mode.Module == "" {
		return fmt.Errorf("name or module not defined")
	}
	if mode.Network && mode.NetworkInterface == "" {
		return fmt.Errorf("network not fully defined")
	}
	// Most of this is optional: usually sysfs_value holds a list of
	// functions to enable and the other two settings are simply not
	// present. But a sysfs_path without a value to write, or a reset
	// value without a path, cannot be acted on.
	if mode.SysfsPath != "" && mode.SysfsValue == "" {
		return fmt.Errorf("sysfs_value not fully defined")
	}
	if mode.SysfsResetValue != "" && mode.SysfsPath == "" {
		return fmt.Errorf("sysfs_value not fully defined")
	}
	return nil
}

// LoadAll loads every valid mode descriptor from the mode configuration
// directory, sorted by mode name. Files that fail validation are
// skipped, with the reason logged.
func LoadAll(diag bool) []*ModeData {
	dir := dirs.ModesDir
	if diag {
		dir = dirs.DiagModesDir
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Debugf("cannot open mode configuration directory: %v", err)
		return nil
	}

	var modes []*ModeData
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		mode, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			logger.Noticef("skipping mode configuration: %v", err)
			continue
		}
		logger.Debugf("loaded mode %q from %s", mode.Name, entry.Name())
		modes = append(modes, mode)
	}

	sort.Slice(modes, func(i, j int) bool {
		return modes[i].Name < modes[j].Name
	})
	return modes
}
