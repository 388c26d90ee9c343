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

// Package network brings gadget network interfaces up and down and
// configures the DHCP/NAT helper for tethering modes.
package network

import (
	"fmt"
	"os"
	"strings"

	"github.com/sailfishos/usbmoded/config"
	"github.com/sailfishos/usbmoded/dirs"
	"github.com/sailfishos/usbmoded/logger"
	"github.com/sailfishos/usbmoded/modeconf"
	"github.com/sailfishos/usbmoded/osutil"
)

// Manager configures gadget networking as described by mode
// descriptors.
type Manager struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Manager {
	return &Manager{cfg: cfg}
}

// Up assigns the configured address to the mode's network interface and
// brings it up.
func (m *Manager) Up(mode *modeconf.ModeData) error {
	iface := mode.NetworkInterface

	// a stale address from a previous activation is not an error
	if err := osutil.RunCommand("ip", "address", "flush", "dev", iface); err != nil {
		logger.Debugf("cannot flush %s: %v", iface, err)
	}
	if err := osutil.RunCommand("ip", "address", "add", m.cfg.NetworkIP+"/24", "dev", iface); err != nil {
		return err
	}
	return osutil.RunCommand("ip", "link", "set", "dev", iface, "up")
}

// Down takes the mode's network interface down. Failures are logged
// only, interfaces tend to vanish together with their gadget function.
func (m *Manager) Down(mode *modeconf.ModeData) {
	iface := mode.NetworkInterface
	if err := osutil.RunCommand("ip", "link", "set", "dev", iface, "down"); err != nil {
		logger.Debugf("cannot take %s down: %v", iface, err)
	}
}

// SetupDHCP writes the DHCP daemon configuration for the just-applied
// network state and (re)starts the daemon. NAT rules are installed when
// the mode asks for them.
func (m *Manager) SetupDHCP(mode *modeconf.ModeData) error {
	if mode.DHCPServer {
		conf := m.dhcpConfig(mode.NetworkInterface)
		if err := os.WriteFile(dirs.UdhcpdConfFile, []byte(conf), 0644); err != nil {
			return fmt.Errorf("cannot write DHCP configuration: %v", err)
		}
		if err := osutil.RunCommand("udhcpd", dirs.UdhcpdConfFile); err != nil {
			return err
		}
	}
	if mode.NAT {
		if err := os.WriteFile(dirs.IPForwardFile, []byte("1\n"), 0644); err != nil {
			logger.Noticef("cannot enable ip forwarding: %v", err)
		}
		if err := osutil.RunCommand("iptables", "-t", "nat", "-A", "POSTROUTING",
			"-o", m.cfg.NATInterface, "-j", "MASQUERADE"); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) dhcpConfig(iface string) string {
	prefix := m.cfg.NetworkIP
	if i := strings.LastIndex(prefix, "."); i >= 0 {
		prefix = prefix[:i]
	}
	return fmt.Sprintf(""+
		"start %s.100\n"+
		"end %s.150\n"+
		"interface %s\n"+
		"option subnet 255.255.255.0\n"+
		"option router %s\n",
		prefix, prefix, iface, m.cfg.NetworkIP)
}
