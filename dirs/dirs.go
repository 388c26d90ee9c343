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

// Package dirs holds the paths usb-moded reads and writes. All of them
// hang off GlobalRootDir so that tests can re-root the world into a
// temporary directory.
package dirs

import (
	"fmt"
	"path/filepath"
)

var (
	// GlobalRootDir is the root directory of the filesystem as seen
	// by the daemon. It is "/" outside of tests.
	GlobalRootDir string

	ConfDir      string
	ConfFile     string
	ModesDir     string
	DiagModesDir string
	AppSyncDir   string

	// android_usb gadget control tree
	Android0Dir               string
	Android0Enable            string
	Android0Functions         string
	Android0IDProduct         string
	Android0IDVendor          string
	AndroidMassStorageLunFile string

	// configfs gadget control tree
	ConfigfsDir       string
	ConfigfsUDC       string
	ConfigfsIDProduct string
	ConfigfsIDVendor  string
	ConfigfsFunctions string
	UDCClassDir       string

	// legacy g_file_storage / g_mass_storage gadget tree
	GadgetDir string

	ProcSelfMounts string
	UdhcpdConfFile string
	IPForwardFile  string
)

// GadgetLunFile returns the backing file attribute of the given
// logical unit in the legacy gadget tree.
func GadgetLunFile(lun int) string {
	return filepath.Join(GadgetDir, fmt.Sprintf("gadget-lun%d", lun), "file")
}

// GadgetLunNofua returns the nofua attribute of the given logical unit.
func GadgetLunNofua(lun int) string {
	return filepath.Join(GadgetDir, fmt.Sprintf("gadget-lun%d", lun), "nofua")
}

// SetRootDir allows settings a new global root directory, this is useful
// for testing.
func SetRootDir(rootdir string) {
	if rootdir == "" {
		rootdir = "/"
	}
	GlobalRootDir = rootdir

	ConfDir = filepath.Join(rootdir, "/etc/usb-moded")
	ConfFile = filepath.Join(ConfDir, "usb-moded.ini")
	ModesDir = filepath.Join(ConfDir, "dyn-modes")
	DiagModesDir = filepath.Join(ConfDir, "diag")
	AppSyncDir = filepath.Join(ConfDir, "run")

	Android0Dir = filepath.Join(rootdir, "/sys/class/android_usb/android0")
	Android0Enable = filepath.Join(Android0Dir, "enable")
	Android0Functions = filepath.Join(Android0Dir, "functions")
	Android0IDProduct = filepath.Join(Android0Dir, "idProduct")
	Android0IDVendor = filepath.Join(Android0Dir, "idVendor")
	AndroidMassStorageLunFile = filepath.Join(rootdir, "/sys/class/android_usb/f_mass_storage/lun/file")

	ConfigfsDir = filepath.Join(rootdir, "/config/usb_gadget/g1")
	ConfigfsUDC = filepath.Join(ConfigfsDir, "UDC")
	ConfigfsIDProduct = filepath.Join(ConfigfsDir, "idProduct")
	ConfigfsIDVendor = filepath.Join(ConfigfsDir, "idVendor")
	ConfigfsFunctions = filepath.Join(ConfigfsDir, "functions")
	UDCClassDir = filepath.Join(rootdir, "/sys/class/udc")

	GadgetDir = filepath.Join(rootdir, "/sys/devices/platform/musb_hdrc/gadget")

	ProcSelfMounts = filepath.Join(rootdir, "/proc/self/mounts")
	UdhcpdConfFile = filepath.Join(rootdir, "/etc/udhcpd.conf")
	IPForwardFile = filepath.Join(rootdir, "/proc/sys/net/ipv4/ip_forward")
}

func init() {
	SetRootDir("/")
}
