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

package modesetting

import (
	"fmt"
	"os"

	"github.com/sailfishos/usbmoded/config"
	"github.com/sailfishos/usbmoded/dirs"
	"github.com/sailfishos/usbmoded/logger"
	"github.com/sailfishos/usbmoded/modeconf"
	"github.com/sailfishos/usbmoded/modules"
	"github.com/sailfishos/usbmoded/osutil"
)

// Backend programs one kind of USB gadget control interface. Exactly
// one backend is in effect for the lifetime of the daemon.
type Backend interface {
	Name() string

	set(ms *ModeSetting, mode *modeconf.ModeData) error
	unset(ms *ModeSetting, mode *modeconf.ModeData)
}

// SelectBackend picks the gadget backend, either the one forced in the
// configuration or the first one whose control tree is present:
// configfs, then android_usb, then plain kernel modules.
func SelectBackend(cfg *config.Config) (Backend, error) {
	switch cfg.Backend {
	case config.BackendConfigfs:
		return configfsBackend{}, nil
	case config.BackendAndroid:
		return androidBackend{}, nil
	case config.BackendModule:
		return moduleBackend{}, nil
	case config.BackendAuto:
		// probe below
	default:
		return nil, fmt.Errorf("cannot use backend type %q", cfg.Backend)
	}

	if osutil.IsDirectory(dirs.ConfigfsDir) {
		logger.Debugf("using configfs backend")
		return configfsBackend{}, nil
	}
	if osutil.FileExists(dirs.Android0Enable) {
		logger.Debugf("using android_usb backend")
		return androidBackend{}, nil
	}
	logger.Debugf("no gadget control tree found, falling back to kernel modules")
	return moduleBackend{}, nil
}

type configfsBackend struct{}

func (configfsBackend) Name() string { return "configfs" }

// setUDC binds or unbinds the gadget to the first UDC the kernel
// advertises. Unbinding an already unbound gadget fails with EINVAL,
// which is harmless.
func (configfsBackend) setUDC(ms *ModeSetting, bind bool) error {
	udc := ""
	if bind {
		entries, err := os.ReadDir(dirs.UDCClassDir)
		if err != nil || len(entries) == 0 {
			return fmt.Errorf("cannot find a UDC to bind to")
		}
		udc = entries[0].Name()
	}
	return ms.writeToFile(dirs.ConfigfsUDC, udc)
}

func (b configfsBackend) set(ms *ModeSetting, mode *modeconf.ModeData) error {
	// reprogramming a bound gadget is refused by the kernel
	if err := b.setUDC(ms, false); err != nil {
		logger.Debugf("cannot unbind UDC: %v", err)
	}

	if mode.IDProduct != "" {
		ms.writeToFile(dirs.ConfigfsIDProduct, mode.IDProduct)
	}
	vendor := mode.IDVendorOverride
	if vendor == "" {
		vendor = ms.cfg.AndroidVendorID
	}
	ms.writeToFile(dirs.ConfigfsIDVendor, vendor)

	ms.writeToFile(dirs.ConfigfsFunctions, mode.SysfsValue)

	return b.setUDC(ms, true)
}

func (configfsBackend) unset(ms *ModeSetting, mode *modeconf.ModeData) {
	// the gadget is left as is: tearing it down would cut charging on
	// some hardware, and the next set reprograms it anyway
}

type androidBackend struct{}

func (androidBackend) Name() string { return "android" }

func (androidBackend) set(ms *ModeSetting, mode *modeconf.ModeData) error {
	if mode.SoftconnectPath != "" {
		ms.writeToFile(mode.SoftconnectPath, mode.SoftconnectDisconnect)
	}

	for _, extra := range mode.AndroidExtra {
		ms.writeToFile(extra.Path, extra.Value)
	}

	if mode.IDProduct != "" {
		ms.writeToFile(dirs.Android0IDProduct, mode.IDProduct)
	}
	vendor := mode.IDVendorOverride
	if vendor == "" {
		vendor = ms.cfg.AndroidVendorID
	}
	ms.writeToFile(dirs.Android0IDVendor, vendor)

	var err error
	if mode.SysfsPath != "" {
		// keep the previous value around so that a mode without an
		// explicit reset value can still be reverted
		if prev, ok := readFromFile(mode.SysfsPath, readMaxSize); ok {
			ms.mu.Lock()
			if ms.saved != nil {
				ms.saved[mode.SysfsPath] = prev
			}
			ms.mu.Unlock()
		}
		err = ms.writeToFile(mode.SysfsPath, mode.SysfsValue)
	}

	if mode.SoftconnectPath != "" {
		ms.writeToFile(mode.SoftconnectPath, mode.Softconnect)
	}
	return err
}

func (androidBackend) unset(ms *ModeSetting, mode *modeconf.ModeData) {
	if mode.SoftconnectPath != "" {
		ms.writeToFile(mode.SoftconnectPath, mode.SoftconnectDisconnect)
	}

	if mode.SysfsPath != "" {
		reset := mode.SysfsResetValue
		if reset == "" {
			ms.mu.Lock()
			reset = ms.saved[mode.SysfsPath]
			ms.mu.Unlock()
		}
		ms.writeToFile(mode.SysfsPath, reset)
	}

	if mode.IDVendorOverride != "" {
		ms.writeToFile(dirs.Android0IDVendor, ms.cfg.AndroidVendorID)
	}

	if mode.SoftconnectPath != "" {
		ms.writeToFile(mode.SoftconnectPath, mode.Softconnect)
	}
}

type moduleBackend struct{}

func (moduleBackend) Name() string { return "module" }

// The module backend has nothing gadget-side to program: loading the
// module named by the mode is the whole activation.
func (moduleBackend) set(ms *ModeSetting, mode *modeconf.ModeData) error {
	return modules.Load(mode.Module)
}

func (moduleBackend) unset(ms *ModeSetting, mode *modeconf.ModeData) {
	modules.Unload(mode.Module)
}
