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
	"strings"
	"time"

	"gopkg.in/retry.v1"

	"github.com/sailfishos/usbmoded/dirs"
	"github.com/sailfishos/usbmoded/logger"
	"github.com/sailfishos/usbmoded/modeconf"
	"github.com/sailfishos/usbmoded/modules"
	"github.com/sailfishos/usbmoded/osutil"
	"github.com/sailfishos/usbmoded/umdbus"
)

// A busy mount point gets 4 unmount attempts in total before the whole
// mass-storage activation is abandoned.
var unmountRetryStrategy retry.Strategy = retry.LimitCount(4, retry.Regular{
	Delay: time.Second,
	Total: time.Minute,
})

// setMassStorageMode unmounts the configured shared filesystems and
// exports them through the gadget. The device either ends up sharing
// all configured mount points or the operation fails as a whole.
func (ms *ModeSetting) setMassStorageMode(mode *modeconf.ModeData) error {
	// let applications release their grasp on the filesystems before
	// anything is unmounted
	ms.sig.StateSignal(umdbus.PreUnmount)

	mounts := ms.cfg.MountPoints
	if len(mounts) == 0 {
		return fmt.Errorf("no mount points configured for mass storage")
	}

	if mode.Module != modeconf.ModuleNone {
		// the storage module must have been loaded with one logical
		// unit per mount point; reload it if the last unit's control
		// file is missing
		ctl := dirs.GadgetLunFile(len(mounts) - 1)
		if !osutil.IsReadable(ctl) {
			logger.Debugf("%s does not exist, unloading and reloading %s", ctl, modeconf.ModuleMassStorage)
			modules.Unload(modeconf.ModuleMassStorage)
			if err := modules.Load(modeconf.ModuleMassStorage, fmt.Sprintf("luns=%d", len(mounts))); err != nil {
				return err
			}
		}
	}

	for _, mnt := range mounts {
		if err := ms.unmountWithRetries(mnt); err != nil {
			ms.sig.ErrorSignal(umdbus.UmountError)
			return err
		}
	}

	// give the host time to complete enumeration before the shares
	// appear, or autoplay will not work on some operating systems
	sleep(enumerationDelay)

	var err error
	if mode.Module != modeconf.ModuleNone {
		nofua := "0"
		if ms.cfg.Sync {
			nofua = "1"
		}
		for i, mnt := range mounts {
			ms.writeToFile(dirs.GadgetLunNofua(i), nofua)
			if werr := ms.writeToFile(dirs.GadgetLunFile(i), osutil.ResolvePath(mnt)); werr != nil {
				err = werr
			}
		}
	} else {
		ms.writeToFile(dirs.Android0Enable, "0")
		ms.writeToFile(dirs.Android0Functions, "mass_storage")
		err = ms.writeToFile(dirs.AndroidMassStorageLunFile, ms.cfg.MountString)
		ms.writeToFile(dirs.Android0Enable, "1")
	}

	// only tell clients their data is in use when it actually is
	if err == nil {
		ms.sig.StateSignal(umdbus.DataInUse)
	}
	return err
}

func (ms *ModeSetting) unmountWithRetries(mnt string) error {
	path := osutil.ResolvePath(mnt)

	var lastErr error
	for attempt := retry.Start(unmountRetryStrategy, nil); attempt.Next(); {
		mounted, err := osutil.IsMounted(path)
		if err != nil {
			logger.Debugf("cannot inspect mount table: %v", err)
		}
		if !mounted {
			// already unmounted is not an error
			return nil
		}
		if lastErr = osutil.RunCommand("umount", path); lastErr == nil {
			return nil
		}
		if attempt.More() {
			logger.Noticef("unmounting %s failed, retrying", path)
			ms.reportMassStorageBlocker(mnt, false)
		}
	}
	logger.Noticef("unmounting %s failed", path)
	ms.reportMassStorageBlocker(mnt, true)
	return lastErr
}

// unsetMassStorageMode takes the shared filesystems back into local
// use. With a nil mode it acts as the generic cleanup path used at
// daemon shutdown and after module unload.
func (ms *ModeSetting) unsetMassStorageMode(mode *modeconf.ModeData) {
	for i, mnt := range ms.cfg.MountPoints {
		path := osutil.ResolvePath(mnt)
		mounted, err := osutil.IsMounted(path)
		if err != nil {
			logger.Debugf("cannot inspect mount table: %v", err)
		}
		if !mounted {
			if merr := osutil.RunCommand("mount", path); merr != nil {
				logger.Noticef("mounting %s failed: %v", path, merr)
				// leave at least a read-only placeholder at the
				// path rather than a dangling directory
				if alt := ms.cfg.AltMount; alt != "" {
					logger.Debugf("mounting read-only tmpfs on %s as fallback", alt)
					if terr := osutil.RunCommand("mount", "-t", "tmpfs", "tmpfs", "-o", "ro,size=512k", alt); terr != nil {
						logger.Noticef("fallback mount failed: %v", terr)
					}
				}
				ms.sig.ErrorSignal(umdbus.RemountFailed)
			}
		}
		if mode != nil {
			if mode.Module == modeconf.ModuleNone {
				logger.Debugf("disabling android mass storage")
				ms.writeToFile(dirs.AndroidMassStorageLunFile, "0")
				ms.writeToFile(dirs.Android0Enable, "0")
			}
		} else {
			ms.writeToFile(dirs.GadgetLunFile(i), "")
		}
	}
}

// reportMassStorageBlocker logs and signals the processes that keep a
// mount point busy. This is best-effort diagnostics, a failing query is
// not an error.
func (ms *ModeSetting) reportMassStorageBlocker(mountpoint string, final bool) {
	lines, err := osutil.OutputLines("lsof", mountpoint)
	if err != nil {
		logger.Debugf("cannot list blocking processes: %v", err)
	}
	for i, line := range lines {
		// the first line is the header
		if i == 0 {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		logger.Noticef("mass storage blocked by process %s", fields[0])
		ms.sig.ErrorSignal(fields[0])
	}
	if final {
		logger.Noticef("setting up mass storage blocked, giving up")
	}
}
