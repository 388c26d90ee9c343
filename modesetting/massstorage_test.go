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

package modesetting_test

import (
	"os"
	"path/filepath"
	"time"

	. "gopkg.in/check.v1"

	"github.com/sailfishos/usbmoded/config"
	"github.com/sailfishos/usbmoded/dirs"
	"github.com/sailfishos/usbmoded/modeconf"
	"github.com/sailfishos/usbmoded/testutil"
	"github.com/sailfishos/usbmoded/umdbus"
)

// shareDir points the configuration at a real directory under the test
// root so that path resolution works, and prepares the legacy gadget
// lun attribute files.
func (s *modesettingSuite) shareDir(c *C, luns int) string {
	share := filepath.Join(s.rootdir, "home/user/MyDocs")
	c.Assert(os.MkdirAll(share, 0755), IsNil)
	// the test root can be behind a symlink
	share, err := filepath.EvalSymlinks(share)
	c.Assert(err, IsNil)

	s.cfg.MountString = share
	s.cfg.MountPoints = []string{share}
	s.cfg.AltMount = share

	for i := 0; i < luns; i++ {
		s.mkAttr(c, dirs.GadgetLunFile(i), "")
		s.mkAttr(c, dirs.GadgetLunNofua(i), "")
	}
	return share
}

var massStorageMode = &modeconf.ModeData{
	Name:        modeconf.ModeMassStorage,
	Module:      modeconf.ModuleMassStorage,
	MassStorage: true,
}

func (s *modesettingSuite) TestSetMassStorageAlreadyUnmounted(c *C) {
	umount := testutil.MockCommand(c, "umount", "")
	defer umount.Restore()

	share := s.shareDir(c, 1)
	s.mountTable(c)

	ms := s.engine(c, config.BackendModule)
	c.Assert(ms.SetDynamicMode(massStorageMode), IsNil)

	// not mounted, so nothing was unmounted
	c.Check(umount.Calls(), HasLen, 0)
	c.Check(dirs.GadgetLunFile(0), testutil.FileEquals, share)
	c.Check(dirs.GadgetLunNofua(0), testutil.FileEquals, "0")
	c.Check(s.sig.states, DeepEquals, []string{umdbus.PreUnmount, umdbus.DataInUse})
	c.Check(s.sleeps, DeepEquals, []time.Duration{time.Second})
}

func (s *modesettingSuite) TestSetMassStorageUnmountsShare(c *C) {
	umount := testutil.MockCommand(c, "umount", "")
	defer umount.Restore()

	share := s.shareDir(c, 1)
	s.mountTable(c, share)

	ms := s.engine(c, config.BackendModule)
	c.Assert(ms.SetDynamicMode(massStorageMode), IsNil)

	c.Check(umount.Calls(), DeepEquals, [][]string{
		{"umount", share},
	})
	c.Check(dirs.GadgetLunFile(0), testutil.FileEquals, share)
	c.Check(s.sig.states, DeepEquals, []string{umdbus.PreUnmount, umdbus.DataInUse})
}

func (s *modesettingSuite) TestSetMassStorageSyncFlag(c *C) {
	s.shareDir(c, 1)
	s.mountTable(c)
	s.cfg.Sync = true

	ms := s.engine(c, config.BackendModule)
	c.Assert(ms.SetDynamicMode(massStorageMode), IsNil)
	c.Check(dirs.GadgetLunNofua(0), testutil.FileEquals, "1")
}

func (s *modesettingSuite) TestSetMassStorageReloadsModule(c *C) {
	modprobe := testutil.MockCommand(c, "modprobe", "")
	rmmod := modprobe.Also("rmmod", "")
	defer modprobe.Restore()

	s.shareDir(c, 0)
	s.mountTable(c)

	ms := s.engine(c, config.BackendModule)
	// the lun attributes are missing, so programming them fails, but
	// the module must have been reloaded with the right lun count
	c.Check(ms.SetDynamicMode(massStorageMode), NotNil)
	c.Check(rmmod.Calls(), DeepEquals, [][]string{
		{"rmmod", "g_mass_storage"},
		{"modprobe", "g_mass_storage", "luns=1"},
	})
}

func (s *modesettingSuite) TestSetMassStorageBlocked(c *C) {
	umount := testutil.MockCommand(c, "umount", "exit 1")
	lsof := testutil.MockCommand(c, "lsof", `echo "COMMAND PID USER"; echo "harvest 1234 user"`)
	defer umount.Restore()
	defer lsof.Restore()

	share := s.shareDir(c, 1)
	s.mountTable(c, share)

	ms := s.engine(c, config.BackendModule)
	c.Assert(ms.SetDynamicMode(massStorageMode), NotNil)

	// 4 unmount attempts in total
	c.Check(umount.Calls(), HasLen, 4)
	// a blocker report after each failed attempt, plus the final one
	c.Check(lsof.Calls(), HasLen, 4)
	// the blocking process is named in the error signals
	c.Check(s.sig.errors, DeepEquals, []string{
		"harvest", "harvest", "harvest", "harvest",
		umdbus.UmountError,
	})
	// data is not in use, the share was never exported
	c.Check(s.sig.states, DeepEquals, []string{umdbus.PreUnmount})
	c.Check(s.logbuf.String(), testutil.Contains, "mass storage blocked by process harvest")
}

func (s *modesettingSuite) TestSetMassStorageAndroidGadget(c *C) {
	share := s.shareDir(c, 0)
	s.mountTable(c)
	s.mkAttr(c, dirs.Android0Enable, "0")
	s.mkAttr(c, dirs.Android0Functions, "")
	s.mkAttr(c, dirs.AndroidMassStorageLunFile, "")

	androidMode := &modeconf.ModeData{
		Name:        modeconf.ModeMassStorage,
		Module:      modeconf.ModuleNone,
		MassStorage: true,
	}

	ms := s.engine(c, config.BackendAndroid)
	c.Assert(ms.SetDynamicMode(androidMode), IsNil)

	c.Check(dirs.Android0Functions, testutil.FileEquals, "mass_storage")
	c.Check(dirs.AndroidMassStorageLunFile, testutil.FileEquals, share)
	c.Check(dirs.Android0Enable, testutil.FileEquals, "1")
	c.Check(s.sig.states, DeepEquals, []string{umdbus.PreUnmount, umdbus.DataInUse})
}

func (s *modesettingSuite) TestUnsetMassStorageRemounts(c *C) {
	mount := testutil.MockCommand(c, "mount", "")
	defer mount.Restore()

	share := s.shareDir(c, 1)
	s.mountTable(c)

	ms := s.engine(c, config.BackendModule)
	ms.SetCurrentMode(massStorageMode)
	ms.UnsetDynamicMode()

	c.Check(mount.Calls(), DeepEquals, [][]string{
		{"mount", share},
	})
	c.Check(s.sig.errors, HasLen, 0)
}

func (s *modesettingSuite) TestUnsetMassStorageStillMounted(c *C) {
	mount := testutil.MockCommand(c, "mount", "")
	defer mount.Restore()

	share := s.shareDir(c, 1)
	s.mountTable(c, share)

	ms := s.engine(c, config.BackendModule)
	ms.SetCurrentMode(massStorageMode)
	ms.UnsetDynamicMode()

	// already mounted, nothing to do
	c.Check(mount.Calls(), HasLen, 0)
}

func (s *modesettingSuite) TestUnsetMassStorageFallbackMount(c *C) {
	mount := testutil.MockCommand(c, "mount", `[ "$1" = "-t" ] || exit 1`)
	defer mount.Restore()

	share := s.shareDir(c, 1)
	s.mountTable(c)

	ms := s.engine(c, config.BackendModule)
	ms.SetCurrentMode(massStorageMode)
	ms.UnsetDynamicMode()

	// the remount failed, a read-only tmpfs took the share's place
	c.Check(mount.Calls(), DeepEquals, [][]string{
		{"mount", share},
		{"mount", "-t", "tmpfs", "tmpfs", "-o", "ro,size=512k", share},
	})
	c.Check(s.sig.errors, DeepEquals, []string{umdbus.RemountFailed})
}

func (s *modesettingSuite) TestUnsetMassStorageAndroidGadget(c *C) {
	mount := testutil.MockCommand(c, "mount", "")
	defer mount.Restore()

	s.shareDir(c, 0)
	s.mountTable(c)
	s.mkAttr(c, dirs.Android0Enable, "1")
	s.mkAttr(c, dirs.AndroidMassStorageLunFile, "backing")

	androidMode := &modeconf.ModeData{
		Name:        modeconf.ModeMassStorage,
		Module:      modeconf.ModuleNone,
		MassStorage: true,
	}

	ms := s.engine(c, config.BackendAndroid)
	ms.SetCurrentMode(androidMode)
	ms.UnsetDynamicMode()

	c.Check(dirs.AndroidMassStorageLunFile, testutil.FileEquals, "0")
	c.Check(dirs.Android0Enable, testutil.FileEquals, "0")
}
