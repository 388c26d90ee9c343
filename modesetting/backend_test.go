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

	. "gopkg.in/check.v1"

	"github.com/sailfishos/usbmoded/config"
	"github.com/sailfishos/usbmoded/dirs"
	"github.com/sailfishos/usbmoded/modeconf"
	"github.com/sailfishos/usbmoded/modesetting"
	"github.com/sailfishos/usbmoded/testutil"
)

func (s *modesettingSuite) TestSelectBackendForced(c *C) {
	for _, t := range []struct {
		forced string
		name   string
	}{
		{config.BackendConfigfs, "configfs"},
		{config.BackendAndroid, "android"},
		{config.BackendModule, "module"},
	} {
		s.cfg.Backend = t.forced
		backend, err := modesetting.SelectBackend(s.cfg)
		c.Assert(err, IsNil)
		c.Check(backend.Name(), Equals, t.name)
	}
}

func (s *modesettingSuite) TestSelectBackendInvalid(c *C) {
	s.cfg.Backend = "functionfs"
	_, err := modesetting.SelectBackend(s.cfg)
	c.Assert(err, ErrorMatches, `cannot use backend type "functionfs"`)
}

func (s *modesettingSuite) TestSelectBackendProbing(c *C) {
	// bare system, only module loading remains
	backend, err := modesetting.SelectBackend(s.cfg)
	c.Assert(err, IsNil)
	c.Check(backend.Name(), Equals, "module")

	// an android_usb control tree appears
	s.mkAttr(c, dirs.Android0Enable, "0")
	backend, err = modesetting.SelectBackend(s.cfg)
	c.Assert(err, IsNil)
	c.Check(backend.Name(), Equals, "android")

	// configfs wins over android_usb
	c.Assert(os.MkdirAll(dirs.ConfigfsDir, 0755), IsNil)
	backend, err = modesetting.SelectBackend(s.cfg)
	c.Assert(err, IsNil)
	c.Check(backend.Name(), Equals, "configfs")
}

func (s *modesettingSuite) mkConfigfs(c *C, udc string) {
	s.mkAttr(c, dirs.ConfigfsUDC, udc)
	s.mkAttr(c, dirs.ConfigfsIDProduct, "0000")
	s.mkAttr(c, dirs.ConfigfsIDVendor, "0000")
	s.mkAttr(c, dirs.ConfigfsFunctions, "")
	c.Assert(os.MkdirAll(filepath.Join(dirs.UDCClassDir, "dummy_udc.0"), 0755), IsNil)
}

func (s *modesettingSuite) TestConfigfsSet(c *C) {
	s.mkConfigfs(c, "dummy_udc.0")

	ms := s.engine(c, config.BackendConfigfs)
	mode := &modeconf.ModeData{
		Name:       "mtp_mode",
		Module:     modeconf.ModuleNone,
		SysfsValue: "mtp",
		IDProduct:  "0a02",
	}

	c.Assert(ms.SetDynamicMode(mode), IsNil)

	c.Check(dirs.ConfigfsIDProduct, testutil.FileEquals, "0a02")
	c.Check(dirs.ConfigfsIDVendor, testutil.FileEquals, "0x2931")
	c.Check(dirs.ConfigfsFunctions, testutil.FileEquals, "mtp")
	// bound to the first advertised UDC
	c.Check(dirs.ConfigfsUDC, testutil.FileEquals, "dummy_udc.0")
}

func (s *modesettingSuite) TestConfigfsSetVendorOverride(c *C) {
	s.mkConfigfs(c, "")

	ms := s.engine(c, config.BackendConfigfs)
	mode := &modeconf.ModeData{
		Name:             "pc_suite",
		Module:           modeconf.ModuleNone,
		SysfsValue:       "mtp,acm",
		IDVendorOverride: "0421",
	}

	c.Assert(ms.SetDynamicMode(mode), IsNil)
	c.Check(dirs.ConfigfsIDVendor, testutil.FileEquals, "0421")
}

func (s *modesettingSuite) TestConfigfsSetNoUDC(c *C) {
	s.mkAttr(c, dirs.ConfigfsUDC, "")
	s.mkAttr(c, dirs.ConfigfsIDVendor, "")
	s.mkAttr(c, dirs.ConfigfsFunctions, "")

	ms := s.engine(c, config.BackendConfigfs)
	mode := &modeconf.ModeData{Name: "mtp_mode", Module: modeconf.ModuleNone, SysfsValue: "mtp"}

	c.Assert(ms.SetDynamicMode(mode), ErrorMatches, "cannot find a UDC to bind to")
}

func (s *modesettingSuite) TestConfigfsUnsetLeavesGadget(c *C) {
	s.mkConfigfs(c, "dummy_udc.0")

	ms := s.engine(c, config.BackendConfigfs)
	mode := &modeconf.ModeData{Name: "mtp_mode", Module: modeconf.ModuleNone, SysfsValue: "mtp"}
	c.Assert(ms.SetDynamicMode(mode), IsNil)

	ms.UnsetDynamicMode()

	// charging continues over the configured gadget
	c.Check(dirs.ConfigfsUDC, testutil.FileEquals, "dummy_udc.0")
	c.Check(dirs.ConfigfsFunctions, testutil.FileEquals, "mtp")
}

func (s *modesettingSuite) mkAndroid(c *C, functions string) {
	s.mkAttr(c, dirs.Android0Enable, "0")
	s.mkAttr(c, dirs.Android0Functions, functions)
	s.mkAttr(c, dirs.Android0IDProduct, "0000")
	s.mkAttr(c, dirs.Android0IDVendor, "0x2931")
}

func (s *modesettingSuite) TestAndroidSetAndUnset(c *C) {
	s.mkAndroid(c, "adb")
	softconnect := filepath.Join(s.rootdir, "softconnect")
	s.mkAttr(c, softconnect, "connect")
	extra := filepath.Join(s.rootdir, "extra")
	s.mkAttr(c, extra, "")

	ms := s.engine(c, config.BackendAndroid)
	mode := &modeconf.ModeData{
		Name:                  "mtp_mode",
		Module:                modeconf.ModuleNone,
		SysfsPath:             dirs.Android0Functions,
		SysfsValue:            "mtp",
		AndroidExtra:          []modeconf.SysfsPair{{Path: extra, Value: "1"}},
		IDProduct:             "0a02",
		IDVendorOverride:      "0421",
		SoftconnectPath:       softconnect,
		Softconnect:           "connect",
		SoftconnectDisconnect: "disconnect",
	}

	c.Assert(ms.SetDynamicMode(mode), IsNil)

	c.Check(dirs.Android0Functions, testutil.FileEquals, "mtp")
	c.Check(dirs.Android0IDProduct, testutil.FileEquals, "0a02")
	c.Check(dirs.Android0IDVendor, testutil.FileEquals, "0421")
	c.Check(extra, testutil.FileEquals, "1")
	c.Check(softconnect, testutil.FileEquals, "connect")

	ms.UnsetDynamicMode()

	// no explicit reset value, the pre-activation one is restored
	c.Check(dirs.Android0Functions, testutil.FileEquals, "adb")
	// the platform default vendor id is back
	c.Check(dirs.Android0IDVendor, testutil.FileEquals, "0x2931")
	c.Check(softconnect, testutil.FileEquals, "connect")
}

func (s *modesettingSuite) TestAndroidSetDefaultVendor(c *C) {
	s.mkAndroid(c, "adb")
	s.mkAttr(c, dirs.Android0IDVendor, "0000")

	ms := s.engine(c, config.BackendAndroid)
	mode := &modeconf.ModeData{
		Name:       "mtp_mode",
		Module:     modeconf.ModuleNone,
		SysfsPath:  dirs.Android0Functions,
		SysfsValue: "mtp",
	}

	c.Assert(ms.SetDynamicMode(mode), IsNil)

	// no override configured, the platform default applies
	c.Check(dirs.Android0IDVendor, testutil.FileEquals, "0x2931")
}

func (s *modesettingSuite) TestAndroidUnsetResetValue(c *C) {
	s.mkAndroid(c, "mtp")

	ms := s.engine(c, config.BackendAndroid)
	mode := &modeconf.ModeData{
		Name:            "rndis_mode",
		Module:          modeconf.ModuleNone,
		SysfsPath:       dirs.Android0Functions,
		SysfsValue:      "rndis",
		SysfsResetValue: "adb",
	}

	c.Assert(ms.SetDynamicMode(mode), IsNil)
	c.Check(dirs.Android0Functions, testutil.FileEquals, "rndis")

	ms.UnsetDynamicMode()
	c.Check(dirs.Android0Functions, testutil.FileEquals, "adb")
}

func (s *modesettingSuite) TestAndroidSetPrimaryWriteFails(c *C) {
	s.mkAndroid(c, "adb")

	ms := s.engine(c, config.BackendAndroid)
	mode := &modeconf.ModeData{
		Name:       "mtp_mode",
		Module:     modeconf.ModuleNone,
		SysfsPath:  filepath.Join(s.rootdir, "no-such-attr"),
		SysfsValue: "mtp",
	}

	c.Assert(ms.SetDynamicMode(mode), NotNil)
}
