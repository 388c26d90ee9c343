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
	"path/filepath"

	. "gopkg.in/check.v1"

	"github.com/sailfishos/usbmoded/config"
	"github.com/sailfishos/usbmoded/dirs"
	"github.com/sailfishos/usbmoded/modesetting"
	"github.com/sailfishos/usbmoded/testutil"
)

func (s *modesettingSuite) TestStripText(c *C) {
	for _, t := range []struct {
		in, out string
	}{
		{"", ""},
		{"mtp", "mtp"},
		{"mtp\n", "mtp"},
		{"  mtp \t adb \n", "mtp adb"},
		{"\x00\x01mtp\x00", "mtp"},
	} {
		c.Check(modesetting.StripText(t.in), Equals, t.out)
	}
}

func (s *modesettingSuite) TestReadFromFile(c *C) {
	path := filepath.Join(s.rootdir, "attr")
	s.mkAttr(c, path, "mtp,adb\n")

	val, ok := modesetting.ReadFromFile(path, 0x1000)
	c.Check(ok, Equals, true)
	c.Check(val, Equals, "mtp,adb")
}

func (s *modesettingSuite) TestReadFromFileMissing(c *C) {
	val, ok := modesetting.ReadFromFile(filepath.Join(s.rootdir, "no-such-attr"), 0x1000)
	c.Check(ok, Equals, false)
	c.Check(val, Equals, "")
	// absence is silent
	c.Check(s.logbuf.String(), Equals, "")
}

func (s *modesettingSuite) TestWriteToFile(c *C) {
	ms := s.engine(c, config.BackendModule)
	path := filepath.Join(s.rootdir, "attr")
	s.mkAttr(c, path, "old\n")

	c.Assert(ms.WriteToFile(path, "new"), IsNil)
	c.Check(path, testutil.FileEquals, "new")
	c.Check(ms.Tracked(), DeepEquals, map[string]string{path: "new"})
}

func (s *modesettingSuite) TestWriteToFileNoPath(c *C) {
	ms := s.engine(c, config.BackendModule)
	c.Check(ms.WriteToFile("", "x"), ErrorMatches, "cannot write: no path set")
}

func (s *modesettingSuite) TestWriteToFileDoesNotCreate(c *C) {
	ms := s.engine(c, config.BackendModule)
	path := filepath.Join(s.rootdir, "attr")

	c.Check(ms.WriteToFile(path, "x"), NotNil)
	c.Check(path, testutil.FileAbsent)
	// nothing to verify later either
	c.Check(ms.Tracked(), HasLen, 0)
}

func (s *modesettingSuite) TestWriteToFileClearsFunctions(c *C) {
	ms := s.engine(c, config.BackendModule)
	s.mkAttr(c, dirs.Android0Functions, "mtp,adb\n")

	c.Assert(ms.WriteToFile(dirs.Android0Functions, ""), IsNil)
	// the function list is cleared by writing an unknown function name
	c.Check(dirs.Android0Functions, testutil.FileEquals, "none")
	c.Check(ms.Tracked(), DeepEquals, map[string]string{dirs.Android0Functions: ""})
}

func (s *modesettingSuite) TestWriteToFileEmptyText(c *C) {
	ms := s.engine(c, config.BackendModule)
	path := filepath.Join(s.rootdir, "attr")
	s.mkAttr(c, path, "bound-udc")

	c.Assert(ms.WriteToFile(path, ""), IsNil)
	c.Check(path, testutil.FileEquals, "\n")
	c.Check(ms.Tracked(), DeepEquals, map[string]string{path: ""})
}
