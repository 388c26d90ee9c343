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

// Package modules loads and unloads gadget kernel modules.
package modules

import (
	"time"

	"gopkg.in/retry.v1"

	"github.com/sailfishos/usbmoded/logger"
	"github.com/sailfishos/usbmoded/modeconf"
	"github.com/sailfishos/usbmoded/osutil"
)

var unloadRetryStrategy = retry.LimitCount(3, retry.Regular{
	Delay: 500 * time.Millisecond,
	Total: 5 * time.Second,
})

// Load loads the given kernel module with optional parameters.
func Load(module string, params ...string) error {
	if module == modeconf.ModuleNone {
		return nil
	}
	args := append([]string{"modprobe", module}, params...)
	logger.Debugf("loading module %s", module)
	return osutil.RunCommand(args...)
}

// Unload removes the given kernel module. Since a just-released gadget
// can keep the module busy for a moment, removal is retried a few
// times.
func Unload(module string) error {
	if module == modeconf.ModuleNone {
		return nil
	}
	logger.Debugf("unloading module %s", module)

	var err error
	for attempt := retry.Start(unloadRetryStrategy, nil); attempt.Next(); {
		if err = osutil.RunCommand("rmmod", module); err == nil {
			return nil
		}
	}
	logger.Noticef("cannot unload %s: %v", module, err)
	return err
}
