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
	"time"

	"gopkg.in/retry.v1"

	"github.com/sailfishos/usbmoded/modeconf"
)

var (
	StripText    = stripText
	ReadFromFile = readFromFile
)

func (ms *ModeSetting) WriteToFile(path, text string) error {
	return ms.writeToFile(path, text)
}

func (ms *ModeSetting) TrackValue(path, value string) {
	ms.trackValue(path, value)
}

// Tracked returns a copy of the drift tracking table.
func (ms *ModeSetting) Tracked() map[string]string {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	tracked := make(map[string]string, len(ms.tracked))
	for path, value := range ms.tracked {
		tracked[path] = value
	}
	return tracked
}

// SetCurrentMode injects the active mode, for exercising teardown paths
// in isolation.
func (ms *ModeSetting) SetCurrentMode(mode *modeconf.ModeData) {
	ms.setCurrent(mode)
}

// NetworkRetryPending tells whether a delayed network retry is armed.
func (ms *ModeSetting) NetworkRetryPending() bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.retry != nil
}

func MockSleep(f func(d time.Duration)) (restore func()) {
	old := sleep
	sleep = f
	return func() {
		sleep = old
	}
}

func MockUnmountRetryStrategy(s retry.Strategy) (restore func()) {
	old := unmountRetryStrategy
	unmountRetryStrategy = s
	return func() {
		unmountRetryStrategy = old
	}
}

func MockNetworkRetryDelay(d time.Duration) (restore func()) {
	old := networkRetryDelay
	networkRetryDelay = d
	return func() {
		networkRetryDelay = old
	}
}
