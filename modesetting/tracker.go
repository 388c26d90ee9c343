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
	"strings"

	"github.com/sailfishos/usbmoded/logger"
)

// trackValue records the value last written to an attribute path. It
// never fails the caller: with the tracker released or an empty path it
// is a no-op.
func (ms *ModeSetting) trackValue(path, value string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.tracked == nil || path == "" {
		return
	}
	ms.tracked[path] = value
}

// untrackValue forgets the recorded value for an attribute path.
func (ms *ModeSetting) untrackValue(path string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.tracked == nil || path == "" {
		return
	}
	delete(ms.tracked, path)
}

// VerifyValues is a diagnostic sweep over all tracked attribute
// values. Attributes whose live value no longer matches what was
// written are logged and the record is updated to the live value, so
// the same drift is not reported twice. It never fails.
func (ms *ModeSetting) VerifyValues() {
	ms.mu.Lock()
	tracked := make(map[string]string, len(ms.tracked))
	for path, value := range ms.tracked {
		tracked[path] = value
	}
	ms.mu.Unlock()

	for path, expected := range tracked {
		curr, ok := readFromFile(path, readMaxSize)
		if ok && curr == expected {
			continue
		}
		switch {
		case !ok:
			logger.Noticef("unexpected change %q : %q -> %q", path, expected, "???")
			ms.untrackValue(path)
		case strings.EqualFold(curr, expected):
			// hexadecimal values from configuration files can come
			// back from kernel interfaces with different letter case
			logger.Debugf("unexpected change %q : %q -> %q (case diff only)", path, expected, curr)
			ms.trackValue(path, curr)
		default:
			logger.Noticef("unexpected change %q : %q -> %q", path, expected, curr)
			ms.trackValue(path, curr)
		}
	}
}
