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
	"io"
	"os"

	"strings"

	"github.com/sailfishos/usbmoded/dirs"
	"github.com/sailfishos/usbmoded/logger"
)

const readMaxSize = 0x1000

// stripText collapses contiguous whitespace and control characters to
// single spaces and trims the ends.
func stripText(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r <= ' '
	})
	return strings.Join(fields, " ")
}

// readFromFile reads up to maxsize bytes from the given attribute file
// and returns the normalized content. A missing or unreadable file is
// reported as absence, not an error: many gadget attributes only exist
// on some hardware variants.
func readFromFile(path string, maxsize int) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) && !os.IsPermission(err) {
			logger.Noticef("%s: open: %v", path, err)
		}
		return "", false
	}
	defer f.Close()

	buf := make([]byte, maxsize)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		logger.Noticef("%s: read: %v", path, err)
		return "", false
	}
	return stripText(string(buf[:n])), true
}

// writeToFile writes the given text to an attribute file. Only already
// existing files are written to. Successful writes to files that can
// also be read back are recorded for later drift detection.
//
// Clearing a function list has special kernel semantics: writing an
// empty string is ignored and accomplishes nothing, while writing an
// unknown function name clears the list but returns a write error. The
// placeholder "none" used in configuration files and an empty string
// are both translated to a literal "none" write whose failure is
// expected and logged at debug level only.
func (ms *ModeSetting) writeToFile(path, text string) error {
	if path == "" {
		return fmt.Errorf("cannot write: no path set")
	}

	clear := false
	if path == dirs.Android0Functions || path == dirs.ConfigfsFunctions {
		if text == "" || text == "none" {
			text = "none"
			clear = true
		}
	}

	// if the file can be read now, it can also be verified later to
	// retain the value written here
	prev, readable := readFromFile(path, readMaxSize)
	if readable {
		if clear {
			ms.trackValue(path, "")
		} else {
			ms.trackValue(path, text)
		}
	}

	logger.Debugf("write %q : %q -> %q", path, prev, text)

	data := text
	if data == "" {
		data = "\n"
	}

	// no O_CREATE, attribute files either exist or the write fails
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		logger.Noticef("open %s: %v", path, err)
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(data); err != nil {
		if clear {
			logger.Debugf("write %s: %v (expected failure)", path, err)
		} else {
			logger.Noticef("write %s: %v", path, err)
		}
		return err
	}
	return nil
}
