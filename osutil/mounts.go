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

package osutil

import (
	"bufio"
	"os"
	"strings"

	"github.com/sailfishos/usbmoded/dirs"
)

// IsMounted checks if a given directory is a mount point of some
// filesystem, according to /proc/self/mounts.
func IsMounted(mountpoint string) (bool, error) {
	f, err := os.Open(dirs.ProcSelfMounts)
	if err != nil {
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		if unescapeMountPath(fields[1]) == mountpoint {
			return true, nil
		}
	}
	return false, scanner.Err()
}

// unescapeMountPath undoes the octal escaping the kernel applies to
// whitespace in mount table entries.
func unescapeMountPath(path string) string {
	if !strings.Contains(path, `\`) {
		return path
	}
	var sb strings.Builder
	for i := 0; i < len(path); i++ {
		if path[i] == '\\' && i+3 < len(path) {
			sb.WriteByte((path[i+1]-'0')<<6 | (path[i+2]-'0')<<3 | (path[i+3] - '0'))
			i += 3
			continue
		}
		sb.WriteByte(path[i])
	}
	return sb.String()
}
