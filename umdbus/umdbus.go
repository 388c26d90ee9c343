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

// Package umdbus implements the usb-moded D-Bus signal surface. All
// emission is fire-and-forget: a missing or broken bus connection never
// fails the caller.
package umdbus

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/sailfishos/usbmoded/logger"
)

const (
	BusName    = "com.meego.usb_moded"
	ObjectPath = dbus.ObjectPath("/com/meego/usbmoded")
	Interface  = "com.meego.usb_moded"

	stateSignal          = "sig_usb_state_ind"
	errorSignal          = "sig_usb_state_error_ind"
	supportedModesSignal = "sig_usb_supported_modes_ind"
)

// Mode change phases signalled to clients.
const (
	PreUnmount = "pre-unmount"
	DataInUse  = "data_in_use"
)

// Error codes signalled to clients.
const (
	UmountError       = "umount_error"
	RemountFailed     = "mount_failed"
	ModeSettingFailed = "mode_setting_failed"
)

// Emitter sends usb-moded signals on the system bus.
type Emitter struct {
	conn *dbus.Conn
}

// Connect opens a private system bus connection and claims the
// usb-moded bus name.
func Connect() (*Emitter, error) {
	conn, err := dbus.SystemBusPrivate()
	if err != nil {
		return nil, err
	}
	if err := conn.Auth(nil); err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.Hello(); err != nil {
		conn.Close()
		return nil, err
	}
	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("cannot claim bus name %q", BusName)
	}
	return &Emitter{conn: conn}, nil
}

// NewEmitter wraps an existing bus connection, which may be nil.
func NewEmitter(conn *dbus.Conn) *Emitter {
	return &Emitter{conn: conn}
}

// Close releases the bus connection.
func (e *Emitter) Close() {
	if e.conn != nil {
		e.conn.Close()
		e.conn = nil
	}
}

func (e *Emitter) emit(name string, args ...interface{}) {
	if e == nil || e.conn == nil {
		return
	}
	if err := e.conn.Emit(ObjectPath, Interface+"."+name, args...); err != nil {
		logger.Noticef("cannot emit %s: %v", name, err)
	}
}

// StateSignal tells clients that the given mode change phase was
// entered.
func (e *Emitter) StateSignal(state string) {
	logger.Debugf("state signal: %s", state)
	e.emit(stateSignal, state)
}

// ErrorSignal tells clients that something went wrong while switching
// modes.
func (e *Emitter) ErrorSignal(code string) {
	logger.Debugf("error signal: %s", code)
	e.emit(errorSignal, code)
}

// SupportedModesSignal publishes the list of configured modes.
func (e *Emitter) SupportedModesSignal(modes string) {
	e.emit(supportedModesSignal, modes)
}
