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

// Package connman toggles tethering on ConnMan technologies.
package connman

import (
	"github.com/godbus/dbus/v5"
)

const (
	busName            = "net.connman"
	technologyPath     = "/net/connman/technology/"
	technologyIface    = "net.connman.Technology"
	setPropertyMethod  = technologyIface + ".SetProperty"
	tetheringProperty  = "Tethering"
)

// Client drives ConnMan over the system bus.
type Client struct {
	conn *dbus.Conn
}

// New wraps an existing bus connection.
func New(conn *dbus.Conn) *Client {
	return &Client{conn: conn}
}

// SetTethering enables or disables tethering on the given technology
// (e.g. "usb" or "bluetooth").
func (c *Client) SetTethering(technology string, enable bool) error {
	obj := c.conn.Object(busName, dbus.ObjectPath(technologyPath+technology))
	return obj.Call(setPropertyMethod, 0, tetheringProperty, dbus.MakeVariant(enable)).Err
}
