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

// Package appsync starts and stops the companion applications that a
// mode wants running, as systemd units. Which units belong to which
// mode comes from ini files in the appsync configuration directory.
package appsync

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mvo5/goconfigparser"

	"github.com/sailfishos/usbmoded/dirs"
	"github.com/sailfishos/usbmoded/logger"
)

// App is one companion application tied to a mode.
type App struct {
	Name string
	// Mode is the mode name the app belongs to.
	Mode string
	// Unit is the systemd unit to start.
	Unit string
	// Post marks apps started after the gadget is programmed rather
	// than before.
	Post bool
}

// SystemdClient is the subset of the systemd D-Bus API used here. It is
// satisfied by *dbus.Conn from github.com/coreos/go-systemd/dbus.
type SystemdClient interface {
	StartUnit(name string, mode string, ch chan<- string) (int, error)
	StopUnit(name string, mode string, ch chan<- string) (int, error)
}

// Manager drives the configured companion applications.
type Manager struct {
	systemd SystemdClient
	apps    []*App

	started map[string]bool
}

func New(systemd SystemdClient, apps []*App) *Manager {
	return &Manager{
		systemd: systemd,
		apps:    apps,
		started: make(map[string]bool),
	}
}

// LoadAll reads the appsync configuration directory. Entries without a
// name, mode or unit are skipped with the reason logged.
func LoadAll() []*App {
	entries, err := os.ReadDir(dirs.AppSyncDir)
	if err != nil {
		logger.Debugf("cannot open appsync configuration directory: %v", err)
		return nil
	}

	var apps []*App
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		filename := filepath.Join(dirs.AppSyncDir, entry.Name())
		app, err := load(filename)
		if err != nil {
			logger.Noticef("skipping appsync configuration: %v", err)
			continue
		}
		apps = append(apps, app)
	}
	return apps
}

func load(filename string) (*App, error) {
	parser := goconfigparser.New()
	if err := parser.ReadFile(filename); err != nil {
		return nil, fmt.Errorf("cannot read %s: %v", filename, err)
	}
	get := func(key string) string {
		val, err := parser.Get("sync", key)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(val)
	}
	app := &App{
		Name: get("name"),
		Mode: get("mode"),
		Unit: get("unit"),
		Post: get("post") == "1",
	}
	if app.Name == "" || app.Mode == "" || app.Unit == "" {
		return nil, fmt.Errorf("%s: name, mode or unit not defined", filename)
	}
	return app, nil
}

func (m *Manager) startApp(app *App) error {
	ch := make(chan string, 1)
	if _, err := m.systemd.StartUnit(app.Unit, "replace", ch); err != nil {
		return err
	}
	if result := <-ch; result != "done" {
		return fmt.Errorf("cannot start unit %s: job result is %q", app.Unit, result)
	}
	m.started[app.Unit] = true
	return nil
}

// ActivatePre starts the applications the given mode needs running
// before the gadget is programmed. The first failure aborts.
func (m *Manager) ActivatePre(mode string) error {
	for _, app := range m.apps {
		if app.Mode != mode || app.Post {
			continue
		}
		logger.Debugf("starting %s for mode %s", app.Unit, mode)
		if err := m.startApp(app); err != nil {
			return err
		}
	}
	return nil
}

// ActivatePost starts the applications marked for post-activation
// start. Failures are logged only.
func (m *Manager) ActivatePost(mode string) {
	for _, app := range m.apps {
		if app.Mode != mode || !app.Post {
			continue
		}
		logger.Debugf("starting %s for mode %s", app.Unit, mode)
		if err := m.startApp(app); err != nil {
			logger.Noticef("cannot start %s: %v", app.Unit, err)
		}
	}
}

// StopAll stops the applications started for the current mode. With
// force set, every configured unit is stopped whether or not this
// daemon started it.
func (m *Manager) StopAll(force bool) {
	for _, app := range m.apps {
		if !force && !m.started[app.Unit] {
			continue
		}
		ch := make(chan string, 1)
		if _, err := m.systemd.StopUnit(app.Unit, "replace", ch); err != nil {
			logger.Noticef("cannot stop %s: %v", app.Unit, err)
			continue
		}
		<-ch
		delete(m.started, app.Unit)
	}
}
