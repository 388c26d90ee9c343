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

// Package modesetting applies and reverts USB gadget modes: it programs
// the gadget through the active backend, runs the mass-storage
// share/unshare protocol and coordinates the side effects a mode change
// implies (network, DHCP/NAT, companion applications, tethering).
package modesetting

import (
	"sync"
	"time"

	"github.com/sailfishos/usbmoded/config"
	"github.com/sailfishos/usbmoded/logger"
	"github.com/sailfishos/usbmoded/modeconf"
	"github.com/sailfishos/usbmoded/umdbus"
)

// Signaler notifies clients about mode change phases and errors. All
// methods are fire-and-forget.
type Signaler interface {
	StateSignal(state string)
	ErrorSignal(code string)
}

// NetworkManager brings gadget network interfaces up and down.
type NetworkManager interface {
	Up(mode *modeconf.ModeData) error
	Down(mode *modeconf.ModeData)
	SetupDHCP(mode *modeconf.ModeData) error
}

// AppSyncer starts and stops the companion applications of a mode.
type AppSyncer interface {
	ActivatePre(mode string) error
	ActivatePost(mode string)
	StopAll(force bool)
}

// TetheringClient toggles tethering on a connection manager technology.
type TetheringClient interface {
	SetTethering(technology string, enable bool) error
}

var (
	// delay between a failed network bring-up and its retry
	networkRetryDelay = 3 * time.Second
	// delay before the post sync so interfaces can settle
	settleDelay = 350 * time.Millisecond
	// delay between unmounting and programming the gadget, so host
	// side enumeration can finish first
	enumerationDelay = time.Second

	sleep = time.Sleep
)

// ModeSetting is the mode activation engine. One instance exists per
// daemon; callers are expected to serialize SetDynamicMode,
// UnsetDynamicMode and Cleanup invocations.
type ModeSetting struct {
	cfg     *config.Config
	backend Backend
	sig     Signaler
	net     NetworkManager
	apps    AppSyncer
	tether  TetheringClient

	mu      sync.Mutex
	tracked map[string]string
	saved   map[string]string
	retry   *time.Timer
	current *modeconf.ModeData
}

// New creates the mode activation engine. The tether client may be nil
// when no connection manager is available.
func New(cfg *config.Config, backend Backend, sig Signaler, net NetworkManager, apps AppSyncer, tether TetheringClient) *ModeSetting {
	return &ModeSetting{
		cfg:     cfg,
		backend: backend,
		sig:     sig,
		net:     net,
		apps:    apps,
		tether:  tether,
		tracked: make(map[string]string),
		saved:   make(map[string]string),
	}
}

// Quit releases the engine's dynamic resources. The engine must not be
// used afterwards.
func (ms *ModeSetting) Quit() {
	ms.cancelNetworkRetry()

	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.tracked = nil
	ms.saved = nil
}

// Backend returns the gadget backend the engine was set up with.
func (ms *ModeSetting) ActiveBackend() Backend {
	return ms.backend
}

func (ms *ModeSetting) currentMode() *modeconf.ModeData {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.current
}

func (ms *ModeSetting) setCurrent(mode *modeconf.ModeData) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.current = mode
}

// SetDynamicMode applies the given mode. The returned error reflects
// the gadget programming outcome: failures in networking, appsync post
// activation or tethering are logged and compensated where possible but
// do not fail an otherwise successful activation.
func (ms *ModeSetting) SetDynamicMode(mode *modeconf.ModeData) error {
	ms.setCurrent(mode)

	if mode.MassStorage {
		return ms.setMassStorageMode(mode)
	}

	if mode.AppSync {
		if err := ms.apps.ActivatePre(mode.Name); err != nil {
			logger.Noticef("appsync failure: %v", err)
			return err
		}
	}

	err := ms.backend.set(ms, mode)

	if mode.Network {
		ms.net.Down(mode)
		if nerr := ms.net.Up(mode); nerr != nil {
			// functionfs based gadgets may need a moment before
			// the interface can be brought up
			logger.Debugf("cannot bring network up, retrying later: %v", nerr)
			ms.scheduleNetworkRetry(mode)
		}
	}

	// the dhcp server must see the just-applied network state, so this
	// comes before the post sync
	if mode.NAT || mode.DHCPServer {
		if derr := ms.net.SetupDHCP(mode); derr != nil {
			logger.Noticef("cannot set up DHCP/NAT: %v", derr)
		}
	}

	if mode.AppSync && err == nil {
		sleep(settleDelay)
		ms.apps.ActivatePost(mode.Name)
	}

	if mode.ConnmanTethering != "" && ms.tether != nil {
		if terr := ms.tether.SetTethering(mode.ConnmanTethering, true); terr != nil {
			logger.Noticef("cannot enable tethering: %v", terr)
		}
	}

	if err != nil {
		ms.sig.ErrorSignal(umdbus.ModeSettingFailed)
	}
	return err
}

// UnsetDynamicMode reverts whatever the last successful or attempted
// SetDynamicMode did. Idle is a valid state: with no active mode this
// returns immediately.
func (ms *ModeSetting) UnsetDynamicMode() {
	ms.cancelNetworkRetry()

	mode := ms.currentMode()
	if mode == nil {
		return
	}
	defer ms.setCurrent(nil)

	if mode.MassStorage {
		ms.unsetMassStorageMode(mode)
		return
	}

	if mode.ConnmanTethering != "" && ms.tether != nil {
		if err := ms.tether.SetTethering(mode.ConnmanTethering, false); err != nil {
			logger.Noticef("cannot disable tethering: %v", err)
		}
	}

	if mode.Network {
		ms.net.Down(mode)
	}

	ms.backend.unset(ms, mode)
}

// Cleanup performs the extra actions needed after the module of the
// given name was unloaded. It is best effort: teardown problems are
// logged, never surfaced.
func (ms *ModeSetting) Cleanup(module string) {
	logger.Debugf("cleaning up mode")

	if module == "" {
		logger.Noticef("no module found to unload, skipping cleanup")
		return
	}

	// stop applications started due to entering this mode
	ms.apps.StopAll(false)

	switch {
	case module == modeconf.ModuleMassStorage || module == modeconf.ModuleFileStorage:
		// mass-storage doubles as the charging implementation and
		// nothing was shared in that case
		if mode := ms.currentMode(); mode != nil &&
			(mode.Name == modeconf.ModeCharging || mode.Name == modeconf.ModeChargingFallback) {
			return
		}
		ms.unsetMassStorageMode(nil)
	case ms.currentMode() != nil:
		ms.UnsetDynamicMode()
	}
}

func (ms *ModeSetting) scheduleNetworkRetry(mode *modeconf.ModeData) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.retry != nil {
		ms.retry.Stop()
	}
	// an already-fired timer's callback may still be on its way to the
	// lock, so it must only act while it is the current one
	var t *time.Timer
	t = time.AfterFunc(networkRetryDelay, func() {
		ms.mu.Lock()
		current := ms.retry == t
		if current {
			ms.retry = nil
		}
		ms.mu.Unlock()
		if !current {
			return
		}
		if err := ms.net.Up(mode); err != nil {
			logger.Noticef("cannot bring network up: %v", err)
		}
	})
	ms.retry = t
}

func (ms *ModeSetting) cancelNetworkRetry() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.retry != nil {
		ms.retry.Stop()
		ms.retry = nil
	}
}
