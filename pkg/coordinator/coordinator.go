/*
 * Copyright 2026 HomeGrid Labs.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package coordinator implements the tiered polling loop for a single
// Marstek device. Real-time power data is fetched on every tick, PV metrics
// on a medium cadence, and WiFi/battery details on a slow cadence; results
// are merged into one cumulative record and the last known good record stays
// readable across failed polls.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/homegridlabs/marstekmon/pkg/logger"
	"github.com/homegridlabs/marstekmon/pkg/marstek"
	"github.com/homegridlabs/marstekmon/pkg/models"
	"github.com/homegridlabs/marstekmon/pkg/registry"
)

// UpdateFunc is invoked after every completed poll cycle with the merged
// record on success, or with the typed failure. On failure the record is the
// last known good one (possibly nil).
type UpdateFunc func(status *models.DeviceStatus, err error)

// Coordinator polls one device. At most one Poll is in flight at a time;
// Start serializes ticks and never overlaps cycles.
type Coordinator struct {
	config   Config
	client   DeviceClient
	registry registry.Store // optional; nil disables rename propagation
	clock    Clock
	logger   logger.Logger

	mu            sync.RWMutex
	address       string
	current       *models.DeviceStatus
	pvLastFetch   time.Time
	slowLastFetch time.Time
	listeners     []UpdateFunc

	ticker    Ticker
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a coordinator for one device. store may be nil when no naming
// registry is in play; clock may be nil to use the real clock.
func New(config *Config, client DeviceClient, store registry.Store, clock Clock, log logger.Logger) (*Coordinator, error) {
	if client == nil {
		return nil, errClientRequired
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if clock == nil {
		clock = realClock{}
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	c := &Coordinator{
		config:   *config,
		client:   client,
		registry: store,
		clock:    clock,
		logger:   log,
		address:  config.Address,
		done:     make(chan struct{}),
	}

	c.logger.Debug().
		Str("address", c.address).
		Dur("fast_interval", time.Duration(c.config.PollInterval)).
		Dur("pv_interval", time.Duration(c.config.PVInterval)).
		Dur("slow_interval", time.Duration(c.config.SlowInterval)).
		Msg("Polling coordinator created")

	return c, nil
}

// Address returns the address currently used to reach the device.
func (c *Coordinator) Address() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.address
}

// DeviceID returns the device's stable identifier, if configured.
func (c *Coordinator) DeviceID() string {
	return c.config.DeviceID
}

// Current returns a copy of the last known device record. It keeps returning
// the pre-failure record while polls are failing, so stale readings remain
// available for display.
func (c *Coordinator) Current() *models.DeviceStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.current.Clone()
}

// OnUpdate registers fn to run after every completed poll cycle. Listeners
// run synchronously on the polling goroutine, in registration order.
func (c *Coordinator) OnUpdate(fn UpdateFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listeners = append(c.listeners, fn)
}

// Poll executes one polling cycle: decide which tiers are due, fetch, merge,
// validate, store. On any failure the previous record and the tier
// timestamps are left untouched, so the failed attempt does not count
// against the cadence and the next tick retries.
func (c *Coordinator) Poll(ctx context.Context) (*models.DeviceStatus, error) {
	address := c.Address()

	if c.client.IsPollingPaused(address) {
		c.logger.Debug().Str("address", address).Msg("Polling paused, skipping update")
		return c.Current(), nil
	}

	now := c.clock.Now()

	c.mu.RLock()
	includePV := c.pvLastFetch.IsZero() || now.Sub(c.pvLastFetch) >= time.Duration(c.config.PVInterval)
	includeSlow := c.slowLastFetch.IsZero() || now.Sub(c.slowLastFetch) >= time.Duration(c.config.SlowInterval)
	previous := c.current
	c.mu.RUnlock()

	c.logger.Debug().
		Str("address", address).
		Bool("include_pv", includePV).
		Bool("include_slow", includeSlow).
		Msg("Polling tiers: fast=always")

	status, err := c.client.GetDeviceStatus(ctx, &marstek.FetchRequest{
		Address:           address,
		Port:              c.config.Port,
		Timeout:           time.Duration(c.config.RequestTimeout),
		IncludePV:         includePV,
		IncludeWiFi:       includeSlow,
		IncludeEM:         true,
		IncludeBattery:    includeSlow,
		MinRequestSpacing: time.Duration(c.config.RequestSpacing),
		Previous:          previous,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("address", address).Msg("Device status request failed")
		return nil, fmt.Errorf("%w for %s: %w", ErrPollFailed, address, err)
	}

	if !status.Valid() {
		// The client answered without a transport error but produced the
		// Unknown sentinel: a silent failure, reported distinctly.
		c.logger.Warn().
			Str("address", address).
			Str("device_mode", models.UnknownMode).
			Msg("No valid data received from device, treating as failed poll")

		return nil, fmt.Errorf("%w for %s: %w", ErrPollFailed, address, ErrDataUnavailable)
	}

	c.mu.Lock()
	if includePV {
		c.pvLastFetch = now
	}

	if includeSlow {
		c.slowLastFetch = now
	}

	c.current = status
	c.mu.Unlock()

	c.logger.Debug().
		Str("address", address).
		Float64("battery_soc", status.BatterySOC).
		Float64("battery_power", status.BatteryPower).
		Str("device_mode", status.DeviceMode).
		Str("battery_status", status.BatteryStatus).
		Bool("pv", includePV).
		Bool("slow", includeSlow).
		Msg("Poll done")

	return status.Clone(), nil
}

// Start implements the lifecycle.Service interface: it polls once
// immediately, then on every tick until the context is canceled or Stop is
// called. Ticks are handled inline so polls for one device never overlap.
func (c *Coordinator) Start(ctx context.Context) error {
	interval := time.Duration(c.config.PollInterval)
	c.ticker = c.clock.Ticker(interval)

	defer c.ticker.Stop()

	c.logger.Info().Str("address", c.Address()).Dur("interval", interval).Msg("Starting polling coordinator")

	c.pollAndNotify(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case <-c.ticker.Chan():
			c.pollAndNotify(ctx)
		}
	}
}

// Stop implements the lifecycle.Service interface.
func (c *Coordinator) Stop(_ context.Context) error {
	c.closeOnce.Do(func() {
		close(c.done)
	})

	return nil
}

func (c *Coordinator) pollAndNotify(ctx context.Context) {
	status, err := c.Poll(ctx)
	if err != nil {
		c.logger.Error().Err(err).Str("address", c.Address()).Msg("Error during poll")

		status = c.Current()
	}

	c.mu.RLock()
	listeners := make([]UpdateFunc, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.RUnlock()

	for _, fn := range listeners {
		fn(status, err)
	}
}
