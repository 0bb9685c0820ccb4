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

package coordinator

import (
	"time"

	"github.com/homegridlabs/marstekmon/pkg/marstek"
	"github.com/homegridlabs/marstekmon/pkg/models"
)

// Default polling cadences. The device delivers real-time power on every
// tick; PV changes with the sun and WiFi/battery details rarely change at
// all, so they refresh on slower tiers.
const (
	DefaultPollInterval   = 30 * time.Second
	DefaultPVInterval     = 60 * time.Second
	DefaultSlowInterval   = 5 * time.Minute
	DefaultRequestTimeout = 10 * time.Second
	DefaultRequestSpacing = 10 * time.Second
)

// Config describes one device's polling coordinator.
type Config struct {
	// Address is the device's current IP address. It can change at runtime
	// via Rebind; DeviceID is the stable identifier.
	Address  string `json:"address"`
	Port     int    `json:"port,omitempty"`
	DeviceID string `json:"device_id,omitempty"`

	PollInterval   models.Duration `json:"poll_interval,omitempty"`
	PVInterval     models.Duration `json:"pv_interval,omitempty"`
	SlowInterval   models.Duration `json:"slow_interval,omitempty"`
	RequestTimeout models.Duration `json:"request_timeout,omitempty"`
	RequestSpacing models.Duration `json:"request_spacing,omitempty"`
}

// Validate implements config.Validator and applies defaults.
func (c *Config) Validate() error {
	if c.Address == "" {
		return errAddressRequired
	}

	if c.Port == 0 {
		c.Port = marstek.DefaultPort
	}

	if time.Duration(c.PollInterval) == 0 {
		c.PollInterval = models.Duration(DefaultPollInterval)
	}

	if time.Duration(c.PVInterval) == 0 {
		c.PVInterval = models.Duration(DefaultPVInterval)
	}

	if time.Duration(c.SlowInterval) == 0 {
		c.SlowInterval = models.Duration(DefaultSlowInterval)
	}

	if time.Duration(c.RequestTimeout) == 0 {
		c.RequestTimeout = models.Duration(DefaultRequestTimeout)
	}

	if time.Duration(c.RequestSpacing) == 0 {
		c.RequestSpacing = models.Duration(DefaultRequestSpacing)
	}

	return nil
}
