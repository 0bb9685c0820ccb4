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

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/homegridlabs/marstekmon/pkg/coordinator"
	"github.com/homegridlabs/marstekmon/pkg/logger"
	"github.com/homegridlabs/marstekmon/pkg/mqtt"
)

var errNoDevices = errors.New("at least one device is required")

// DeviceConfig is one polled device plus its display name.
type DeviceConfig struct {
	coordinator.Config

	Name string `json:"name,omitempty"`
}

// Config is the process configuration. MQTT is optional; without it the
// process polls and logs only.
type Config struct {
	Devices []DeviceConfig `json:"devices"`
	MQTT    *mqtt.Config   `json:"mqtt,omitempty"`
	Logging *logger.Config `json:"logging,omitempty"`
}

// Validate implements config.Validator and applies defaults. The device
// identifier defaults to the address, which disables rename propagation on
// rebinds; set a stable identifier to keep names in sync across address
// changes.
func (c *Config) Validate() error {
	if len(c.Devices) == 0 {
		return errNoDevices
	}

	seen := make(map[string]struct{}, len(c.Devices))

	for i := range c.Devices {
		device := &c.Devices[i]

		if err := device.Config.Validate(); err != nil {
			return fmt.Errorf("device %d: %w", i, err)
		}

		if device.DeviceID == "" {
			device.DeviceID = device.Address
		}

		if device.Name == "" {
			device.Name = "Marstek " + device.Address
		}

		if _, dup := seen[device.DeviceID]; dup {
			return fmt.Errorf("duplicate device id %q", device.DeviceID)
		}

		seen[device.DeviceID] = struct{}{}
	}

	if c.MQTT != nil {
		if err := c.MQTT.Validate(); err != nil {
			return err
		}
	}

	if c.Logging == nil {
		c.Logging = logger.DefaultConfig()
	}

	return nil
}

// topicID maps a device identifier (typically a MAC or an IP) to a
// topic-safe slug.
func topicID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, id)
}
