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
	"strings"
)

// Rebind points the coordinator at a new device address and propagates the
// rename to every registry record whose display name contains the old
// address as a literal substring. The replacement is textual, not semantic:
// names that do not contain the old address are left untouched. Returns how
// many names were updated.
//
// A missing registry device for the configured identifier skips the device
// rename silently; address rebinding still takes effect for polling.
func (c *Coordinator) Rebind(oldAddress, newAddress string) (int, error) {
	if newAddress == "" {
		return 0, errAddressRequired
	}

	if newAddress == oldAddress {
		return 0, nil
	}

	c.mu.Lock()
	c.address = newAddress
	c.mu.Unlock()

	c.logger.Info().
		Str("old_address", oldAddress).
		Str("new_address", newAddress).
		Msg("Device address changed, updating names")

	if c.registry == nil {
		return 0, nil
	}

	updated := 0

	device, ok := c.registry.DeviceByIdentifier(c.config.DeviceID)
	if !ok {
		c.logger.Debug().
			Str("device_id", c.config.DeviceID).
			Msg("No registry device for identifier, skipping device rename")
	} else if device.Name != "" && strings.Contains(device.Name, oldAddress) {
		newName := strings.ReplaceAll(device.Name, oldAddress, newAddress)

		if err := c.registry.UpdateDeviceName(device.Identifier, newName); err != nil {
			c.logger.Warn().Err(err).Str("device_id", device.Identifier).Msg("Failed to update device name")
		} else {
			c.logger.Info().Str("old_name", device.Name).Str("new_name", newName).Msg("Updated device name")

			updated++
		}
	}

	for _, entry := range c.registry.EntriesForDevice(c.config.DeviceID) {
		if entry.Name == "" || !strings.Contains(entry.Name, oldAddress) {
			continue
		}

		newName := strings.ReplaceAll(entry.Name, oldAddress, newAddress)

		if err := c.registry.UpdateEntryName(entry.ID, newName); err != nil {
			c.logger.Warn().Err(err).Str("entry_id", entry.ID).Msg("Failed to update entry name")
			continue
		}

		c.logger.Debug().
			Str("entry_id", entry.ID).
			Str("old_name", entry.Name).
			Str("new_name", newName).
			Msg("Updated entry name")

		updated++
	}

	if updated > 0 {
		c.logger.Info().
			Int("updated", updated).
			Str("old_address", oldAddress).
			Str("new_address", newAddress).
			Msg("Updated names to reflect new address")
	}

	return updated, nil
}
