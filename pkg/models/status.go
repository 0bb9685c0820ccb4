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

// Package models contains the shared data types exchanged between the device
// client, the polling coordinator, and the publishers.
package models

// UnknownMode is the sentinel the device client reports when no usable mode
// payload arrived. A record carrying it is never treated as valid data.
const UnknownMode = "Unknown"

// Battery status strings derived from the sign of the battery power reading.
const (
	BatteryCharging    = "charging"
	BatteryDischarging = "discharging"
	BatteryIdle        = "idle"
)

// DeviceStatus is the merged snapshot of all tiers' most recently fetched
// values for a single device. The fast-tier scalar fields are refreshed on
// every successful poll. The pointer-typed groups belong to the slower tiers:
// they stay nil until their tier has been fetched at least once and are
// carried forward unchanged on cycles that skip the tier, so the record is
// always cumulative rather than a sparse delta.
type DeviceStatus struct {
	DeviceMode    string  `json:"device_mode"`
	BatterySOC    float64 `json:"battery_soc"`
	BatteryPower  float64 `json:"battery_power"`
	BatteryStatus string  `json:"battery_status"`
	GridPower     float64 `json:"grid_power"`
	OutputPower   float64 `json:"output_power"`

	PV            *PVStatus      `json:"pv,omitempty"`
	WiFi          *WiFiStatus    `json:"wifi,omitempty"`
	BatteryDetail *BatteryDetail `json:"battery_detail,omitempty"`
}

// PVStatus holds the solar metrics fetched on the medium tier.
type PVStatus struct {
	Power   float64 `json:"pv_power"`
	Voltage float64 `json:"pv_voltage"`
	Current float64 `json:"pv_current"`
}

// WiFiStatus holds the radio metrics fetched on the slow tier.
type WiFiStatus struct {
	SSID string `json:"ssid"`
	RSSI int    `json:"rssi"`
	IP   string `json:"sta_ip"`
}

// BatteryDetail holds the slow-changing battery metrics fetched on the slow tier.
type BatteryDetail struct {
	Temperature      float64 `json:"temperature"`
	RatedCapacity    float64 `json:"rated_capacity"`
	ChargeEnabled    bool    `json:"charge_enabled"`
	DischargeEnabled bool    `json:"discharge_enabled"`
}

// NewDeviceStatus returns an empty record carrying the Unknown sentinel.
func NewDeviceStatus() *DeviceStatus {
	return &DeviceStatus{DeviceMode: UnknownMode}
}

// Valid reports whether the record contains real device data.
func (s *DeviceStatus) Valid() bool {
	return s != nil && s.DeviceMode != "" && s.DeviceMode != UnknownMode
}

// Clone returns a deep copy of the record. A nil receiver yields nil.
func (s *DeviceStatus) Clone() *DeviceStatus {
	if s == nil {
		return nil
	}

	clone := *s

	if s.PV != nil {
		pv := *s.PV
		clone.PV = &pv
	}

	if s.WiFi != nil {
		wifi := *s.WiFi
		clone.WiFi = &wifi
	}

	if s.BatteryDetail != nil {
		detail := *s.BatteryDetail
		clone.BatteryDetail = &detail
	}

	return &clone
}

// MergeStatus merges a freshly fetched record onto the previous one. Fields
// set in next win; tier groups next left nil are copied from prev so values
// survive cycles that skipped the tier. Neither argument is mutated.
func MergeStatus(prev, next *DeviceStatus) *DeviceStatus {
	if next == nil {
		return prev.Clone()
	}

	merged := next.Clone()

	if prev == nil {
		return merged
	}

	if merged.PV == nil && prev.PV != nil {
		pv := *prev.PV
		merged.PV = &pv
	}

	if merged.WiFi == nil && prev.WiFi != nil {
		wifi := *prev.WiFi
		merged.WiFi = &wifi
	}

	if merged.BatteryDetail == nil && prev.BatteryDetail != nil {
		detail := *prev.BatteryDetail
		merged.BatteryDetail = &detail
	}

	return merged
}
