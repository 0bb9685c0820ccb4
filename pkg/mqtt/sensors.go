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

package mqtt

// Sensor describes one Home Assistant sensor announced via discovery.
// ValueTemplate extracts the reading from the retained state JSON.
type Sensor struct {
	Key           string
	Name          string
	DeviceClass   string
	StateClass    string
	Unit          string
	ValueTemplate string
}

// DefaultSensors covers every field of the merged device record. Slow-tier
// sensors report nothing until their tier has been fetched once.
func DefaultSensors() []Sensor {
	return []Sensor{
		{
			Key:           "battery_soc",
			Name:          "Battery SOC",
			DeviceClass:   "battery",
			StateClass:    "measurement",
			Unit:          "%",
			ValueTemplate: "{{ value_json.battery_soc }}",
		},
		{
			Key:           "battery_power",
			Name:          "Battery Power",
			DeviceClass:   "power",
			StateClass:    "measurement",
			Unit:          "W",
			ValueTemplate: "{{ value_json.battery_power }}",
		},
		{
			Key:           "battery_status",
			Name:          "Battery Status",
			ValueTemplate: "{{ value_json.battery_status }}",
		},
		{
			Key:           "device_mode",
			Name:          "Device Mode",
			ValueTemplate: "{{ value_json.device_mode }}",
		},
		{
			Key:           "grid_power",
			Name:          "Grid Power",
			DeviceClass:   "power",
			StateClass:    "measurement",
			Unit:          "W",
			ValueTemplate: "{{ value_json.grid_power }}",
		},
		{
			Key:           "output_power",
			Name:          "Output Power",
			DeviceClass:   "power",
			StateClass:    "measurement",
			Unit:          "W",
			ValueTemplate: "{{ value_json.output_power }}",
		},
		{
			Key:           "pv_power",
			Name:          "PV Power",
			DeviceClass:   "power",
			StateClass:    "measurement",
			Unit:          "W",
			ValueTemplate: "{{ value_json.pv.pv_power if value_json.pv is defined else none }}",
		},
		{
			Key:           "wifi_rssi",
			Name:          "WiFi Signal",
			DeviceClass:   "signal_strength",
			StateClass:    "measurement",
			Unit:          "dBm",
			ValueTemplate: "{{ value_json.wifi.rssi if value_json.wifi is defined else none }}",
		},
		{
			Key:           "battery_temperature",
			Name:          "Battery Temperature",
			DeviceClass:   "temperature",
			StateClass:    "measurement",
			Unit:          "°C",
			ValueTemplate: "{{ value_json.battery_detail.temperature if value_json.battery_detail is defined else none }}",
		},
	}
}
