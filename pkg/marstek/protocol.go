package marstek

import (
	"encoding/json"
	"fmt"
)

// DefaultPort is the UDP port the device firmware listens on.
const DefaultPort = 30000

// RPC methods understood by the device firmware, grouped by polling tier.
const (
	methodGetDevice   = "Marstek.GetDevice"
	methodESGetMode   = "ES.GetMode"     // fast
	methodESGetStatus = "ES.GetStatus"   // fast
	methodEMGetStatus = "EM.GetStatus"   // fast
	methodPVGetStatus = "PV.GetStatus"   // medium
	methodWifiStatus  = "Wifi.GetStatus" // slow
	methodBatStatus   = "Bat.GetStatus"  // slow
)

// request is the JSON-RPC style envelope sent to the device. The firmware
// echoes the id back in its response.
type request struct {
	ID     int             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type response struct {
	ID     int             `json:"id"`
	Src    string          `json:"src,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *responseError  `json:"error,omitempty"`
}

type responseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *responseError) Error() string {
	return fmt.Sprintf("device error %d: %s", e.Code, e.Message)
}

// defaultParams targets the first (and on current firmware, only) energy
// system instance.
var defaultParams = json.RawMessage(`{"id":0}`)

// DeviceInfo is returned by Marstek.GetDevice and identifies the hardware.
type DeviceInfo struct {
	Name     string `json:"device"`
	Version  string `json:"ver"`
	BLEMAC   string `json:"ble_mac"`
	WiFiMAC  string `json:"wifi_mac"`
	WiFiName string `json:"wifi_name"`
}

type esModeResult struct {
	Mode string `json:"mode"`
}

type esStatusResult struct {
	BatterySOC   float64 `json:"bat_soc"`
	BatteryPower float64 `json:"bat_power"`
	OutputPower  float64 `json:"ongrid_power"`
}

type emStatusResult struct {
	TotalPower float64 `json:"total_power"`
}

type pvStatusResult struct {
	Power   float64 `json:"pv_power"`
	Voltage float64 `json:"pv_voltage"`
	Current float64 `json:"pv_current"`
}

type wifiStatusResult struct {
	SSID string `json:"ssid"`
	RSSI int    `json:"rssi"`
	IP   string `json:"sta_ip"`
}

type batStatusResult struct {
	Temperature      float64 `json:"bat_temp"`
	RatedCapacity    float64 `json:"rated_capacity"`
	ChargeEnabled    bool    `json:"charg_flag"`
	DischargeEnabled bool    `json:"dischrg_flag"`
}
