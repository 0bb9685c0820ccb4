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

// Package marstek implements the local UDP JSON-RPC API spoken by Marstek
// battery storage devices (Venus C/E, CT meters). The device answers one
// datagram per request and needs roughly ten seconds between requests to
// stay stable, so the client enforces a per-address minimum request spacing.
package marstek

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/homegridlabs/marstekmon/pkg/logger"
	"github.com/homegridlabs/marstekmon/pkg/models"
)

const (
	defaultTimeout = 10 * time.Second
	readBufferSize = 4096
)

// FetchRequest describes one combined status fetch. Tier inclusion flags
// select which RPC methods are issued; Previous, when set, is merged under
// the fresh values so tiers that were not requested carry forward.
type FetchRequest struct {
	Address           string
	Port              int
	Timeout           time.Duration
	IncludePV         bool
	IncludeWiFi       bool
	IncludeEM         bool
	IncludeBattery    bool
	MinRequestSpacing time.Duration
	Previous          *models.DeviceStatus
}

// Client is a UDP client for one or more Marstek devices. It is safe for
// concurrent use across devices; requests to a single address are spaced by
// MinRequestSpacing regardless of the caller.
type Client struct {
	logger logger.Logger

	mu          sync.Mutex
	nextID      int
	lastRequest map[string]time.Time
	paused      map[string]bool
}

// NewClient creates a device client. A nil logger discards output.
func NewClient(log logger.Logger) *Client {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Client{
		logger:      log,
		lastRequest: make(map[string]time.Time),
		paused:      make(map[string]bool),
	}
}

// PausePolling suppresses status fetches for the given address until
// ResumePolling is called. Used while firmware updates or mode changes are
// in flight.
func (c *Client) PausePolling(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.paused[address] = true
}

// ResumePolling re-enables status fetches for the given address.
func (c *Client) ResumePolling(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.paused, address)
}

// IsPollingPaused reports whether polling is paused for the given address.
func (c *Client) IsPollingPaused(address string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.paused[address]
}

// GetDevice fetches the hardware identity of the device at the given address.
func (c *Client) GetDevice(ctx context.Context, address string, port int, timeout time.Duration) (*DeviceInfo, error) {
	conn, err := c.dial(address, port)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	var info DeviceInfo

	if err := c.call(ctx, conn, address, methodGetDevice, timeout, 0, &info); err != nil {
		return nil, err
	}

	return &info, nil
}

// GetDeviceStatus performs a combined status fetch against one device.
// Fast-tier methods (ES.GetMode, ES.GetStatus) are always issued and their
// failure is a transport failure. Slower-tier methods are issued per the
// inclusion flags; when one of them fails the group is left unset and the
// previous value carries forward through the merge, matching the cumulative
// record contract.
func (c *Client) GetDeviceStatus(ctx context.Context, req *FetchRequest) (*models.DeviceStatus, error) {
	conn, err := c.dial(req.Address, req.Port)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	status := models.NewDeviceStatus()

	var mode esModeResult

	if err := c.call(ctx, conn, req.Address, methodESGetMode, timeout, req.MinRequestSpacing, &mode); err != nil {
		return nil, err
	}

	if mode.Mode != "" {
		status.DeviceMode = mode.Mode
	}

	var es esStatusResult

	if err := c.call(ctx, conn, req.Address, methodESGetStatus, timeout, req.MinRequestSpacing, &es); err != nil {
		return nil, err
	}

	status.BatterySOC = es.BatterySOC
	status.BatteryPower = es.BatteryPower
	status.OutputPower = es.OutputPower
	status.BatteryStatus = batteryStatus(es.BatteryPower)

	if req.IncludeEM {
		var em emStatusResult

		if err := c.call(ctx, conn, req.Address, methodEMGetStatus, timeout, req.MinRequestSpacing, &em); err != nil {
			c.logger.Warn().Err(err).Str("address", req.Address).Msg("EM status request failed")
		} else {
			status.GridPower = em.TotalPower
		}
	}

	if req.IncludePV {
		var pv pvStatusResult

		if err := c.call(ctx, conn, req.Address, methodPVGetStatus, timeout, req.MinRequestSpacing, &pv); err != nil {
			c.logger.Warn().Err(err).Str("address", req.Address).Msg("PV status request failed, keeping previous values")
		} else {
			status.PV = &models.PVStatus{Power: pv.Power, Voltage: pv.Voltage, Current: pv.Current}
		}
	}

	if req.IncludeWiFi {
		var wifi wifiStatusResult

		if err := c.call(ctx, conn, req.Address, methodWifiStatus, timeout, req.MinRequestSpacing, &wifi); err != nil {
			c.logger.Warn().Err(err).Str("address", req.Address).Msg("WiFi status request failed, keeping previous values")
		} else {
			status.WiFi = &models.WiFiStatus{SSID: wifi.SSID, RSSI: wifi.RSSI, IP: wifi.IP}
		}
	}

	if req.IncludeBattery {
		var bat batStatusResult

		if err := c.call(ctx, conn, req.Address, methodBatStatus, timeout, req.MinRequestSpacing, &bat); err != nil {
			c.logger.Warn().Err(err).Str("address", req.Address).Msg("Battery detail request failed, keeping previous values")
		} else {
			status.BatteryDetail = &models.BatteryDetail{
				Temperature:      bat.Temperature,
				RatedCapacity:    bat.RatedCapacity,
				ChargeEnabled:    bat.ChargeEnabled,
				DischargeEnabled: bat.DischargeEnabled,
			}
		}
	}

	return models.MergeStatus(req.Previous, status), nil
}

func (c *Client) dial(address string, port int) (net.Conn, error) {
	if port == 0 {
		port = DefaultPort
	}

	target := net.JoinHostPort(address, strconv.Itoa(port))

	conn, err := net.Dial("udp", target)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}

	return conn, nil
}

// call issues a single request and waits for the matching response.
// Datagrams with a different id (stray broadcasts, late answers to earlier
// requests) are skipped until the deadline expires.
func (c *Client) call(
	ctx context.Context,
	conn net.Conn,
	address, method string,
	timeout, spacing time.Duration,
	out interface{}) error {
	if err := c.waitTurn(ctx, address, spacing); err != nil {
		return err
	}

	id := c.requestID()

	payload, err := json.Marshal(request{ID: id, Method: method, Params: defaultParams})
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", method, err)
	}

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	c.markRequest(address)

	buf := make([]byte, readBufferSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := conn.Read(buf)
		if err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}

		var resp response

		if err := json.Unmarshal(buf[:n], &resp); err != nil {
			c.logger.Debug().Str("address", address).Str("method", method).Msg("Skipping undecodable datagram")
			continue
		}

		if resp.ID != id {
			continue
		}

		if resp.Error != nil {
			return fmt.Errorf("%s: %w", method, resp.Error)
		}

		if out == nil {
			return nil
		}

		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("%s: malformed result: %w", method, err)
		}

		return nil
	}
}

// waitTurn blocks until the per-address minimum request spacing has elapsed.
func (c *Client) waitTurn(ctx context.Context, address string, spacing time.Duration) error {
	if spacing <= 0 {
		return nil
	}

	c.mu.Lock()
	last, ok := c.lastRequest[address]
	c.mu.Unlock()

	if !ok {
		return nil
	}

	wait := spacing - time.Since(last)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) markRequest(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastRequest[address] = time.Now()
}

func (c *Client) requestID() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++

	return c.nextID
}

func batteryStatus(power float64) string {
	switch {
	case power > 0:
		return models.BatteryCharging
	case power < 0:
		return models.BatteryDischarging
	default:
		return models.BatteryIdle
	}
}
