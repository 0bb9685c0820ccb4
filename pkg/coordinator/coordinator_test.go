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
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/homegridlabs/marstekmon/pkg/logger"
	"github.com/homegridlabs/marstekmon/pkg/marstek"
	"github.com/homegridlabs/marstekmon/pkg/models"
)

const testAddress = "192.168.1.50"

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(d)
}

func (f *fakeClock) Ticker(time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTicker{ch: make(chan time.Time, 1)}
	f.tickers = append(f.tickers, t)

	return t
}

func (f *fakeClock) tick() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, t := range f.tickers {
		t.ch <- f.now
	}
}

type fakeTicker struct {
	ch chan time.Time
}

func (t *fakeTicker) Chan() <-chan time.Time { return t.ch }
func (*fakeTicker) Stop()                    {}

// fakeDeviceClient records every fetch request and answers from a
// configurable respond function. The default emulates the real client:
// fresh values per requested tier, merged onto the previous record.
type fakeDeviceClient struct {
	mu       sync.Mutex
	paused   map[string]bool
	requests []*marstek.FetchRequest
	fetches  int
	respond  func(fetch int, req *marstek.FetchRequest) (*models.DeviceStatus, error)
}

func newFakeDeviceClient() *fakeDeviceClient {
	f := &fakeDeviceClient{paused: make(map[string]bool)}
	f.respond = f.mergedStatus

	return f
}

// mergedStatus fabricates a record whose values encode the fetch generation,
// so tests can tell a refreshed tier from a carried-forward one.
func (*fakeDeviceClient) mergedStatus(fetch int, req *marstek.FetchRequest) (*models.DeviceStatus, error) {
	fresh := &models.DeviceStatus{
		DeviceMode:    "Auto",
		BatterySOC:    float64(50 + fetch),
		BatteryPower:  -100,
		BatteryStatus: models.BatteryDischarging,
	}

	if req.IncludeEM {
		fresh.GridPower = float64(400 + fetch)
	}

	if req.IncludePV {
		fresh.PV = &models.PVStatus{Power: float64(100 * fetch)}
	}

	if req.IncludeWiFi {
		fresh.WiFi = &models.WiFiStatus{SSID: "home", RSSI: -fetch}
	}

	if req.IncludeBattery {
		fresh.BatteryDetail = &models.BatteryDetail{Temperature: float64(20 + fetch)}
	}

	return models.MergeStatus(req.Previous, fresh), nil
}

func (f *fakeDeviceClient) GetDeviceStatus(_ context.Context, req *marstek.FetchRequest) (*models.DeviceStatus, error) {
	f.mu.Lock()
	f.fetches++
	fetch := f.fetches
	f.requests = append(f.requests, req)
	respond := f.respond
	f.mu.Unlock()

	return respond(fetch, req)
}

func (f *fakeDeviceClient) IsPollingPaused(address string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.paused[address]
}

func (f *fakeDeviceClient) setPaused(address string, paused bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.paused[address] = paused
}

func (f *fakeDeviceClient) request(i int) *marstek.FetchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.requests[i]
}

func (f *fakeDeviceClient) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.requests)
}

func newTestCoordinator(t *testing.T, client DeviceClient, clock Clock) *Coordinator {
	t.Helper()

	c, err := New(&Config{Address: testAddress}, client, nil, clock, logger.NewTestLogger())
	require.NoError(t, err)

	return c
}

// MockDeviceClient is a testify mock of the DeviceClient interface.
type MockDeviceClient struct {
	mock.Mock
}

func (m *MockDeviceClient) GetDeviceStatus(ctx context.Context, req *marstek.FetchRequest) (*models.DeviceStatus, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.DeviceStatus), args.Error(1)
}

func (m *MockDeviceClient) IsPollingPaused(address string) bool {
	return m.Called(address).Bool(0)
}

func TestNewValidation(t *testing.T) {
	_, err := New(&Config{Address: testAddress}, nil, nil, nil, logger.NewTestLogger())
	require.ErrorIs(t, err, errClientRequired)

	_, err = New(&Config{}, newFakeDeviceClient(), nil, nil, logger.NewTestLogger())
	require.ErrorIs(t, err, errAddressRequired)
}

func TestConfigValidateAppliesDefaults(t *testing.T) {
	cfg := Config{Address: testAddress}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, marstek.DefaultPort, cfg.Port)
	assert.Equal(t, DefaultPollInterval, time.Duration(cfg.PollInterval))
	assert.Equal(t, DefaultPVInterval, time.Duration(cfg.PVInterval))
	assert.Equal(t, DefaultSlowInterval, time.Duration(cfg.SlowInterval))
	assert.Equal(t, DefaultRequestTimeout, time.Duration(cfg.RequestTimeout))
	assert.Equal(t, DefaultRequestSpacing, time.Duration(cfg.RequestSpacing))
}

func TestPollPausedReturnsPreviousRecordWithoutFetching(t *testing.T) {
	client := &MockDeviceClient{}
	client.On("IsPollingPaused", testAddress).Return(true)

	c := newTestCoordinator(t, client, newFakeClock())

	status, err := c.Poll(context.Background())
	require.NoError(t, err)
	assert.Nil(t, status, "nothing was ever polled, so the previous record is empty")

	client.AssertNotCalled(t, "GetDeviceStatus", mock.Anything, mock.Anything)
}

func TestPollPausedKeepsLastRecord(t *testing.T) {
	clock := newFakeClock()
	client := newFakeDeviceClient()
	c := newTestCoordinator(t, client, clock)

	first, err := c.Poll(context.Background())
	require.NoError(t, err)

	client.setPaused(testAddress, true)
	clock.Advance(30 * time.Second)

	status, err := c.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.BatterySOC, status.BatterySOC)
	assert.Equal(t, 1, client.requestCount(), "no fetch while paused")
}

func TestPollTierSchedule(t *testing.T) {
	clock := newFakeClock()
	client := newFakeDeviceClient()
	c := newTestCoordinator(t, client, clock)

	ctx := context.Background()

	// t=0: empty previous record, every tier included.
	status, err := c.Poll(ctx)
	require.NoError(t, err)

	req := client.request(0)
	assert.True(t, req.IncludePV)
	assert.True(t, req.IncludeWiFi)
	assert.True(t, req.IncludeBattery)
	assert.True(t, req.IncludeEM)
	assert.Nil(t, req.Previous)

	require.NotNil(t, status.PV)
	require.NotNil(t, status.WiFi)
	require.NotNil(t, status.BatteryDetail)

	pvAtZero := status.PV.Power
	wifiAtZero := status.WiFi.RSSI

	// t=30: fast tier only, slower tiers carried over unchanged.
	clock.Advance(30 * time.Second)

	status, err = c.Poll(ctx)
	require.NoError(t, err)

	req = client.request(1)
	assert.False(t, req.IncludePV)
	assert.False(t, req.IncludeWiFi)
	assert.False(t, req.IncludeBattery)
	assert.True(t, req.IncludeEM, "EM is fast tier, always requested")

	require.NotNil(t, status.PV)
	assert.InDelta(t, pvAtZero, status.PV.Power, 0.001, "PV carried over from t=0")
	assert.Equal(t, wifiAtZero, status.WiFi.RSSI, "WiFi carried over from t=0")

	// t=65: PV due again, slow tier still carried over.
	clock.Advance(35 * time.Second)

	status, err = c.Poll(ctx)
	require.NoError(t, err)

	req = client.request(2)
	assert.True(t, req.IncludePV)
	assert.False(t, req.IncludeWiFi)
	assert.False(t, req.IncludeBattery)

	require.NotNil(t, status.PV)
	assert.Greater(t, math.Abs(pvAtZero-status.PV.Power), 0.001, "PV refreshed at t=65")
	assert.Equal(t, wifiAtZero, status.WiFi.RSSI, "WiFi still carried over")

	// t=305: both slower tiers due.
	clock.Advance(240 * time.Second)

	_, err = c.Poll(ctx)
	require.NoError(t, err)

	req = client.request(3)
	assert.True(t, req.IncludePV)
	assert.True(t, req.IncludeWiFi)
	assert.True(t, req.IncludeBattery)
}

func TestPollTransportFailureRetainsState(t *testing.T) {
	clock := newFakeClock()
	client := newFakeDeviceClient()
	c := newTestCoordinator(t, client, clock)

	ctx := context.Background()

	first, err := c.Poll(ctx)
	require.NoError(t, err)

	errTimeout := errors.New("i/o timeout")

	client.mu.Lock()
	client.respond = func(int, *marstek.FetchRequest) (*models.DeviceStatus, error) {
		return nil, errTimeout
	}
	client.mu.Unlock()

	clock.Advance(30 * time.Second)

	_, err = c.Poll(ctx)
	require.ErrorIs(t, err, ErrPollFailed)
	require.ErrorIs(t, err, errTimeout)
	assert.NotErrorIs(t, err, ErrDataUnavailable)

	// The t=0 data stays readable until the next successful poll.
	current := c.Current()
	require.NotNil(t, current)
	assert.InDelta(t, first.BatterySOC, current.BatterySOC, 0.001)
}

func TestPollUnknownModeIsFailure(t *testing.T) {
	clock := newFakeClock()
	client := newFakeDeviceClient()

	client.respond = func(_ int, req *marstek.FetchRequest) (*models.DeviceStatus, error) {
		return models.MergeStatus(req.Previous, models.NewDeviceStatus()), nil
	}

	c := newTestCoordinator(t, client, clock)

	_, err := c.Poll(context.Background())
	require.ErrorIs(t, err, ErrPollFailed)
	require.ErrorIs(t, err, ErrDataUnavailable)
	assert.Nil(t, c.Current())
}

func TestPollFailureDoesNotAdvanceTierClocks(t *testing.T) {
	clock := newFakeClock()
	client := newFakeDeviceClient()
	c := newTestCoordinator(t, client, clock)

	ctx := context.Background()

	_, err := c.Poll(ctx)
	require.NoError(t, err)

	// t=65: PV is due, but the fetch fails.
	errDown := errors.New("connection refused")

	client.mu.Lock()
	client.respond = func(int, *marstek.FetchRequest) (*models.DeviceStatus, error) {
		return nil, errDown
	}
	client.mu.Unlock()

	clock.Advance(65 * time.Second)

	_, err = c.Poll(ctx)
	require.ErrorIs(t, err, ErrPollFailed)
	assert.True(t, client.request(1).IncludePV)

	// t=70: the failed attempt must not count, PV is still due.
	client.mu.Lock()
	client.respond = client.mergedStatus
	client.mu.Unlock()

	clock.Advance(5 * time.Second)

	_, err = c.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, client.request(2).IncludePV, "failed fetch must not advance the PV clock")
}

func TestPollPassesRequestParameters(t *testing.T) {
	clock := newFakeClock()
	client := newFakeDeviceClient()

	cfg := &Config{
		Address:        testAddress,
		Port:           30001,
		RequestTimeout: models.Duration(7 * time.Second),
		RequestSpacing: models.Duration(12 * time.Second),
	}

	c, err := New(cfg, client, nil, clock, logger.NewTestLogger())
	require.NoError(t, err)

	ctx := context.Background()

	first, err := c.Poll(ctx)
	require.NoError(t, err)

	req := client.request(0)
	assert.Equal(t, testAddress, req.Address)
	assert.Equal(t, 30001, req.Port)
	assert.Equal(t, 7*time.Second, req.Timeout)
	assert.Equal(t, 12*time.Second, req.MinRequestSpacing)

	clock.Advance(30 * time.Second)

	_, err = c.Poll(ctx)
	require.NoError(t, err)

	req = client.request(1)
	require.NotNil(t, req.Previous)
	assert.InDelta(t, first.BatterySOC, req.Previous.BatterySOC, 0.001, "previous record handed to the client for merging")
}

func TestCurrentReturnsCopy(t *testing.T) {
	clock := newFakeClock()
	client := newFakeDeviceClient()
	c := newTestCoordinator(t, client, clock)

	_, err := c.Poll(context.Background())
	require.NoError(t, err)

	snapshot := c.Current()
	snapshot.BatterySOC = -1

	assert.NotEqual(t, -1.0, c.Current().BatterySOC)
}

func TestStartPollsOnTicks(t *testing.T) {
	clock := newFakeClock()
	client := newFakeDeviceClient()
	c := newTestCoordinator(t, client, clock)

	updates := make(chan *models.DeviceStatus, 8)

	c.OnUpdate(func(status *models.DeviceStatus, err error) {
		require.NoError(t, err)
		updates <- status
	})

	done := make(chan error, 1)

	go func() { done <- c.Start(context.Background()) }()

	// Initial poll fires without a tick.
	select {
	case status := <-updates:
		require.NotNil(t, status)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial poll")
	}

	clock.Advance(30 * time.Second)
	clock.tick()

	select {
	case status := <-updates:
		require.NotNil(t, status)
	case <-time.After(2 * time.Second):
		t.Fatal("no poll after tick")
	}

	require.NoError(t, c.Stop(context.Background()))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}

	assert.Equal(t, 2, client.requestCount())
}

func TestStartNotifiesListenersOnFailure(t *testing.T) {
	clock := newFakeClock()
	client := newFakeDeviceClient()

	errDown := errors.New("host unreachable")

	client.respond = func(int, *marstek.FetchRequest) (*models.DeviceStatus, error) {
		return nil, errDown
	}

	c := newTestCoordinator(t, client, clock)

	type update struct {
		status *models.DeviceStatus
		err    error
	}

	updates := make(chan update, 8)

	c.OnUpdate(func(status *models.DeviceStatus, err error) {
		updates <- update{status: status, err: err}
	})

	done := make(chan error, 1)

	go func() { done <- c.Start(context.Background()) }()

	select {
	case u := <-updates:
		require.ErrorIs(t, u.err, ErrPollFailed)
		assert.Nil(t, u.status)
	case <-time.After(2 * time.Second):
		t.Fatal("no failure notification")
	}

	require.NoError(t, c.Stop(context.Background()))
	<-done
}
