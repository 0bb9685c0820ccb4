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

// marstekmon polls Marstek battery devices over their local UDP API on a
// tiered cadence and publishes the merged readings to MQTT with Home
// Assistant discovery. The config file is watched; address changes are
// applied to running coordinators without a restart.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	appconfig "github.com/homegridlabs/marstekmon/pkg/config"
	"github.com/homegridlabs/marstekmon/pkg/coordinator"
	"github.com/homegridlabs/marstekmon/pkg/lifecycle"
	"github.com/homegridlabs/marstekmon/pkg/logger"
	"github.com/homegridlabs/marstekmon/pkg/marstek"
	"github.com/homegridlabs/marstekmon/pkg/models"
	"github.com/homegridlabs/marstekmon/pkg/mqtt"
	"github.com/homegridlabs/marstekmon/pkg/registry"
)

const (
	defaultConfigPath = "/etc/marstekmon/config.json"
	connectTimeout    = 10 * time.Second
	probeTimeout      = 5 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "marstekmon: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx := context.Background()

	cfg := &Config{}
	if err := appconfig.LoadAndValidate(ctx, configPath, cfg); err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return err
	}

	client := marstek.NewClient(log)
	store := registry.NewMemoryStore()

	var publisher *mqtt.Publisher

	if cfg.MQTT != nil {
		publisher, err = mqtt.NewPublisher(cfg.MQTT, log)
		if err != nil {
			return err
		}

		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		err = publisher.Connect(connectCtx)

		cancel()

		if err != nil {
			return err
		}
	}

	coordinators := make(map[string]*coordinator.Coordinator, len(cfg.Devices))
	deviceIDs := make([]string, 0, len(cfg.Devices))

	for i := range cfg.Devices {
		device := cfg.Devices[i]

		c, err := setupDevice(ctx, &device, client, store, publisher, log)
		if err != nil {
			return err
		}

		coordinators[device.DeviceID] = c
		deviceIDs = append(deviceIDs, topicID(device.DeviceID))
	}

	watcher, err := appconfig.NewWatcher(configPath, func() appconfig.Validator { return &Config{} }, log)
	if err != nil {
		return err
	}

	watcher.Subscribe(func(updated appconfig.Validator) {
		applyConfigUpdate(updated.(*Config), coordinators, store, publisher, log)
	})

	services := make([]lifecycle.Service, 0, len(coordinators)+1)
	services = append(services, watcher)

	for _, c := range coordinators {
		services = append(services, c)
	}

	runErr := lifecycle.Run(ctx, log, services...)

	if publisher != nil {
		publisher.Close(deviceIDs...)
	}

	return runErr
}

// setupDevice registers the device's names, wires its publishing listener,
// and announces its sensors.
func setupDevice(
	ctx context.Context,
	device *DeviceConfig,
	client *marstek.Client,
	store *registry.MemoryStore,
	publisher *mqtt.Publisher,
	log logger.Logger,
) (*coordinator.Coordinator, error) {
	store.RegisterDevice(device.DeviceID, device.Name)

	sensors := mqtt.DefaultSensors()
	id := topicID(device.DeviceID)

	for _, sensor := range sensors {
		store.RegisterEntry(id+"_"+sensor.Key, device.DeviceID, device.Name+" "+sensor.Name)
	}

	c, err := coordinator.New(&device.Config, client, store, nil, log)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", device.Address, err)
	}

	if publisher != nil {
		c.OnUpdate(func(status *models.DeviceStatus, pollErr error) {
			if pubErr := publisher.PublishAvailability(id, pollErr == nil); pubErr != nil {
				log.Warn().Err(pubErr).Str("device_id", id).Msg("Failed to publish availability")
			}

			if pollErr != nil || status == nil {
				return
			}

			if pubErr := publisher.PublishState(id, status); pubErr != nil {
				log.Warn().Err(pubErr).Str("device_id", id).Msg("Failed to publish state")
			}
		})

		info := mqtt.DeviceInfo{ID: id, Name: device.Name}

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		hw, probeErr := client.GetDevice(probeCtx, device.Address, device.Port, probeTimeout)

		cancel()

		if probeErr != nil {
			log.Warn().Err(probeErr).Str("address", device.Address).Msg("Device probe failed, announcing without model info")
		} else {
			info.Model = hw.Name
			info.Version = hw.Version
		}

		if err := publisher.PublishDiscovery(info, sensors); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// applyConfigUpdate handles a config file reload: devices whose address
// changed are rebound in place, and their discovery documents are
// republished under the renamed registry names. Added or removed devices
// need a restart.
func applyConfigUpdate(
	updated *Config,
	coordinators map[string]*coordinator.Coordinator,
	store *registry.MemoryStore,
	publisher *mqtt.Publisher,
	log logger.Logger,
) {
	for i := range updated.Devices {
		device := updated.Devices[i]

		c, ok := coordinators[device.DeviceID]
		if !ok {
			log.Info().Str("device_id", device.DeviceID).Msg("New device in config, restart to pick it up")
			continue
		}

		oldAddress := c.Address()
		if oldAddress == device.Address {
			continue
		}

		renamed, err := c.Rebind(oldAddress, device.Address)
		if err != nil {
			log.Error().Err(err).Str("device_id", device.DeviceID).Msg("Failed to rebind device address")
			continue
		}

		log.Info().
			Str("device_id", device.DeviceID).
			Str("old_address", oldAddress).
			Str("new_address", device.Address).
			Int("renamed", renamed).
			Msg("Rebound device to new address")

		if publisher == nil || renamed == 0 {
			continue
		}

		if registered, found := store.DeviceByIdentifier(device.DeviceID); found {
			info := mqtt.DeviceInfo{ID: topicID(device.DeviceID), Name: registered.Name}

			if err := publisher.PublishDiscovery(info, mqtt.DefaultSensors()); err != nil {
				log.Warn().Err(err).Str("device_id", device.DeviceID).Msg("Failed to republish discovery")
			}
		}
	}
}
