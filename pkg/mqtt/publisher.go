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

// Package mqtt publishes device records to an MQTT broker, retained per
// device, and announces the sensors through Home Assistant discovery.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/homegridlabs/marstekmon/pkg/logger"
	"github.com/homegridlabs/marstekmon/pkg/models"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
)

// DeviceInfo identifies a device in discovery payloads. ID must be topic-safe
// and stable across address changes.
type DeviceInfo struct {
	ID      string
	Name    string
	Model   string
	Version string
}

// Publisher wraps a paho client with the topic layout and payload shapes
// this process uses.
type Publisher struct {
	config Config
	logger logger.Logger
	client pahomqtt.Client
}

// NewPublisher validates the config and prepares the client. Connect must be
// called before publishing.
func NewPublisher(config *Config, log logger.Logger) (*Publisher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	p := &Publisher{config: *config, logger: log}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetAutoReconnect(true)

	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}

	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		p.logger.Info().Str("broker", p.config.Broker).Msg("Connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		p.logger.Warn().Err(err).Msg("MQTT connection lost, reconnecting")
	})

	p.client = pahomqtt.NewClient(opts)

	return p, nil
}

// Connect establishes the broker session.
func (p *Publisher) Connect(ctx context.Context) error {
	token := p.client.Connect()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to broker %s: %w", p.config.Broker, err)
	}

	return nil
}

// Close marks every given device offline and disconnects.
func (p *Publisher) Close(deviceIDs ...string) {
	for _, id := range deviceIDs {
		if err := p.PublishAvailability(id, false); err != nil {
			p.logger.Warn().Err(err).Str("device_id", id).Msg("Failed to publish offline state")
		}
	}

	p.client.Disconnect(250)
}

// StateTopic returns the retained state topic for a device.
func (p *Publisher) StateTopic(deviceID string) string {
	return fmt.Sprintf("%s/%s/state", p.config.TopicPrefix, deviceID)
}

// AvailabilityTopic returns the availability topic for a device.
func (p *Publisher) AvailabilityTopic(deviceID string) string {
	return fmt.Sprintf("%s/%s/availability", p.config.TopicPrefix, deviceID)
}

// PublishState publishes the merged record, retained, as JSON.
func (p *Publisher) PublishState(deviceID string, status *models.DeviceStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode state for %s: %w", deviceID, err)
	}

	return p.publish(p.StateTopic(deviceID), payload)
}

// PublishAvailability publishes the online/offline marker, retained.
func (p *Publisher) PublishAvailability(deviceID string, online bool) error {
	payload := payloadOffline
	if online {
		payload = payloadOnline
	}

	return p.publish(p.AvailabilityTopic(deviceID), []byte(payload))
}

// discoveryPayload is the Home Assistant MQTT discovery document for one
// sensor.
type discoveryPayload struct {
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	StateTopic        string          `json:"state_topic"`
	AvailabilityTopic string          `json:"availability_topic"`
	ValueTemplate     string          `json:"value_template"`
	DeviceClass       string          `json:"device_class,omitempty"`
	StateClass        string          `json:"state_class,omitempty"`
	Unit              string          `json:"unit_of_measurement,omitempty"`
	Device            discoveryDevice `json:"device"`
}

type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model,omitempty"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// PublishDiscovery announces every sensor for the device. Safe to call again
// after a rename; Home Assistant treats it as an update.
func (p *Publisher) PublishDiscovery(device DeviceInfo, sensors []Sensor) error {
	for _, sensor := range sensors {
		topic := fmt.Sprintf("%s/sensor/%s_%s/config", p.config.DiscoveryPrefix, device.ID, sensor.Key)

		payload, err := json.Marshal(p.discoveryFor(device, sensor))
		if err != nil {
			return fmt.Errorf("failed to encode discovery for %s/%s: %w", device.ID, sensor.Key, err)
		}

		if err := p.publish(topic, payload); err != nil {
			return err
		}
	}

	p.logger.Info().
		Str("device_id", device.ID).
		Int("sensors", len(sensors)).
		Msg("Published discovery documents")

	return nil
}

func (p *Publisher) discoveryFor(device DeviceInfo, sensor Sensor) *discoveryPayload {
	return &discoveryPayload{
		Name:              fmt.Sprintf("%s %s", device.Name, sensor.Name),
		UniqueID:          fmt.Sprintf("%s_%s", device.ID, sensor.Key),
		StateTopic:        p.StateTopic(device.ID),
		AvailabilityTopic: p.AvailabilityTopic(device.ID),
		ValueTemplate:     sensor.ValueTemplate,
		DeviceClass:       sensor.DeviceClass,
		StateClass:        sensor.StateClass,
		Unit:              sensor.Unit,
		Device: discoveryDevice{
			Identifiers:  []string{device.ID},
			Name:         device.Name,
			Manufacturer: "Marstek",
			Model:        device.Model,
			SWVersion:    device.Version,
		},
	}
}

func (p *Publisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 0, true, payload)
	token.Wait()

	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	p.logger.Debug().Str("topic", topic).Int("bytes", len(payload)).Msg("Published")

	return nil
}
