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

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	defaultTopicPrefix     = "marstek"
	defaultDiscoveryPrefix = "homeassistant"
)

var errBrokerRequired = errors.New("mqtt broker URL is required")

// Config describes the broker connection and topic layout.
type Config struct {
	// Broker is the paho broker URL, e.g. "tcp://homeassistant:1883".
	Broker   string `json:"broker"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// ClientID defaults to a unique per-process id so two instances do not
	// knock each other off the broker.
	ClientID string `json:"client_id,omitempty"`

	// TopicPrefix roots the state and availability topics.
	TopicPrefix string `json:"topic_prefix,omitempty"`

	// DiscoveryPrefix roots the Home Assistant discovery topics.
	DiscoveryPrefix string `json:"discovery_prefix,omitempty"`
}

// Validate implements config.Validator and applies defaults.
func (c *Config) Validate() error {
	if c.Broker == "" {
		return errBrokerRequired
	}

	if c.ClientID == "" {
		c.ClientID = fmt.Sprintf("marstekmon-%s", uuid.NewString()[:8])
	}

	if c.TopicPrefix == "" {
		c.TopicPrefix = defaultTopicPrefix
	}

	if c.DiscoveryPrefix == "" {
		c.DiscoveryPrefix = defaultDiscoveryPrefix
	}

	return nil
}
