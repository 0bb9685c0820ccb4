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

// Package registry provides the naming registry consumed by the identity
// rebinder: devices keyed by their stable hardware identifier, plus the
// per-device named entries (sensors) whose display names may embed the
// device's network address.
package registry

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrUnknownDevice = errors.New("unknown device identifier")
	ErrUnknownEntry  = errors.New("unknown entry id")
)

// Device is a registered device. Identifier is a MAC-like value that stays
// stable for the device's lifetime; the display name may embed the current
// network address and is updated on rebind.
type Device struct {
	Identifier string
	Name       string
}

// Entry is a named per-device record (a sensor, a diagnostic) attached to a
// device by its stable identifier.
type Entry struct {
	ID               string
	DeviceIdentifier string
	Name             string
}

// Store is the registry surface the rebinder needs.
type Store interface {
	DeviceByIdentifier(identifier string) (*Device, bool)
	UpdateDeviceName(identifier, name string) error
	EntriesForDevice(identifier string) []*Entry
	UpdateEntryName(entryID, name string) error
}

// MemoryStore is the in-process Store implementation. Safe for concurrent
// use.
type MemoryStore struct {
	mu      sync.RWMutex
	devices map[string]*Device
	entries map[string]*Entry
}

// NewMemoryStore creates an empty registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices: make(map[string]*Device),
		entries: make(map[string]*Entry),
	}
}

// RegisterDevice adds or replaces a device record.
func (s *MemoryStore) RegisterDevice(identifier, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.devices[identifier] = &Device{Identifier: identifier, Name: name}
}

// RegisterEntry adds or replaces a named entry attached to a device.
func (s *MemoryStore) RegisterEntry(id, deviceIdentifier, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[id] = &Entry{ID: id, DeviceIdentifier: deviceIdentifier, Name: name}
}

// DeviceByIdentifier returns a copy of the device record, if registered.
func (s *MemoryStore) DeviceByIdentifier(identifier string) (*Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	device, ok := s.devices[identifier]
	if !ok {
		return nil, false
	}

	clone := *device

	return &clone, true
}

// UpdateDeviceName renames a registered device.
func (s *MemoryStore) UpdateDeviceName(identifier, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	device, ok := s.devices[identifier]
	if !ok {
		return ErrUnknownDevice
	}

	device.Name = name

	return nil
}

// EntriesForDevice returns copies of all entries attached to the device,
// ordered by entry id for deterministic iteration.
func (s *MemoryStore) EntriesForDevice(identifier string) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Entry

	for _, entry := range s.entries {
		if entry.DeviceIdentifier != identifier {
			continue
		}

		clone := *entry
		out = append(out, &clone)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// UpdateEntryName renames a registered entry.
func (s *MemoryStore) UpdateEntryName(entryID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[entryID]
	if !ok {
		return ErrUnknownEntry
	}

	entry.Name = name

	return nil
}
