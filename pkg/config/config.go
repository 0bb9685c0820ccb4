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

// Package config loads and validates JSON configuration files and notifies
// subscribers when the file changes on disk.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Validator is implemented by configuration structs that can check and
// default their own fields.
type Validator interface {
	Validate() error
}

// Loader loads configuration from a source into dst.
type Loader interface {
	Load(ctx context.Context, path string, dst interface{}) error
}

// FileLoader loads configuration from a local JSON file.
type FileLoader struct{}

// Load implements Loader by reading and unmarshaling a JSON file.
func (*FileLoader) Load(_ context.Context, path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file '%s': %w", path, err)
	}

	err = json.Unmarshal(data, dst)
	if err != nil {
		return fmt.Errorf("failed to unmarshal JSON from '%s': %w", path, err)
	}

	return nil
}

// ValidateConfig validates a configuration if it implements Validator.
func ValidateConfig(cfg interface{}) error {
	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}

	return v.Validate()
}

// LoadAndValidate loads a configuration file and validates it.
func LoadAndValidate(ctx context.Context, path string, cfg interface{}) error {
	loader := &FileLoader{}

	if err := loader.Load(ctx, path, cfg); err != nil {
		return err
	}

	return ValidateConfig(cfg)
}
