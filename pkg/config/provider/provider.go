// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package provider defines the project-config source abstraction: a file on
// disk, or a key in a remote store (Consul, etcd, Zookeeper) for multi-host
// deployments that share one project configuration.
package provider

import (
	"context"
	"fmt"
)

// Type identifies the config source type.
type Type string

const (
	TypeFile      Type = "file"
	TypeConsul    Type = "consul"
	TypeEtcd      Type = "etcd"
	TypeZookeeper Type = "zookeeper"
)

// ParseType converts a string to a Type, defaulting to TypeFile.
func ParseType(s string) (Type, error) {
	switch s {
	case "file", "":
		return TypeFile, nil
	case "consul":
		return TypeConsul, nil
	case "etcd":
		return TypeEtcd, nil
	case "zookeeper", "zk":
		return TypeZookeeper, nil
	default:
		return "", fmt.Errorf("unknown provider type: %s", s)
	}
}

// Provider abstracts project-config sources. Implementations must be safe
// for concurrent use.
type Provider interface {
	// Type returns the provider type for logging/debugging.
	Type() Type

	// Load reads raw config bytes (YAML) from the source.
	Load(ctx context.Context) ([]byte, error)

	// Watch starts watching for changes, signalling via the returned
	// channel. Returns a nil channel if the source doesn't support it.
	Watch(ctx context.Context) (<-chan struct{}, error)

	// Close releases resources held by the provider.
	Close() error
}

// Config configures provider creation.
type Config struct {
	// Type selects the provider (file, consul, etcd, zookeeper).
	Type Type
	// Path is the config path (file path, or remote key).
	Path string
	// Endpoints lists remote store addresses (consul, etcd, zookeeper).
	Endpoints []string
}

// New creates a Provider from a Config.
func New(cfg Config) (Provider, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}

	switch cfg.Type {
	case TypeFile, "":
		return NewFileProvider(cfg.Path)
	case TypeConsul:
		return NewConsulProvider(cfg.Endpoints, cfg.Path)
	case TypeEtcd:
		return NewEtcdProvider(cfg.Endpoints, cfg.Path)
	case TypeZookeeper:
		return NewZookeeperProvider(cfg.Endpoints, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}
