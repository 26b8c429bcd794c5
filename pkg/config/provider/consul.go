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

package provider

import (
	"context"
	"fmt"
	"log/slog"

	consulapi "github.com/hashicorp/consul/api"
)

// ConsulProvider loads config from a Consul KV key and watches it using
// Consul's blocking-query semantics.
type ConsulProvider struct {
	client *consulapi.Client
	key    string
}

// NewConsulProvider dials the first endpoint and binds to key.
func NewConsulProvider(endpoints []string, key string) (*ConsulProvider, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("consul endpoints are required")
	}
	if key == "" {
		return nil, fmt.Errorf("consul key is required")
	}

	cfg := consulapi.DefaultConfig()
	cfg.Address = endpoints[0]
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}
	return &ConsulProvider{client: client, key: key}, nil
}

// Type returns TypeConsul.
func (p *ConsulProvider) Type() Type { return TypeConsul }

// Load reads the current value of the KV key.
func (p *ConsulProvider) Load(ctx context.Context) ([]byte, error) {
	pair, _, err := p.client.KV().Get(p.key, (&consulapi.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("read consul key %s: %w", p.key, err)
	}
	if pair == nil {
		return nil, fmt.Errorf("consul key %s not found", p.key)
	}
	return pair.Value, nil
}

// Watch polls the KV key with Consul blocking queries, signalling whenever
// the ModifyIndex advances.
func (p *ConsulProvider) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	go p.watchLoop(ctx, ch)
	return ch, nil
}

func (p *ConsulProvider) watchLoop(ctx context.Context, ch chan<- struct{}) {
	defer close(ch)

	var lastIndex uint64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		opts := (&consulapi.QueryOptions{WaitIndex: lastIndex}).WithContext(ctx)
		pair, meta, err := p.client.KV().Get(p.key, opts)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("consul watch error", "key", p.key, "error", err)
			continue
		}
		if pair != nil && meta.LastIndex != lastIndex {
			if lastIndex != 0 {
				select {
				case ch <- struct{}{}:
				default:
				}
			}
			lastIndex = meta.LastIndex
		}
	}
}

// Close is a no-op; the consul client holds no long-lived connection.
func (p *ConsulProvider) Close() error { return nil }

var _ Provider = (*ConsulProvider)(nil)
