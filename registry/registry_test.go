// Copyright (c) 2025 Lux Partners Limited
// SPDX-License-Identifier: MIT

package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/luxfi/aggregator/order"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
chain_id: 1
aggregator: "0x00000000000000000000000000000000000000A1"
swap_module: "0x00000000000000000000000000000000000000A2"
permit_module: "0x00000000000000000000000000000000000000A3"
modules:
  seaport: "0x00000000000000000000000000000000000000D1"
  looks-rare: "0x00000000000000000000000000000000000000D2"
exchanges:
  seaport: "0x00000000000000000000000000000000000000E1"
x2y2_api_key: "${TEST_X2Y2_KEY}"
http_timeout: 10s
`

func TestLoad(t *testing.T) {
	t.Setenv("TEST_X2Y2_KEY", "secret-key")

	reg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if reg.ChainID != 1 {
		t.Errorf("chain id = %d, want 1", reg.ChainID)
	}
	if reg.Aggregator != common.HexToAddress("0x00000000000000000000000000000000000000A1") {
		t.Errorf("aggregator = %v", reg.Aggregator)
	}
	if reg.X2Y2APIKey != "secret-key" {
		t.Errorf("api key = %q, want env-expanded value", reg.X2Y2APIKey)
	}
	if reg.HTTPTimeout != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", reg.HTTPTimeout)
	}

	m, err := reg.Module(order.KindSeaport)
	if err != nil {
		t.Fatalf("Module(seaport): %v", err)
	}
	if m != common.HexToAddress("0x00000000000000000000000000000000000000D1") {
		t.Errorf("seaport module = %v", m)
	}

	// The config overrides the mainnet default for seaport's exchange.
	e, err := reg.Exchange(order.KindSeaport)
	if err != nil {
		t.Fatalf("Exchange(seaport): %v", err)
	}
	if e != common.HexToAddress("0x00000000000000000000000000000000000000E1") {
		t.Errorf("seaport exchange = %v, config must win over defaults", e)
	}
}

func TestLoadMainnetDefaults(t *testing.T) {
	reg, err := Load(writeConfig(t, `
chain_id: 1
aggregator: "0x00000000000000000000000000000000000000A1"
modules:
  seaport: "0x00000000000000000000000000000000000000D1"
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	e, err := reg.Exchange(order.KindBlur)
	if err != nil {
		t.Fatalf("Exchange(blur): %v", err)
	}
	if e != common.HexToAddress("0x000000000000Ad05Ccc4F10045630fb830B95127") {
		t.Errorf("blur exchange = %v, want mainnet default", e)
	}
	if reg.WrappedNative != common.HexToAddress(mainnetWETH) {
		t.Errorf("wrapped native = %v, want mainnet WETH", reg.WrappedNative)
	}
}

func TestLoadNoDefaultsOffMainnet(t *testing.T) {
	reg, err := Load(writeConfig(t, `
chain_id: 137
aggregator: "0x00000000000000000000000000000000000000A1"
modules:
  seaport: "0x00000000000000000000000000000000000000D1"
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := reg.Exchange(order.KindBlur); err == nil {
		t.Error("mainnet exchange defaults must not apply to other chains")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{"missing chain id", `
aggregator: "0x00000000000000000000000000000000000000A1"
modules:
  seaport: "0x00000000000000000000000000000000000000D1"
`},
		{"missing aggregator", `
chain_id: 1
modules:
  seaport: "0x00000000000000000000000000000000000000D1"
`},
		{"no modules", `
chain_id: 1
aggregator: "0x00000000000000000000000000000000000000A1"
`},
		{"unknown protocol", `
chain_id: 1
aggregator: "0x00000000000000000000000000000000000000A1"
modules:
  wyvern: "0x00000000000000000000000000000000000000D1"
`},
		{"bad address", `
chain_id: 1
aggregator: "not-an-address"
modules:
  seaport: "0x00000000000000000000000000000000000000D1"
`},
		{"bad timeout", `
chain_id: 1
aggregator: "0x00000000000000000000000000000000000000A1"
modules:
  seaport: "0x00000000000000000000000000000000000000D1"
http_timeout: soon
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.config)); err == nil {
				t.Error("expected load error")
			}
		})
	}
}

func TestModuleUnconfiguredKind(t *testing.T) {
	reg := &Registry{Modules: map[order.Kind]common.Address{}}
	if _, err := reg.Module(order.KindZora); err == nil {
		t.Error("expected error for unconfigured module")
	}
	if _, err := reg.Exchange(order.KindZora); err == nil {
		t.Error("expected error for unconfigured exchange")
	}
}
