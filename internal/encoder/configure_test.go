// Copyright 2025 Tom Barlow
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

package encoder

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
)

func TestConfigPayload(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want map[int32]dbus.Variant
	}{
		{
			name: "all keys",
			cfg: Config{
				PeerAddress:   "192.168.1.20",
				RTPPort:       16384,
				PeerRTCPPort:  16385,
				LocalAddress:  "192.168.1.10",
				LocalRTCPPort: 16387,
				Rect:          &Rect{X: 10, Y: 20, Width: 1280, Height: 720},
			},
			want: map[int32]dbus.Variant{
				0: dbus.MakeVariant("192.168.1.20"),
				1: dbus.MakeVariant(uint32(16384)),
				2: dbus.MakeVariant(uint32(16385)),
				3: dbus.MakeVariant("192.168.1.10"),
				4: dbus.MakeVariant(uint32(16387)),
				5: dbus.MakeVariant(uint32(10)),
				6: dbus.MakeVariant(uint32(20)),
				7: dbus.MakeVariant(uint32(1280)),
				8: dbus.MakeVariant(uint32(720)),
			},
		},
		{
			name: "zero RTCP ports omitted",
			cfg: Config{
				PeerAddress:  "10.0.0.5",
				RTPPort:      1991,
				LocalAddress: "10.0.0.2",
				Rect:         &Rect{Width: 1920, Height: 1080},
			},
			want: map[int32]dbus.Variant{
				0: dbus.MakeVariant("10.0.0.5"),
				1: dbus.MakeVariant(uint32(1991)),
				3: dbus.MakeVariant("10.0.0.2"),
				5: dbus.MakeVariant(uint32(0)),
				6: dbus.MakeVariant(uint32(0)),
				7: dbus.MakeVariant(uint32(1920)),
				8: dbus.MakeVariant(uint32(1080)),
			},
		},
		{
			name: "no rectangle omits all four region keys",
			cfg: Config{
				PeerAddress:   "10.0.0.5",
				RTPPort:       7000,
				PeerRTCPPort:  7001,
				LocalAddress:  "10.0.0.2",
				LocalRTCPPort: 7002,
			},
			want: map[int32]dbus.Variant{
				0: dbus.MakeVariant("10.0.0.5"),
				1: dbus.MakeVariant(uint32(7000)),
				2: dbus.MakeVariant(uint32(7001)),
				3: dbus.MakeVariant("10.0.0.2"),
				4: dbus.MakeVariant(uint32(7002)),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.payload())
		})
	}
}

func TestConfigEntriesKeepContractOrder(t *testing.T) {
	cfg := Config{
		PeerAddress:   "a",
		RTPPort:       1,
		PeerRTCPPort:  2,
		LocalAddress:  "b",
		LocalRTCPPort: 3,
		Rect:          &Rect{},
	}

	var keys []ConfigKey
	for _, e := range cfg.entries() {
		keys = append(keys, e.key)
	}

	assert.Equal(t, []ConfigKey{
		KeyPeerAddress, KeyRTPPort, KeyPeerRTCPPort,
		KeyLocalAddress, KeyLocalRTCPPort,
		KeyX, KeyY, KeyWidth, KeyHeight,
	}, keys)
}
