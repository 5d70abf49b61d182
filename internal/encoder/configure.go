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

import "github.com/godbus/dbus/v5"

// ConfigKey identifies one entry of the Configure payload. The numeric
// values are the wire contract with the worker and never change.
type ConfigKey int32

const (
	// KeyPeerAddress is the sink's network address (string).
	KeyPeerAddress ConfigKey = 0
	// KeyRTPPort is the sink's RTP port (uint32).
	KeyRTPPort ConfigKey = 1
	// KeyPeerRTCPPort is the sink's RTCP port (uint32, omitted when unused).
	KeyPeerRTCPPort ConfigKey = 2
	// KeyLocalAddress is the source's network address (string).
	KeyLocalAddress ConfigKey = 3
	// KeyLocalRTCPPort is the source's RTCP port (uint32, omitted when unused).
	KeyLocalRTCPPort ConfigKey = 4
	// KeyX is the left edge of the projected region (uint32).
	KeyX ConfigKey = 5
	// KeyY is the top edge of the projected region (uint32).
	KeyY ConfigKey = 6
	// KeyWidth is the width of the projected region (uint32).
	KeyWidth ConfigKey = 7
	// KeyHeight is the height of the projected region (uint32).
	KeyHeight ConfigKey = 8
)

// Rect is the screen region a session projects, in pixels.
type Rect struct {
	X      uint32 `json:"x" yaml:"x"`
	Y      uint32 `json:"y" yaml:"y"`
	Width  uint32 `json:"width" yaml:"width"`
	Height uint32 `json:"height" yaml:"height"`
}

// Config carries the session parameters delivered by Configure. Each
// field maps to exactly one ConfigKey with a fixed concrete type, so a
// payload can never hold a key twice or with the wrong value type.
type Config struct {
	// PeerAddress is the sink's network address.
	PeerAddress string `json:"peer_address" yaml:"peer_address"`

	// RTPPort is the sink's RTP port.
	RTPPort uint32 `json:"rtp_port" yaml:"rtp_port"`

	// PeerRTCPPort is the sink's RTCP port. Zero means the sink takes no
	// RTCP; the key is then left out of the payload entirely.
	PeerRTCPPort uint32 `json:"peer_rtcp_port,omitempty" yaml:"peer_rtcp_port,omitempty"`

	// LocalAddress is the source's network address.
	LocalAddress string `json:"local_address" yaml:"local_address"`

	// LocalRTCPPort is the source's RTCP port, omitted when zero like
	// PeerRTCPPort.
	LocalRTCPPort uint32 `json:"local_rtcp_port,omitempty" yaml:"local_rtcp_port,omitempty"`

	// Rect is the projected screen region. Nil means the worker captures
	// the whole display; no rectangle keys are sent.
	Rect *Rect `json:"rect,omitempty" yaml:"rect,omitempty"`
}

// configEntry is one key/value pair of the Configure payload.
type configEntry struct {
	key ConfigKey
	val dbus.Variant
}

// entries lists the payload pairs in contract order, leaving out the
// optional keys that do not apply.
func (cfg Config) entries() []configEntry {
	es := []configEntry{
		{KeyPeerAddress, dbus.MakeVariant(cfg.PeerAddress)},
		{KeyRTPPort, dbus.MakeVariant(cfg.RTPPort)},
	}
	if cfg.PeerRTCPPort != 0 {
		es = append(es, configEntry{KeyPeerRTCPPort, dbus.MakeVariant(cfg.PeerRTCPPort)})
	}
	es = append(es, configEntry{KeyLocalAddress, dbus.MakeVariant(cfg.LocalAddress)})
	if cfg.LocalRTCPPort != 0 {
		es = append(es, configEntry{KeyLocalRTCPPort, dbus.MakeVariant(cfg.LocalRTCPPort)})
	}
	if cfg.Rect != nil {
		es = append(es,
			configEntry{KeyX, dbus.MakeVariant(cfg.Rect.X)},
			configEntry{KeyY, dbus.MakeVariant(cfg.Rect.Y)},
			configEntry{KeyWidth, dbus.MakeVariant(cfg.Rect.Width)},
			configEntry{KeyHeight, dbus.MakeVariant(cfg.Rect.Height)},
		)
	}
	return es
}

// payload renders the entries as the a{iv} dict argument Configure takes
// on the wire.
func (cfg Config) payload() map[int32]dbus.Variant {
	es := cfg.entries()
	dict := make(map[int32]dbus.Variant, len(es))
	for _, e := range es {
		dict[int32(e.key)] = e.val
	}
	return dict
}
