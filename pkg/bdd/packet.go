// Copyright 2024 Symflow Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bdd

import (
	"net/netip"

	"github.com/pkg/errors"
)

// Packet holds the symbolic variables for the fixed packet-header fields.
// Each field is a bounded bit-vector; predicates over fields are Sets.
//
// Destination fields come first in the variable order: reachability queries
// are destination-heavy and profit from keeping those decisions near the
// diagram root.
type Packet struct {
	factory *Factory

	DstIP    Integer
	SrcIP    Integer
	DstPort  Integer
	SrcPort  Integer
	Protocol Integer
	ICMPType Integer
	ICMPCode Integer
	TCPSyn   Integer
	TCPAck   Integer
	TCPRst   Integer
	TCPFin   Integer
}

// NewPacket allocates all packet-header variables in the factory. It must be
// called before any other allocations so that header fields occupy the low
// variable indexes.
func NewPacket(f *Factory) (*Packet, error) {
	p := &Packet{factory: f}
	fields := []struct {
		dst  *Integer
		bits int
	}{
		{&p.DstIP, 32},
		{&p.SrcIP, 32},
		{&p.DstPort, 16},
		{&p.SrcPort, 16},
		{&p.Protocol, 8},
		{&p.ICMPType, 8},
		{&p.ICMPCode, 8},
		{&p.TCPSyn, 1},
		{&p.TCPAck, 1},
		{&p.TCPRst, 1},
		{&p.TCPFin, 1},
	}
	for _, field := range fields {
		v, err := NewInteger(f, field.bits)
		if err != nil {
			return nil, errors.Wrap(err, "allocating packet field")
		}
		*field.dst = v
	}
	return p, nil
}

// Factory returns the factory the packet variables live in.
func (p *Packet) Factory() *Factory {
	return p.factory
}

// IPValue converts a v4 address to the numeric value used by the IP fields.
func IPValue(a netip.Addr) uint64 {
	b := a.As4()
	return uint64(b[0])<<24 | uint64(b[1])<<16 | uint64(b[2])<<8 | uint64(b[3])
}

// IPFromValue is the inverse of IPValue.
func IPFromValue(v uint64) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}
