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

package netmodel

import (
	"net/netip"

	"go4.org/netipx"
)

// SourceNat rewrites the source address of packets matching an ACL into a
// contiguous pool. Rules on an interface apply in list order; the first
// matching rule wins and non-matching packets pass unchanged.
type SourceNat struct {
	// ACL names the match condition on the owning device. An empty or
	// unresolvable name matches nothing.
	ACL       string
	PoolFirst netip.Addr
	PoolLast  netip.Addr
}

// Link is one direction of a physical adjacency between two device
// interfaces. Used as a map key; two Links with the same fields are the same
// link.
type Link struct {
	Device1 string
	Iface1  string
	Device2 string
	Iface2  string
}

// Reverse returns the link seen from the other end.
func (l Link) Reverse() Link {
	return Link{Device1: l.Device2, Iface1: l.Iface2, Device2: l.Device1, Iface2: l.Iface1}
}

// Forwarding carries the externally computed forwarding analysis for one
// network snapshot. All address sets are destination IP spaces. A missing
// entry means the empty set.
type Forwarding struct {
	// RoutableIPs: device -> vrf -> destinations with an active route.
	RoutableIPs map[string]map[string]*netipx.IPSet
	// AcceptIPs: device -> vrf -> destinations the vrf accepts locally.
	AcceptIPs map[string]map[string]*netipx.IPSet
	// NullRoutedIPs: device -> vrf -> destinations discarded by a null route.
	NullRoutedIPs map[string]map[string]*netipx.IPSet
	// ArpTrueEdge: per link, destinations that are routed out the link and
	// for which the neighbor answers ARP.
	ArpTrueEdge map[Link]*netipx.IPSet
	// NeighborUnreachable: device -> vrf -> interface -> destinations routed
	// out the interface whose next hop never answers.
	NeighborUnreachable map[string]map[string]map[string]*netipx.IPSet
}

// Network is a complete analyzable snapshot: the device models plus the
// forwarding results computed for them.
type Network struct {
	Devices    map[string]*Device
	Forwarding *Forwarding
}
