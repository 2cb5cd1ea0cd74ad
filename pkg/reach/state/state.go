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

// Package state defines the nodes of the reachability graph. Each State is a
// point in a packet's journey through the network: entering an interface,
// clearing a routing instance, crossing a link, or reaching a disposition.
//
// States are pure value identities. Every variant is a comparable struct, so
// two states built from the same fields are the same graph node and States
// can be used directly as map keys. The set of variants is closed.
package state

import "fmt"

// State is a node of the reachability graph.
type State interface {
	fmt.Stringer
	isState()
}

// OriginateInterfaceLink is the origin of packets injected on the link
// attached to an interface, as if sent by an unmodeled neighbor.
type OriginateInterfaceLink struct {
	Device, Interface string
}

// OriginateVRF is the origin of packets generated by the device itself from
// within a routing instance.
type OriginateVRF struct {
	Device, VRF string
}

// PreInInterface is a packet arriving at an interface, before the inbound
// filter.
type PreInInterface struct {
	Device, Interface string
}

// PostInVRF is a packet admitted into a routing instance.
type PostInVRF struct {
	Device, VRF string
}

// PreOutVRF is a packet a routing instance will forward rather than accept.
type PreOutVRF struct {
	Device, VRF string
}

// PreOutEdge is a packet committed to a concrete link, before NAT.
type PreOutEdge struct {
	Device1, Iface1, Device2, Iface2 string
}

// PreOutEdgePostNAT is a packet on a link after source NAT, before the
// outbound filter.
type PreOutEdgePostNAT struct {
	Device1, Iface1, Device2, Iface2 string
}

// Per-device disposition states.

type NodeAccept struct{ Device string }
type NodeDropACLIn struct{ Device string }
type NodeDropACLOut struct{ Device string }
type NodeDropNoRoute struct{ Device string }
type NodeDropNullRoute struct{ Device string }

// NodeInterfaceNeighborUnreachable is a packet routed out an interface whose
// neighbor never responds.
type NodeInterfaceNeighborUnreachable struct {
	Device, Interface string
}

// Global disposition terminals.

type Accept struct{}
type DropACLIn struct{}
type DropACLOut struct{}
type DropNoRoute struct{}
type DropNullRoute struct{}
type NeighborUnreachable struct{}

// Query is the single sink state all requested dispositions feed into.
type Query struct{}

func (OriginateInterfaceLink) isState()           {}
func (OriginateVRF) isState()                     {}
func (PreInInterface) isState()                   {}
func (PostInVRF) isState()                        {}
func (PreOutVRF) isState()                        {}
func (PreOutEdge) isState()                       {}
func (PreOutEdgePostNAT) isState()                {}
func (NodeAccept) isState()                       {}
func (NodeDropACLIn) isState()                    {}
func (NodeDropACLOut) isState()                   {}
func (NodeDropNoRoute) isState()                  {}
func (NodeDropNullRoute) isState()                {}
func (NodeInterfaceNeighborUnreachable) isState() {}
func (Accept) isState()                           {}
func (DropACLIn) isState()                        {}
func (DropACLOut) isState()                       {}
func (DropNoRoute) isState()                      {}
func (DropNullRoute) isState()                    {}
func (NeighborUnreachable) isState()              {}
func (Query) isState()                            {}

func (s OriginateInterfaceLink) String() string {
	return fmt.Sprintf("OriginateInterfaceLink(%s[%s])", s.Device, s.Interface)
}

func (s OriginateVRF) String() string {
	return fmt.Sprintf("OriginateVRF(%s@%s)", s.VRF, s.Device)
}

func (s PreInInterface) String() string {
	return fmt.Sprintf("PreInInterface(%s[%s])", s.Device, s.Interface)
}

func (s PostInVRF) String() string {
	return fmt.Sprintf("PostInVRF(%s@%s)", s.VRF, s.Device)
}

func (s PreOutVRF) String() string {
	return fmt.Sprintf("PreOutVRF(%s@%s)", s.VRF, s.Device)
}

func (s PreOutEdge) String() string {
	return fmt.Sprintf("PreOutEdge(%s[%s] -> %s[%s])", s.Device1, s.Iface1, s.Device2, s.Iface2)
}

func (s PreOutEdgePostNAT) String() string {
	return fmt.Sprintf("PreOutEdgePostNAT(%s[%s] -> %s[%s])",
		s.Device1, s.Iface1, s.Device2, s.Iface2)
}

func (s NodeAccept) String() string        { return fmt.Sprintf("NodeAccept(%s)", s.Device) }
func (s NodeDropACLIn) String() string     { return fmt.Sprintf("NodeDropACLIn(%s)", s.Device) }
func (s NodeDropACLOut) String() string    { return fmt.Sprintf("NodeDropACLOut(%s)", s.Device) }
func (s NodeDropNoRoute) String() string   { return fmt.Sprintf("NodeDropNoRoute(%s)", s.Device) }
func (s NodeDropNullRoute) String() string { return fmt.Sprintf("NodeDropNullRoute(%s)", s.Device) }

func (s NodeInterfaceNeighborUnreachable) String() string {
	return fmt.Sprintf("NodeInterfaceNeighborUnreachable(%s[%s])", s.Device, s.Interface)
}

func (Accept) String() string              { return "Accept" }
func (DropACLIn) String() string           { return "DropACLIn" }
func (DropACLOut) String() string          { return "DropACLOut" }
func (DropNoRoute) String() string         { return "DropNoRoute" }
func (DropNullRoute) String() string       { return "DropNullRoute" }
func (NeighborUnreachable) String() string { return "NeighborUnreachable" }
func (Query) String() string               { return "Query" }
