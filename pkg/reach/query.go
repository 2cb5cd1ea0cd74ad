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

package reach

import (
	"github.com/pkg/errors"
	"go4.org/netipx"
)

// Disposition is the final fate of a packet.
type Disposition int

const (
	// Accepted: a final device accepted the packet locally.
	Accepted Disposition = iota
	// DeniedIn: an inbound filter on a final device dropped the packet.
	DeniedIn
	// DeniedOut: an outbound filter on a final device dropped the packet.
	DeniedOut
	// NoRoute: a final device had no route to the destination.
	NoRoute
	// NullRouted: a final device discarded the packet via a null route.
	NullRouted
	// NeighborUnreachableDisposition: the packet was routed out an interface
	// whose neighbor never responds.
	NeighborUnreachableDisposition
	// Loop is recognized but rejected; see ErrLoopNotSupported.
	Loop
)

var dispositionNames = map[Disposition]string{
	Accepted:                       "accepted",
	DeniedIn:                       "denied-in",
	DeniedOut:                      "denied-out",
	NoRoute:                        "no-route",
	NullRouted:                     "null-routed",
	NeighborUnreachableDisposition: "neighbor-unreachable",
	Loop:                           "loop",
}

func (d Disposition) String() string {
	if name, ok := dispositionNames[d]; ok {
		return name
	}
	return "unknown"
}

// ParseDisposition converts the wire/CLI spelling of a disposition.
func ParseDisposition(s string) (Disposition, error) {
	for d, name := range dispositionNames {
		if name == s {
			return d, nil
		}
	}
	return 0, errors.Errorf("unknown disposition %q", s)
}

// Location is a named origination point for query traffic.
type Location interface {
	isLocation()
}

// InterfaceLinkLocation originates traffic on the link attached to an
// interface, as if sent by an unmodeled neighbor.
type InterfaceLinkLocation struct {
	Device, Interface string
}

// VRFLocation originates traffic from the device itself, inside a routing
// instance.
type VRFLocation struct {
	Device, VRF string
}

func (InterfaceLinkLocation) isLocation() {}
func (VRFLocation) isLocation()           {}

func (l InterfaceLinkLocation) String() string {
	return l.Device + "[" + l.Interface + "]"
}

func (l VRFLocation) String() string {
	return l.Device + "@" + l.VRF
}

// AssignmentEntry assigns a source IP space to a set of origination points.
// A nil IPSpace means all sources.
type AssignmentEntry struct {
	IPSpace   *netipx.IPSet
	Locations []Location
}
