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

// Package netmodel holds the canonical, vendor-independent view of a network
// that the reachability engine consumes: devices with interfaces, routing
// instances (VRFs), filters, NAT rules, the physical links between devices,
// and the externally computed forwarding results. Producing this model from
// vendor configuration is the job of upstream tooling; nothing in this
// package parses configuration syntax.
package netmodel

// Device is one network element (router, firewall, switch).
type Device struct {
	Name       string
	VRFs       map[string]*VRF
	Interfaces map[string]*Interface
	ACLs       map[string]*ACL
}

// VRF is a routing instance on a device.
type VRF struct {
	Name string
	// Interfaces lists the names of the interfaces bound to this VRF.
	Interfaces []string
}

// Interface is a network interface on a device.
type Interface struct {
	Name string
	// VRF names the routing instance the interface belongs to.
	VRF string
	// IncomingFilter and OutgoingFilter name ACLs on the owning device.
	// Empty means unfiltered.
	IncomingFilter string
	OutgoingFilter string
	// SourceNats are applied in order to traffic leaving this interface.
	SourceNats []SourceNat
}

// InterfaceNames returns the names of all interfaces of the device in
// unspecified order.
func (d *Device) InterfaceNames() []string {
	names := make([]string, 0, len(d.Interfaces))
	for name := range d.Interfaces {
		names = append(names, name)
	}
	return names
}
