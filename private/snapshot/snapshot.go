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

// Package snapshot loads network snapshots from their YAML representation
// into the model the reachability engine consumes. A snapshot is the full
// dataplane view of a network at one point in time: devices with their
// vrfs, interfaces, filters and NAT rules, plus the resolved forwarding
// behavior.
package snapshot

import (
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go4.org/netipx"
	yaml "gopkg.in/yaml.v2"

	"github.com/symflow/symflow/pkg/netmodel"
)

type rawSnapshot struct {
	Devices    map[string]rawDevice `yaml:"devices"`
	Forwarding rawForwarding        `yaml:"forwarding"`
}

type rawDevice struct {
	VRFs       map[string]rawVRF       `yaml:"vrfs"`
	Interfaces map[string]rawInterface `yaml:"interfaces"`
	ACLs       map[string][]rawACLLine `yaml:"acls,omitempty"`
}

type rawVRF struct {
	Interfaces []string `yaml:"interfaces"`
}

type rawInterface struct {
	VRF            string         `yaml:"vrf"`
	IncomingFilter string         `yaml:"incoming_filter,omitempty"`
	OutgoingFilter string         `yaml:"outgoing_filter,omitempty"`
	SourceNats     []rawSourceNat `yaml:"source_nats,omitempty"`
}

type rawSourceNat struct {
	ACL       string `yaml:"acl"`
	PoolFirst string `yaml:"pool_first"`
	PoolLast  string `yaml:"pool_last"`
}

// rawACLLine is one access list line. The match fields that are present
// are conjoined; a line with no match fields matches every packet.
type rawACLLine struct {
	Action                string        `yaml:"action"`
	SrcIPs                []string      `yaml:"src_ips,omitempty"`
	DstIPs                []string      `yaml:"dst_ips,omitempty"`
	SrcPorts              []string      `yaml:"src_ports,omitempty"`
	DstPorts              []string      `yaml:"dst_ports,omitempty"`
	Protocols             []uint8       `yaml:"protocols,omitempty"`
	ICMPTypes             []uint8       `yaml:"icmp_types,omitempty"`
	ICMPCodes             []uint8       `yaml:"icmp_codes,omitempty"`
	TCPFlags              []rawTCPFlags `yaml:"tcp_flags,omitempty"`
	SrcInterfaces         []string      `yaml:"src_interfaces,omitempty"`
	OriginatingFromDevice bool          `yaml:"originating_from_device,omitempty"`
}

// rawTCPFlags matches TCP flag bits. An omitted flag is a don't-care; the
// line's tcp_flags entries are alternatives.
type rawTCPFlags struct {
	Syn *bool `yaml:"syn,omitempty"`
	Ack *bool `yaml:"ack,omitempty"`
	Rst *bool `yaml:"rst,omitempty"`
	Fin *bool `yaml:"fin,omitempty"`
}

type rawForwarding struct {
	Routable            map[string]map[string][]string            `yaml:"routable,omitempty"`
	Accept              map[string]map[string][]string            `yaml:"accept,omitempty"`
	NullRouted          map[string]map[string][]string            `yaml:"null_routed,omitempty"`
	NeighborUnreachable map[string]map[string]map[string][]string `yaml:"neighbor_unreachable,omitempty"`
	Links               []rawLink                                 `yaml:"links,omitempty"`
}

type rawLink struct {
	Device1 string   `yaml:"device1"`
	Iface1  string   `yaml:"iface1"`
	Device2 string   `yaml:"device2"`
	Iface2  string   `yaml:"iface2"`
	IPs     []string `yaml:"ips"`
}

// Parse decodes a YAML snapshot and validates it into a network model.
// Unknown keys are rejected.
func Parse(raw []byte) (*netmodel.Network, error) {
	var snap rawSnapshot
	if err := yaml.UnmarshalStrict(raw, &snap); err != nil {
		return nil, errors.Wrap(err, "parsing snapshot")
	}
	return build(&snap)
}

// LoadFile reads and parses a snapshot file.
func LoadFile(path string) (*netmodel.Network, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading snapshot %q", path)
	}
	return Parse(raw)
}

func build(snap *rawSnapshot) (*netmodel.Network, error) {
	network := &netmodel.Network{
		Devices:    make(map[string]*netmodel.Device, len(snap.Devices)),
		Forwarding: &netmodel.Forwarding{},
	}
	for name, rd := range snap.Devices {
		dev, err := buildDevice(name, rd)
		if err != nil {
			return nil, err
		}
		network.Devices[name] = dev
	}
	fwd, err := buildForwarding(snap.Forwarding)
	if err != nil {
		return nil, err
	}
	network.Forwarding = fwd
	return network, nil
}

func buildDevice(name string, rd rawDevice) (*netmodel.Device, error) {
	dev := &netmodel.Device{
		Name:       name,
		VRFs:       make(map[string]*netmodel.VRF, len(rd.VRFs)),
		Interfaces: make(map[string]*netmodel.Interface, len(rd.Interfaces)),
		ACLs:       make(map[string]*netmodel.ACL, len(rd.ACLs)),
	}
	for vrfName, rv := range rd.VRFs {
		dev.VRFs[vrfName] = &netmodel.VRF{Name: vrfName, Interfaces: rv.Interfaces}
	}
	for ifaceName, ri := range rd.Interfaces {
		iface, err := buildInterface(name, ifaceName, ri, dev)
		if err != nil {
			return nil, err
		}
		dev.Interfaces[ifaceName] = iface
	}
	for vrfName, vrf := range dev.VRFs {
		for _, ifaceName := range vrf.Interfaces {
			iface, ok := dev.Interfaces[ifaceName]
			if !ok {
				return nil, errors.Errorf("device %q vrf %q lists unknown interface %q",
					name, vrfName, ifaceName)
			}
			if iface.VRF != vrfName {
				return nil, errors.Errorf(
					"device %q interface %q assigned to vrf %q but listed by vrf %q",
					name, ifaceName, iface.VRF, vrfName)
			}
		}
	}
	for aclName, lines := range rd.ACLs {
		acl, err := buildACL(name, aclName, lines)
		if err != nil {
			return nil, err
		}
		dev.ACLs[aclName] = acl
	}
	return dev, nil
}

func buildInterface(
	device, name string,
	ri rawInterface,
	dev *netmodel.Device,
) (*netmodel.Interface, error) {

	vrf := ri.VRF
	if vrf == "" {
		vrf = "default"
	}
	if _, ok := dev.VRFs[vrf]; !ok {
		return nil, errors.Errorf("device %q interface %q references unknown vrf %q",
			device, name, vrf)
	}
	iface := &netmodel.Interface{
		Name:           name,
		VRF:            vrf,
		IncomingFilter: ri.IncomingFilter,
		OutgoingFilter: ri.OutgoingFilter,
	}
	for _, rn := range ri.SourceNats {
		first, err := netip.ParseAddr(rn.PoolFirst)
		if err != nil {
			return nil, errors.Wrapf(err, "device %q interface %q nat pool start", device, name)
		}
		last, err := netip.ParseAddr(rn.PoolLast)
		if err != nil {
			return nil, errors.Wrapf(err, "device %q interface %q nat pool end", device, name)
		}
		if last.Less(first) {
			return nil, errors.Errorf("device %q interface %q nat pool %s-%s is inverted",
				device, name, rn.PoolFirst, rn.PoolLast)
		}
		iface.SourceNats = append(iface.SourceNats, netmodel.SourceNat{
			ACL:       rn.ACL,
			PoolFirst: first,
			PoolLast:  last,
		})
	}
	return iface, nil
}

func buildACL(device, name string, lines []rawACLLine) (*netmodel.ACL, error) {
	acl := &netmodel.ACL{Name: name}
	for i, rl := range lines {
		var action netmodel.LineAction
		switch rl.Action {
		case "permit":
			action = netmodel.Permit
		case "deny":
			action = netmodel.Deny
		default:
			return nil, errors.Errorf("device %q acl %q line %d: unknown action %q",
				device, name, i, rl.Action)
		}
		match, err := buildMatch(rl)
		if err != nil {
			return nil, errors.Wrapf(err, "device %q acl %q line %d", device, name, i)
		}
		acl.Lines = append(acl.Lines, netmodel.ACLLine{Action: action, Match: match})
	}
	return acl, nil
}

func buildMatch(rl rawACLLine) (netmodel.MatchExpr, error) {
	var conj []netmodel.MatchExpr

	header := netmodel.MatchHeader{
		Protocols: rl.Protocols,
		ICMPTypes: rl.ICMPTypes,
		ICMPCodes: rl.ICMPCodes,
	}
	hasHeader := len(rl.Protocols) > 0 || len(rl.ICMPTypes) > 0 || len(rl.ICMPCodes) > 0
	for _, rf := range rl.TCPFlags {
		header.TCPFlags = append(header.TCPFlags, netmodel.TCPFlags{
			UseSyn: rf.Syn != nil, Syn: rf.Syn != nil && *rf.Syn,
			UseAck: rf.Ack != nil, Ack: rf.Ack != nil && *rf.Ack,
			UseRst: rf.Rst != nil, Rst: rf.Rst != nil && *rf.Rst,
			UseFin: rf.Fin != nil, Fin: rf.Fin != nil && *rf.Fin,
		})
		hasHeader = true
	}
	if len(rl.SrcIPs) > 0 {
		set, err := ParseIPSet(rl.SrcIPs)
		if err != nil {
			return nil, err
		}
		header.SrcIPs = set
		hasHeader = true
	}
	if len(rl.DstIPs) > 0 {
		set, err := ParseIPSet(rl.DstIPs)
		if err != nil {
			return nil, err
		}
		header.DstIPs = set
		hasHeader = true
	}
	if len(rl.SrcPorts) > 0 {
		ranges, err := parsePortRanges(rl.SrcPorts)
		if err != nil {
			return nil, err
		}
		header.SrcPorts = ranges
		hasHeader = true
	}
	if len(rl.DstPorts) > 0 {
		ranges, err := parsePortRanges(rl.DstPorts)
		if err != nil {
			return nil, err
		}
		header.DstPorts = ranges
		hasHeader = true
	}
	if hasHeader {
		conj = append(conj, header)
	}
	if len(rl.SrcInterfaces) > 0 {
		conj = append(conj, netmodel.MatchSrcInterface{Interfaces: rl.SrcInterfaces})
	}
	if rl.OriginatingFromDevice {
		conj = append(conj, netmodel.MatchOriginatingFromDevice{})
	}

	switch len(conj) {
	case 0:
		return netmodel.MatchTrue{}, nil
	case 1:
		return conj[0], nil
	default:
		return netmodel.MatchAnd{Operands: conj}, nil
	}
}

func buildForwarding(rf rawForwarding) (*netmodel.Forwarding, error) {
	fwd := &netmodel.Forwarding{}
	var err error
	if fwd.RoutableIPs, err = buildVRFSets(rf.Routable); err != nil {
		return nil, errors.Wrap(err, "routable")
	}
	if fwd.AcceptIPs, err = buildVRFSets(rf.Accept); err != nil {
		return nil, errors.Wrap(err, "accept")
	}
	if fwd.NullRoutedIPs, err = buildVRFSets(rf.NullRouted); err != nil {
		return nil, errors.Wrap(err, "null_routed")
	}
	if len(rf.NeighborUnreachable) > 0 {
		fwd.NeighborUnreachable = make(map[string]map[string]map[string]*netipx.IPSet)
		for device, vrfs := range rf.NeighborUnreachable {
			fwd.NeighborUnreachable[device] = make(map[string]map[string]*netipx.IPSet)
			for vrf, ifaces := range vrfs {
				byIface := make(map[string]*netipx.IPSet, len(ifaces))
				for iface, prefixes := range ifaces {
					set, err := ParseIPSet(prefixes)
					if err != nil {
						return nil, errors.Wrapf(err, "neighbor_unreachable %s/%s/%s",
							device, vrf, iface)
					}
					byIface[iface] = set
				}
				fwd.NeighborUnreachable[device][vrf] = byIface
			}
		}
	}
	if len(rf.Links) > 0 {
		fwd.ArpTrueEdge = make(map[netmodel.Link]*netipx.IPSet, len(rf.Links))
		for _, rl := range rf.Links {
			set, err := ParseIPSet(rl.IPs)
			if err != nil {
				return nil, errors.Wrapf(err, "link %s/%s-%s/%s",
					rl.Device1, rl.Iface1, rl.Device2, rl.Iface2)
			}
			link := netmodel.Link{
				Device1: rl.Device1, Iface1: rl.Iface1,
				Device2: rl.Device2, Iface2: rl.Iface2,
			}
			fwd.ArpTrueEdge[link] = set
		}
	}
	return fwd, nil
}

func buildVRFSets(raw map[string]map[string][]string) (map[string]map[string]*netipx.IPSet, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]map[string]*netipx.IPSet, len(raw))
	for device, vrfs := range raw {
		byVRF := make(map[string]*netipx.IPSet, len(vrfs))
		for vrf, prefixes := range vrfs {
			set, err := ParseIPSet(prefixes)
			if err != nil {
				return nil, errors.Wrapf(err, "%s/%s", device, vrf)
			}
			byVRF[vrf] = set
		}
		out[device] = byVRF
	}
	return out, nil
}

// ParseIPSet accepts prefixes ("10.0.0.0/8"), single addresses and
// explicit ranges ("10.0.0.1-10.0.0.9").
func ParseIPSet(specs []string) (*netipx.IPSet, error) {
	var sb netipx.IPSetBuilder
	for _, spec := range specs {
		switch {
		case strings.Contains(spec, "/"):
			prefix, err := netip.ParsePrefix(spec)
			if err != nil {
				return nil, errors.Wrapf(err, "bad prefix %q", spec)
			}
			sb.AddPrefix(prefix)
		case strings.Contains(spec, "-"):
			lo, hi, _ := strings.Cut(spec, "-")
			from, err := netip.ParseAddr(strings.TrimSpace(lo))
			if err != nil {
				return nil, errors.Wrapf(err, "bad range %q", spec)
			}
			to, err := netip.ParseAddr(strings.TrimSpace(hi))
			if err != nil {
				return nil, errors.Wrapf(err, "bad range %q", spec)
			}
			r := netipx.IPRangeFrom(from, to)
			if !r.IsValid() {
				return nil, errors.Errorf("inverted range %q", spec)
			}
			sb.AddRange(r)
		default:
			addr, err := netip.ParseAddr(spec)
			if err != nil {
				return nil, errors.Wrapf(err, "bad address %q", spec)
			}
			sb.Add(addr)
		}
	}
	return sb.IPSet()
}

func parsePortRanges(specs []string) ([]netmodel.PortRange, error) {
	out := make([]netmodel.PortRange, 0, len(specs))
	for _, spec := range specs {
		lo, hi, isRange := strings.Cut(spec, "-")
		loVal, err := parsePort(lo)
		if err != nil {
			return nil, errors.Wrapf(err, "bad port %q", spec)
		}
		hiVal := loVal
		if isRange {
			if hiVal, err = parsePort(hi); err != nil {
				return nil, errors.Wrapf(err, "bad port %q", spec)
			}
		}
		if hiVal < loVal {
			return nil, errors.Errorf("inverted port range %q", spec)
		}
		out = append(out, netmodel.PortRange{Lo: loVal, Hi: hiVal})
	}
	return out, nil
}

func parsePort(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}
