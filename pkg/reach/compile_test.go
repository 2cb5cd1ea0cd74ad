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
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go4.org/netipx"

	"github.com/symflow/symflow/pkg/bdd"
	"github.com/symflow/symflow/pkg/netmodel"
)

func compileFixture(t *testing.T) aclCompiler {
	t.Helper()
	f, err := bdd.NewFactory(0)
	require.NoError(t, err)
	pkt, err := bdd.NewPacket(f)
	require.NoError(t, err)
	dev := &netmodel.Device{
		Name:       "r1",
		VRFs:       map[string]*netmodel.VRF{"default": {Name: "default", Interfaces: []string{"eth0", "eth1"}}},
		Interfaces: map[string]*netmodel.Interface{},
	}
	for _, iface := range []string{"eth0", "eth1"} {
		dev.Interfaces[iface] = &netmodel.Interface{Name: iface, VRF: "default"}
	}
	src, err := NewSourceMgr(f, dev)
	require.NoError(t, err)
	return aclCompiler{pkt: pkt, src: src}
}

func ipSet(t *testing.T, prefix string) *netipx.IPSet {
	t.Helper()
	var sb netipx.IPSetBuilder
	sb.AddPrefix(netip.MustParsePrefix(prefix))
	set, err := sb.IPSet()
	require.NoError(t, err)
	return set
}

func TestACLFirstMatch(t *testing.T) {
	c := compileFixture(t)
	permit := c.acl(&netmodel.ACL{Name: "test", Lines: []netmodel.ACLLine{
		{Action: netmodel.Deny, Match: netmodel.MatchHeader{DstIPs: ipSet(t, "10.1.0.0/16")}},
		{Action: netmodel.Permit, Match: netmodel.MatchHeader{DstIPs: ipSet(t, "10.0.0.0/8")}},
	}})

	ten := ipSetToBDD(c.pkt.DstIP, ipSet(t, "10.0.0.0/8"))
	tenOne := ipSetToBDD(c.pkt.DstIP, ipSet(t, "10.1.0.0/16"))
	assert.True(t, permit.Equal(ten.Diff(tenOne)), "the deny line shadows its slice of the permit line")
}

func TestACLImplicitDeny(t *testing.T) {
	c := compileFixture(t)
	assert.True(t, c.acl(&netmodel.ACL{Name: "empty"}).IsZero())
	assert.True(t, c.acl(&netmodel.ACL{Name: "deny-only", Lines: []netmodel.ACLLine{
		{Action: netmodel.Deny, Match: netmodel.MatchTrue{}},
	}}).IsZero())
}

func TestMatchExprCombinators(t *testing.T) {
	c := compileFixture(t)

	tenDst := netmodel.MatchHeader{DstIPs: ipSet(t, "10.0.0.0/8")}
	tenDstSet := ipSetToBDD(c.pkt.DstIP, ipSet(t, "10.0.0.0/8"))

	testCases := map[string]struct {
		expr netmodel.MatchExpr
		want bdd.Set
	}{
		"true":  {netmodel.MatchTrue{}, c.pkt.Factory().One()},
		"false": {netmodel.MatchFalse{}, c.pkt.Factory().Zero()},
		"not":   {netmodel.MatchNot{Operand: tenDst}, tenDstSet.Not()},
		"and": {
			netmodel.MatchAnd{Operands: []netmodel.MatchExpr{tenDst, netmodel.MatchTrue{}}},
			tenDstSet,
		},
		"or": {
			netmodel.MatchOr{Operands: []netmodel.MatchExpr{tenDst, netmodel.MatchFalse{}}},
			tenDstSet,
		},
		"empty and": {netmodel.MatchAnd{}, c.pkt.Factory().One()},
		"empty or":  {netmodel.MatchOr{}, c.pkt.Factory().Zero()},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert.True(t, c.expr(tc.expr).Equal(tc.want))
		})
	}
}

func TestMatchSourceInterface(t *testing.T) {
	c := compileFixture(t)

	fromEth0 := c.expr(netmodel.MatchSrcInterface{Interfaces: []string{"eth0"}})
	fromDevice := c.expr(netmodel.MatchOriginatingFromDevice{})
	assert.True(t, fromEth0.Equal(c.src.SourceInterfaceSet("eth0")))
	assert.True(t, fromEth0.And(fromDevice).IsZero())

	both := c.expr(netmodel.MatchSrcInterface{Interfaces: []string{"eth0", "eth1"}})
	assert.True(t, both.Or(fromDevice).Equal(c.src.IsValidValue()))
}

func TestMatchHeaderFields(t *testing.T) {
	c := compileFixture(t)

	m := netmodel.MatchHeader{
		SrcIPs:    ipSet(t, "192.168.0.0/16"),
		DstPorts:  []netmodel.PortRange{{Lo: 80, Hi: 80}, {Lo: 443, Hi: 443}},
		Protocols: []uint8{6},
	}
	got := c.expr(m)

	want := ipSetToBDD(c.pkt.SrcIP, ipSet(t, "192.168.0.0/16")).
		And(c.pkt.DstPort.Value(80).Or(c.pkt.DstPort.Value(443))).
		And(c.pkt.Protocol.Value(6))
	assert.True(t, got.Equal(want))

	// An empty header matches everything.
	assert.True(t, c.expr(netmodel.MatchHeader{}).IsOne())
}

func TestMatchHeaderICMP(t *testing.T) {
	c := compileFixture(t)

	got := c.expr(netmodel.MatchHeader{
		Protocols: []uint8{1},
		ICMPTypes: []uint8{8},
		ICMPCodes: []uint8{0},
	})
	want := c.pkt.Protocol.Value(1).
		And(c.pkt.ICMPType.Value(8)).
		And(c.pkt.ICMPCode.Value(0))
	assert.True(t, got.Equal(want))

	multi := c.expr(netmodel.MatchHeader{ICMPTypes: []uint8{3, 11}})
	assert.True(t, multi.Equal(c.pkt.ICMPType.Value(3).Or(c.pkt.ICMPType.Value(11))))
}

func TestMatchHeaderTCPFlags(t *testing.T) {
	c := compileFixture(t)

	// A bare SYN, the classic connection-initiation match.
	synOnly := c.expr(netmodel.MatchHeader{TCPFlags: []netmodel.TCPFlags{{
		UseSyn: true, Syn: true,
		UseAck: true, Ack: false,
	}}})
	want := c.pkt.TCPSyn.Value(1).And(c.pkt.TCPAck.Value(0))
	assert.True(t, synOnly.Equal(want))

	// Entries are alternatives.
	rstOrFin := c.expr(netmodel.MatchHeader{TCPFlags: []netmodel.TCPFlags{
		{UseRst: true, Rst: true},
		{UseFin: true, Fin: true},
	}})
	assert.True(t, rstOrFin.Equal(c.pkt.TCPRst.Value(1).Or(c.pkt.TCPFin.Value(1))))

	// An entry using no flags constrains nothing.
	assert.True(t, c.expr(netmodel.MatchHeader{TCPFlags: []netmodel.TCPFlags{{}}}).IsOne())
}

func TestIPSetToBDD(t *testing.T) {
	c := compileFixture(t)

	assert.True(t, ipSetToBDD(c.pkt.DstIP, nil).IsZero())

	var sb netipx.IPSetBuilder
	sb.AddPrefix(netip.MustParsePrefix("10.0.0.0/8"))
	sb.AddPrefix(netip.MustParsePrefix("2001:db8::/32"))
	mixed, err := sb.IPSet()
	require.NoError(t, err)

	got := ipSetToBDD(c.pkt.DstIP, mixed)
	want := c.pkt.DstIP.Range(
		bdd.IPValue(netip.MustParseAddr("10.0.0.0")),
		bdd.IPValue(netip.MustParseAddr("10.255.255.255")),
	)
	assert.True(t, got.Equal(want), "non-IPv4 ranges are ignored")
}
