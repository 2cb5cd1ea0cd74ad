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

package reach_test

import (
	"net/netip"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go4.org/netipx"

	"github.com/symflow/symflow/pkg/bdd"
	"github.com/symflow/symflow/pkg/netmodel"
	"github.com/symflow/symflow/pkg/reach"
	"github.com/symflow/symflow/pkg/reach/state"
)

func mustIPSet(t *testing.T, prefixes ...string) *netipx.IPSet {
	t.Helper()
	var sb netipx.IPSetBuilder
	for _, p := range prefixes {
		sb.AddPrefix(netip.MustParsePrefix(p))
	}
	set, err := sb.IPSet()
	require.NoError(t, err)
	return set
}

func testPacket(t *testing.T) *bdd.Packet {
	t.Helper()
	f, err := bdd.NewFactory(0)
	require.NoError(t, err)
	pkt, err := bdd.NewPacket(f)
	require.NoError(t, err)
	return pkt
}

func permitAll() []netmodel.ACLLine {
	return []netmodel.ACLLine{{Action: netmodel.Permit, Match: netmodel.MatchTrue{}}}
}

func denyDstThenPermit(t *testing.T, prefix string) []netmodel.ACLLine {
	return []netmodel.ACLLine{
		{Action: netmodel.Deny, Match: netmodel.MatchHeader{DstIPs: mustIPSet(t, prefix)}},
		{Action: netmodel.Permit, Match: netmodel.MatchTrue{}},
	}
}

// chainNetwork is the two-device reference topology: a --eth1/eth1-- b,
// where a forwards everything toward b and b accepts everything.
func chainNetwork(t *testing.T) *netmodel.Network {
	t.Helper()
	a := newTestDevice("a", "eth1")
	b := newTestDevice("b", "eth1")
	return &netmodel.Network{
		Devices: map[string]*netmodel.Device{"a": a, "b": b},
		Forwarding: &netmodel.Forwarding{
			RoutableIPs: map[string]map[string]*netipx.IPSet{
				"a": {"default": mustIPSet(t, "0.0.0.0/0")},
			},
			AcceptIPs: map[string]map[string]*netipx.IPSet{
				"b": {"default": mustIPSet(t, "0.0.0.0/0")},
			},
			ArpTrueEdge: map[netmodel.Link]*netipx.IPSet{
				{Device1: "a", Iface1: "eth1", Device2: "b", Iface2: "eth1"}: mustIPSet(t, "0.0.0.0/0"),
			},
		},
	}
}

func originVRFA() []reach.AssignmentEntry {
	return []reach.AssignmentEntry{{
		Locations: []reach.Location{reach.VRFLocation{Device: "a", VRF: "default"}},
	}}
}

func TestChainAllAccepted(t *testing.T) {
	pkt := testPacket(t)
	factory, err := reach.NewFactory(pkt, chainNetwork(t), nil)
	require.NoError(t, err)

	analysis, err := factory.Analysis(originVRFA(), nil, []string{"b"}, []reach.Disposition{reach.Accepted})
	require.NoError(t, err)

	sets, err := analysis.ReachableSets()
	require.NoError(t, err)
	require.Len(t, sets, 1)

	got := sets[reach.VRFLocation{Device: "a", VRF: "default"}]
	assert.True(t, got.IsOne(), "nothing along the path restricts the flow")
}

func TestChainEgressFilterExcludesRange(t *testing.T) {
	pkt := testPacket(t)
	network := chainNetwork(t)
	a := network.Devices["a"]
	a.ACLs["out"] = &netmodel.ACL{Name: "out", Lines: denyDstThenPermit(t, "10.0.0.0/24")}
	a.Interfaces["eth1"].OutgoingFilter = "out"

	factory, err := reach.NewFactory(pkt, network, nil)
	require.NoError(t, err)
	analysis, err := factory.Analysis(originVRFA(), nil, []string{"b"}, []reach.Disposition{reach.Accepted})
	require.NoError(t, err)

	sets, err := analysis.ReachableSets()
	require.NoError(t, err)
	got := sets[reach.VRFLocation{Device: "a", VRF: "default"}]

	blocked := pkt.DstIP.Range(
		bdd.IPValue(netip.MustParseAddr("10.0.0.0")),
		bdd.IPValue(netip.MustParseAddr("10.0.0.255")),
	)
	assert.True(t, got.Equal(blocked.Not()), "exactly the denied range is excluded")
}

func TestChainSourceNatRewrites(t *testing.T) {
	pkt := testPacket(t)
	network := chainNetwork(t)
	a := network.Devices["a"]
	a.ACLs["nat-match"] = &netmodel.ACL{Name: "nat-match", Lines: []netmodel.ACLLine{{
		Action: netmodel.Permit,
		Match:  netmodel.MatchHeader{SrcIPs: mustIPSet(t, "192.168.0.0/16")},
	}}}
	a.Interfaces["eth1"].SourceNats = []netmodel.SourceNat{{
		ACL:       "nat-match",
		PoolFirst: netip.MustParseAddr("1.2.3.4"),
		PoolLast:  netip.MustParseAddr("1.2.3.10"),
	}}

	factory, err := reach.NewFactory(pkt, network, nil)
	require.NoError(t, err)

	entries := []reach.AssignmentEntry{{
		IPSpace:   mustIPSet(t, "192.168.5.5/32"),
		Locations: []reach.Location{reach.VRFLocation{Device: "a", VRF: "default"}},
	}}
	analysis, err := factory.Analysis(entries, nil, []string{"b"}, []reach.Disposition{reach.Accepted})
	require.NoError(t, err)

	// The original source still reaches b...
	sets, err := analysis.ReachableSets()
	require.NoError(t, err)
	origin := sets[reach.VRFLocation{Device: "a", VRF: "default"}]
	assert.False(t, origin.IsZero())
	assert.False(t, origin.And(pkt.SrcIP.Value(bdd.IPValue(netip.MustParseAddr("192.168.5.5")))).IsZero())

	// ...but the packets observed at b carry a pool source, not the original.
	forward, err := analysis.ForwardReachableSets()
	require.NoError(t, err)
	atB := forward[state.NodeAccept{Device: "b"}]
	require.False(t, atB.IsZero())

	pool := pkt.SrcIP.Range(
		bdd.IPValue(netip.MustParseAddr("1.2.3.4")),
		bdd.IPValue(netip.MustParseAddr("1.2.3.10")),
	)
	assert.True(t, atB.And(pool.Not()).IsZero(), "every packet at b has a pool source")
	assert.True(t, atB.And(pkt.SrcIP.Value(bdd.IPValue(netip.MustParseAddr("192.168.5.5")))).IsZero(),
		"the original source is not observable at b")
}

// partitionNetwork drives one final device into every disposition:
// dst 50/8 denied inbound, 10/8 accepted, 20/8 null-routed, 30/8 out an
// unresponsive interface, 40.1/16 denied by the egress filter, the rest of
// 40/8 handed to b, everything else unroutable.
func partitionNetwork(t *testing.T) *netmodel.Network {
	t.Helper()
	a := newTestDevice("a", "eth0", "eth1")
	a.ACLs["in"] = &netmodel.ACL{Name: "in", Lines: denyDstThenPermit(t, "50.0.0.0/8")}
	a.ACLs["out"] = &netmodel.ACL{Name: "out", Lines: denyDstThenPermit(t, "40.1.0.0/16")}
	a.Interfaces["eth0"].IncomingFilter = "in"
	a.Interfaces["eth1"].OutgoingFilter = "out"
	b := newTestDevice("b", "eth1")

	return &netmodel.Network{
		Devices: map[string]*netmodel.Device{"a": a, "b": b},
		Forwarding: &netmodel.Forwarding{
			RoutableIPs: map[string]map[string]*netipx.IPSet{
				"a": {"default": mustIPSet(t, "10.0.0.0/8", "20.0.0.0/8", "30.0.0.0/8", "40.0.0.0/8")},
			},
			AcceptIPs: map[string]map[string]*netipx.IPSet{
				"a": {"default": mustIPSet(t, "10.0.0.0/8")},
				"b": {"default": mustIPSet(t, "0.0.0.0/0")},
			},
			NullRoutedIPs: map[string]map[string]*netipx.IPSet{
				"a": {"default": mustIPSet(t, "20.0.0.0/8")},
			},
			NeighborUnreachable: map[string]map[string]map[string]*netipx.IPSet{
				"a": {"default": {"eth1": mustIPSet(t, "30.0.0.0/8")}},
			},
			ArpTrueEdge: map[netmodel.Link]*netipx.IPSet{
				{Device1: "a", Iface1: "eth1", Device2: "b", Iface2: "eth1"}: mustIPSet(t, "40.0.0.0/8"),
			},
		},
	}
}

func TestDispositionPartition(t *testing.T) {
	pkt := testPacket(t)
	factory, err := reach.NewFactory(pkt, partitionNetwork(t), nil)
	require.NoError(t, err)

	origin := reach.InterfaceLinkLocation{Device: "a", Interface: "eth0"}
	entries := []reach.AssignmentEntry{{Locations: []reach.Location{origin}}}

	dstRange := func(prefixLo string, bitsHi uint64) bdd.Set {
		lo := bdd.IPValue(netip.MustParseAddr(prefixLo))
		return pkt.DstIP.Range(lo, lo+bitsHi)
	}
	slash8 := uint64(1)<<24 - 1
	want := map[reach.Disposition]bdd.Set{
		reach.DeniedIn:                       dstRange("50.0.0.0", slash8),
		reach.Accepted:                       dstRange("10.0.0.0", slash8),
		reach.NullRouted:                     dstRange("20.0.0.0", slash8),
		reach.NeighborUnreachableDisposition: dstRange("30.0.0.0", slash8),
		reach.DeniedOut:                      dstRange("40.1.0.0", uint64(1)<<16-1),
		reach.NoRoute: dstRange("10.0.0.0", slash8).
			Or(dstRange("20.0.0.0", slash8)).
			Or(dstRange("30.0.0.0", slash8)).
			Or(dstRange("40.0.0.0", slash8)).
			Or(dstRange("50.0.0.0", slash8)).
			Not(),
	}

	got := make(map[reach.Disposition]bdd.Set)
	for d, wantSet := range want {
		analysis, err := factory.Analysis(entries, nil, []string{"a"}, []reach.Disposition{d})
		require.NoError(t, err)
		sets, err := analysis.ReachableSets()
		require.NoError(t, err)
		got[d] = sets[origin]
		assert.True(t, got[d].Equal(wantSet), "disposition %v", d)
	}

	// Pairwise disjoint.
	for d1, s1 := range got {
		for d2, s2 := range got {
			if d1 == d2 {
				continue
			}
			assert.True(t, s1.And(s2).IsZero(), "%v and %v overlap", d1, d2)
		}
	}

	// The union covers everything except the traffic that leaves for b.
	all := pkt.Factory().Zero()
	for _, s := range got {
		all = all.Or(s)
	}
	leavesForB := dstRange("40.0.0.0", slash8).Diff(dstRange("40.1.0.0", uint64(1)<<16-1))
	assert.True(t, all.Or(leavesForB).IsOne())
	assert.True(t, all.And(leavesForB).IsZero())
}

func TestDeniedOutAcrossInterfaces(t *testing.T) {
	pkt := testPacket(t)
	// Two egress interfaces in one vrf, each with its own filter and its own
	// unreachable neighbor range. Both denied slices must surface.
	a := newTestDevice("a", "eth0", "eth1", "eth2")
	a.ACLs["out1"] = &netmodel.ACL{Name: "out1", Lines: denyDstThenPermit(t, "30.0.0.0/8")}
	a.ACLs["out2"] = &netmodel.ACL{Name: "out2", Lines: denyDstThenPermit(t, "31.0.0.0/8")}
	a.Interfaces["eth1"].OutgoingFilter = "out1"
	a.Interfaces["eth2"].OutgoingFilter = "out2"
	network := &netmodel.Network{
		Devices: map[string]*netmodel.Device{"a": a},
		Forwarding: &netmodel.Forwarding{
			RoutableIPs: map[string]map[string]*netipx.IPSet{
				"a": {"default": mustIPSet(t, "30.0.0.0/8", "31.0.0.0/8")},
			},
			NeighborUnreachable: map[string]map[string]map[string]*netipx.IPSet{
				"a": {"default": {
					"eth1": mustIPSet(t, "30.0.0.0/8"),
					"eth2": mustIPSet(t, "31.0.0.0/8"),
				}},
			},
		},
	}
	factory, err := reach.NewFactory(pkt, network, nil)
	require.NoError(t, err)

	origin := reach.InterfaceLinkLocation{Device: "a", Interface: "eth0"}
	analysis, err := factory.Analysis(
		[]reach.AssignmentEntry{{Locations: []reach.Location{origin}}},
		nil, []string{"a"}, []reach.Disposition{reach.DeniedOut})
	require.NoError(t, err)
	sets, err := analysis.ReachableSets()
	require.NoError(t, err)

	got := sets[origin]
	lo := bdd.IPValue(netip.MustParseAddr("30.0.0.0"))
	hi := bdd.IPValue(netip.MustParseAddr("31.255.255.255"))
	assert.True(t, got.Equal(pkt.DstIP.Range(lo, hi)),
		"denied traffic of every egress interface is observed")
}

func TestDeterministicResults(t *testing.T) {
	build := func() (*bdd.Packet, map[reach.Disposition][]string) {
		pkt := testPacket(t)
		factory, err := reach.NewFactory(pkt, partitionNetwork(t), nil)
		require.NoError(t, err)
		origin := reach.InterfaceLinkLocation{Device: "a", Interface: "eth0"}
		entries := []reach.AssignmentEntry{{Locations: []reach.Location{origin}}}

		edgeKeys := make(map[reach.Disposition][]string)
		for _, d := range []reach.Disposition{reach.Accepted, reach.DeniedOut} {
			analysis, err := factory.Analysis(entries, nil, []string{"a"}, []reach.Disposition{d})
			require.NoError(t, err)
			var keys []string
			for pre, posts := range analysis.Edges() {
				for post := range posts {
					keys = append(keys, pre.String()+" -> "+post.String())
				}
			}
			sort.Strings(keys)
			edgeKeys[d] = keys
		}
		return pkt, edgeKeys
	}

	_, first := build()
	_, second := build()
	assert.Empty(t, cmp.Diff(first, second), "identical inputs must build identical graphs")
}

func TestRepeatedAnalysisIdentical(t *testing.T) {
	pkt := testPacket(t)
	factory, err := reach.NewFactory(pkt, chainNetwork(t), nil)
	require.NoError(t, err)

	run := func() bdd.Set {
		analysis, err := factory.Analysis(originVRFA(), nil, []string{"b"}, []reach.Disposition{reach.Accepted})
		require.NoError(t, err)
		sets, err := analysis.ReachableSets()
		require.NoError(t, err)
		return sets[reach.VRFLocation{Device: "a", VRF: "default"}]
	}
	assert.True(t, run().Equal(run()))
}

func TestNoFilterIdentity(t *testing.T) {
	pkt := testPacket(t)
	factory, err := reach.NewFactory(pkt, chainNetwork(t), nil)
	require.NoError(t, err)
	analysis, err := factory.Analysis(originVRFA(), nil, []string{"b"}, []reach.Disposition{reach.Accepted})
	require.NoError(t, err)

	edges := analysis.Edges()

	// Unfiltered ingress admits the full domain into the vrf.
	in := edges[state.PreInInterface{Device: "b", Interface: "eth1"}][state.PostInVRF{Device: "b", VRF: "default"}]
	assert.True(t, in.TraverseForward(pkt.Factory().One()).IsOne())

	// And there is no drop edge to generate at all.
	_, hasDrop := edges[state.PreInInterface{Device: "b", Interface: "eth1"}][state.NodeDropACLIn{Device: "b"}]
	assert.False(t, hasDrop)
}

func TestLoopDispositionRejected(t *testing.T) {
	pkt := testPacket(t)
	factory, err := reach.NewFactory(pkt, chainNetwork(t), nil)
	require.NoError(t, err)

	_, err = factory.Analysis(originVRFA(), nil, []string{"b"}, []reach.Disposition{reach.Loop})
	assert.ErrorIs(t, err, reach.ErrLoopNotSupported)
}

func TestCycleDetected(t *testing.T) {
	pkt := testPacket(t)
	// a and b forward everything to each other and accept nothing.
	a := newTestDevice("a", "eth1")
	b := newTestDevice("b", "eth1")
	network := &netmodel.Network{
		Devices: map[string]*netmodel.Device{"a": a, "b": b},
		Forwarding: &netmodel.Forwarding{
			RoutableIPs: map[string]map[string]*netipx.IPSet{
				"a": {"default": mustIPSet(t, "0.0.0.0/0")},
				"b": {"default": mustIPSet(t, "0.0.0.0/0")},
			},
			ArpTrueEdge: map[netmodel.Link]*netipx.IPSet{
				{Device1: "a", Iface1: "eth1", Device2: "b", Iface2: "eth1"}: mustIPSet(t, "0.0.0.0/0"),
				{Device1: "b", Iface1: "eth1", Device2: "a", Iface2: "eth1"}: mustIPSet(t, "0.0.0.0/0"),
			},
		},
	}
	factory, err := reach.NewFactory(pkt, network, nil)
	require.NoError(t, err)
	analysis, err := factory.Analysis(originVRFA(), nil, []string{"a", "b"},
		[]reach.Disposition{reach.NoRoute})
	require.NoError(t, err)

	_, err = analysis.ReachableSets()
	assert.True(t, errors.Is(err, reach.ErrCycle))
}

func TestUnknownOriginRejected(t *testing.T) {
	pkt := testPacket(t)
	factory, err := reach.NewFactory(pkt, chainNetwork(t), nil)
	require.NoError(t, err)

	testCases := map[string]reach.Location{
		"unknown device":    reach.VRFLocation{Device: "nope", VRF: "default"},
		"unknown vrf":       reach.VRFLocation{Device: "a", VRF: "nope"},
		"unknown interface": reach.InterfaceLinkLocation{Device: "a", Interface: "nope"},
	}
	for name, loc := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := factory.Analysis(
				[]reach.AssignmentEntry{{Locations: []reach.Location{loc}}},
				nil, []string{"b"}, []reach.Disposition{reach.Accepted})
			assert.Error(t, err)
		})
	}
}

func TestDestinationConstraint(t *testing.T) {
	pkt := testPacket(t)
	factory, err := reach.NewFactory(pkt, chainNetwork(t), nil)
	require.NoError(t, err)

	analysis, err := factory.Analysis(originVRFA(), mustIPSet(t, "10.0.0.0/24"),
		[]string{"b"}, []reach.Disposition{reach.Accepted})
	require.NoError(t, err)
	sets, err := analysis.ReachableSets()
	require.NoError(t, err)

	got := sets[reach.VRFLocation{Device: "a", VRF: "default"}]
	want := pkt.DstIP.Range(
		bdd.IPValue(netip.MustParseAddr("10.0.0.0")),
		bdd.IPValue(netip.MustParseAddr("10.0.0.255")),
	)
	assert.True(t, got.Equal(want))
}
