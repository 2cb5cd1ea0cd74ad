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

// Package reach implements symbolic reachability analysis over a modeled
// network. A Factory compiles per-device predicates (filter permit sets,
// forwarding outcomes) into the symbolic packet domain once per snapshot,
// then builds per-query reachability graphs whose nodes are journey states
// and whose edges transform symbolic packet sets. An Analysis answers, for
// each origin, which packets can reach the queried dispositions.
//
// Whenever a packet is inside a device the graph maintains a valid value in
// that device's source-validity group, so that filters matching on the
// ingress interface or on local origination resolve correctly. Forward
// traversals establish the invariant by constraining to a single source;
// backward traversals establish it with SourceMgr.IsValidValue. Every edge
// that leaves a device erases the group by existential quantification.
package reach

import (
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go4.org/netipx"
	"golang.org/x/sync/errgroup"

	"github.com/symflow/symflow/pkg/bdd"
	"github.com/symflow/symflow/pkg/netmodel"
	"github.com/symflow/symflow/pkg/reach/state"
)

// Factory holds the per-snapshot predicate caches and generates
// reachability graphs. It is immutable after construction; any number of
// queries may run against it concurrently.
type Factory struct {
	pkt    *bdd.Packet
	one    bdd.Set
	zero   bdd.Set
	logger *zap.Logger

	devices map[string]*netmodel.Device
	fwd     *netmodel.Forwarding
	srcMgrs map[string]*SourceMgr

	// device -> acl -> permit/deny sets.
	aclPermit map[string]map[string]bdd.Set
	aclDeny   map[string]map[string]bdd.Set

	// Forwarding results lowered into the symbolic domain.
	arpTrueEdge         map[netmodel.Link]bdd.Set
	neighborUnreachable map[string]map[string]map[string]bdd.Set
	routable            map[string]map[string]bdd.Set
	nullRouted          map[string]map[string]bdd.Set
	vrfAccept           map[string]map[string]bdd.Set
	vrfNotAccept        map[string]map[string]bdd.Set

	// Cube of the source-address bits, quantified away by source NAT.
	srcIPVars bdd.VarSet
}

// NewFactory compiles the predicate caches for one network snapshot.
// Per-device compilation runs in parallel; the result is deterministic
// because all diagram variables are allocated beforehand in sorted device
// order and sets are canonical.
func NewFactory(pkt *bdd.Packet, network *netmodel.Network, logger *zap.Logger) (*Factory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()

	srcMgrs, err := NewSourceMgrs(pkt.Factory(), network.Devices)
	if err != nil {
		return nil, errors.Wrap(err, "allocating source trackers")
	}

	f := &Factory{
		pkt:     pkt,
		one:     pkt.Factory().One(),
		zero:    pkt.Factory().Zero(),
		logger:  logger,
		devices: network.Devices,
		fwd:     network.Forwarding,
		srcMgrs: srcMgrs,

		srcIPVars: pkt.SrcIP.VarSet(),
	}

	if err := f.computeACLBDDs(); err != nil {
		return nil, err
	}
	f.computeForwardingBDDs()

	factoryBuildDuration.Observe(time.Since(start).Seconds())
	logger.Debug("compiled snapshot predicates",
		zap.Int("devices", len(network.Devices)),
		zap.Duration("elapsed", time.Since(start)))
	return f, nil
}

// computeACLBDDs compiles every access list of every device into its permit
// set, one goroutine per device. Each goroutine fills its own slot; the
// slots are merged after the fan-in.
func (f *Factory) computeACLBDDs() error {
	names := sortedDeviceNames(f.devices)
	permitSlots := make([]map[string]bdd.Set, len(names))

	var g errgroup.Group
	for i, name := range names {
		i := i
		dev := f.devices[name]
		c := aclCompiler{pkt: f.pkt, src: f.srcMgrs[name]}
		g.Go(func() error {
			slot := make(map[string]bdd.Set, len(dev.ACLs))
			for aclName, acl := range dev.ACLs {
				slot[aclName] = c.acl(acl)
			}
			permitSlots[i] = slot
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.aclPermit = make(map[string]map[string]bdd.Set, len(names))
	f.aclDeny = make(map[string]map[string]bdd.Set, len(names))
	for i, name := range names {
		f.aclPermit[name] = permitSlots[i]
		deny := make(map[string]bdd.Set, len(permitSlots[i]))
		for aclName, permit := range permitSlots[i] {
			deny[aclName] = permit.Not()
		}
		f.aclDeny[name] = deny
	}
	return nil
}

// computeForwardingBDDs lowers the forwarding analysis into the symbolic
// domain. All sets constrain the destination address field.
func (f *Factory) computeForwardingBDDs() {
	dst := f.pkt.DstIP

	f.routable = compileNested(dst, f.fwd.RoutableIPs)
	f.vrfAccept = compileNested(dst, f.fwd.AcceptIPs)
	f.nullRouted = compileNested(dst, f.fwd.NullRoutedIPs)

	f.vrfNotAccept = make(map[string]map[string]bdd.Set, len(f.vrfAccept))
	for dev, vrfs := range f.vrfAccept {
		m := make(map[string]bdd.Set, len(vrfs))
		for vrf, accept := range vrfs {
			m[vrf] = accept.Not()
		}
		f.vrfNotAccept[dev] = m
	}

	f.arpTrueEdge = make(map[netmodel.Link]bdd.Set, len(f.fwd.ArpTrueEdge))
	for link, ips := range f.fwd.ArpTrueEdge {
		f.arpTrueEdge[link] = ipSetToBDD(dst, ips)
	}

	f.neighborUnreachable = make(map[string]map[string]map[string]bdd.Set,
		len(f.fwd.NeighborUnreachable))
	for dev, vrfs := range f.fwd.NeighborUnreachable {
		devMap := make(map[string]map[string]bdd.Set, len(vrfs))
		for vrf, ifaces := range vrfs {
			vrfMap := make(map[string]bdd.Set, len(ifaces))
			for iface, ips := range ifaces {
				vrfMap[iface] = ipSetToBDD(dst, ips)
			}
			devMap[vrf] = vrfMap
		}
		f.neighborUnreachable[dev] = devMap
	}
}

func compileNested(
	dst bdd.Integer,
	in map[string]map[string]*netipx.IPSet,
) map[string]map[string]bdd.Set {

	out := make(map[string]map[string]bdd.Set, len(in))
	for dev, vrfs := range in {
		m := make(map[string]bdd.Set, len(vrfs))
		for vrf, ips := range vrfs {
			m[vrf] = ipSetToBDD(dst, ips)
		}
		out[dev] = m
	}
	return out
}

// Analysis builds the reachability graph for one query and returns the
// solver over it. Source IP spaces are assigned to origination points by
// entries; dstIPs optionally constrains the destination (nil means
// unconstrained); finalNodes are the devices whose dispositions terminate
// the query; dispositions selects which terminals feed the Query state.
func (f *Factory) Analysis(
	entries []AssignmentEntry,
	dstIPs *netipx.IPSet,
	finalNodes []string,
	dispositions []Disposition,
) (*Analysis, error) {

	start := time.Now()

	roots, rootLocations, err := f.computeRoots(entries, dstIPs)
	if err != nil {
		return nil, err
	}

	var all []Edge
	all = append(all, f.generateEdges(finalNodes)...)
	rootEdges, err := f.generateRootEdges(roots)
	if err != nil {
		return nil, err
	}
	all = append(all, rootEdges...)
	queryEdges, err := f.generateQueryEdges(dispositions)
	if err != nil {
		return nil, err
	}
	all = append(all, queryEdges...)

	// Accumulate into the multimap, then hand the frozen result to the
	// solver. Nothing downstream mutates it. Edges colliding on the same
	// state pair merge by union, so the result is independent of generation
	// order.
	edges := make(map[state.State]map[state.State]Edge)
	for _, e := range all {
		postMap, ok := edges[e.Pre]
		if !ok {
			postMap = make(map[state.State]Edge)
			edges[e.Pre] = postMap
		}
		if existing, ok := postMap[e.Post]; ok {
			e = mergeParallel(existing, e)
		}
		postMap[e.Post] = e
	}

	analysisBuilds.Inc()
	analysisEdges.Observe(float64(len(all)))
	f.logger.Debug("built reachability graph",
		zap.Int("edges", len(all)),
		zap.Int("roots", len(roots)),
		zap.Duration("elapsed", time.Since(start)))

	return newAnalysis(f.one, f.zero, roots, rootLocations, edges), nil
}

// AllAcceptedAnalysis is the common default query: all devices final,
// disposition Accepted, destination unconstrained.
func (f *Factory) AllAcceptedAnalysis(entries []AssignmentEntry) (*Analysis, error) {
	return f.Analysis(entries, nil, sortedDeviceNames(f.devices), []Disposition{Accepted})
}

func (f *Factory) computeRoots(
	entries []AssignmentEntry,
	dstIPs *netipx.IPSet,
) (map[state.State]bdd.Set, map[state.State]Location, error) {

	dstSet := f.one
	if dstIPs != nil {
		dstSet = ipSetToBDD(f.pkt.DstIP, dstIPs)
	}

	roots := make(map[state.State]bdd.Set)
	rootLocations := make(map[state.State]Location)
	for _, entry := range entries {
		srcSet := f.one
		if entry.IPSpace != nil {
			srcSet = ipSetToBDD(f.pkt.SrcIP, entry.IPSpace)
		}
		headerSet := srcSet.And(dstSet)

		for _, loc := range entry.Locations {
			root, err := f.locationState(loc)
			if err != nil {
				return nil, nil, err
			}
			if existing, ok := roots[root]; ok {
				roots[root] = existing.Or(headerSet)
			} else {
				roots[root] = headerSet
			}
			rootLocations[root] = loc
		}
	}
	return roots, rootLocations, nil
}

func (f *Factory) locationState(loc Location) (state.State, error) {
	switch l := loc.(type) {
	case InterfaceLinkLocation:
		dev, ok := f.devices[l.Device]
		if !ok {
			return nil, errors.Errorf("origin device %q not in snapshot", l.Device)
		}
		if _, ok := dev.Interfaces[l.Interface]; !ok {
			return nil, errors.Errorf("origin interface %q not on device %q",
				l.Interface, l.Device)
		}
		return state.OriginateInterfaceLink{Device: l.Device, Interface: l.Interface}, nil
	case VRFLocation:
		dev, ok := f.devices[l.Device]
		if !ok {
			return nil, errors.Errorf("origin device %q not in snapshot", l.Device)
		}
		if _, ok := dev.VRFs[l.VRF]; !ok {
			return nil, errors.Errorf("origin vrf %q not on device %q", l.VRF, l.Device)
		}
		return state.OriginateVRF{Device: l.Device, VRF: l.VRF}, nil
	default:
		return nil, errors.Errorf("unhandled location type %T", loc)
	}
}

// generateRootEdges injects the query's initial packet sets. The forward
// transform applies the initial set together with the source constraint; the
// backward transform erases the device's source group, since tracking only
// begins at the root boundary.
func (f *Factory) generateRootEdges(roots map[state.State]bdd.Set) ([]Edge, error) {
	var out []Edge
	for root, rootSet := range roots {
		switch r := root.(type) {
		case state.OriginateInterfaceLink:
			mgr := f.srcMgrs[r.Device]
			constraint := rootSet.And(mgr.SourceInterfaceSet(r.Interface))
			out = append(out, newEdge(
				root,
				state.PreInInterface{Device: r.Device, Interface: r.Interface},
				constraint.And,
				f.eraseSourceAfter(constraint, r.Device),
			))
		case state.OriginateVRF:
			mgr := f.srcMgrs[r.Device]
			constraint := rootSet.And(mgr.OriginatedByDeviceSet())
			out = append(out, newEdge(
				root,
				state.PostInVRF{Device: r.Device, VRF: r.VRF},
				constraint.And,
				f.eraseSourceAfter(constraint, r.Device),
			))
		default:
			return nil, errors.Errorf("unhandled root state %v", root)
		}
	}
	return out, nil
}

// generateQueryEdges connects the requested disposition terminals to the
// Query sink.
func (f *Factory) generateQueryEdges(dispositions []Disposition) ([]Edge, error) {
	var out []Edge
	for _, d := range dispositions {
		var terminal state.State
		switch d {
		case Accepted:
			terminal = state.Accept{}
		case DeniedIn:
			terminal = state.DropACLIn{}
		case DeniedOut:
			terminal = state.DropACLOut{}
		case NoRoute:
			terminal = state.DropNoRoute{}
		case NullRouted:
			terminal = state.DropNullRoute{}
		case NeighborUnreachableDisposition:
			terminal = state.NeighborUnreachable{}
		case Loop:
			return nil, ErrLoopNotSupported
		default:
			return nil, errors.Errorf("unknown disposition %v", d)
		}
		out = append(out, newConstraintEdge(terminal, state.Query{}, f.one))
	}
	return out, nil
}

// generateEdges emits every query-independent edge of the journey graph.
// The rules are independent and order-insensitive; their union is the graph.
func (f *Factory) generateEdges(finalNodes []string) []Edge {
	var out []Edge
	out = append(out, f.rulesNodeDispositionsToGlobal(finalNodes)...)
	out = append(out, f.rulesPreInInterfaceToNodeDropACLIn()...)
	out = append(out, f.rulesPreInInterfaceToPostInVRF()...)
	out = append(out, f.rulesPostInVRFToNodeAccept()...)
	out = append(out, f.rulesPostInVRFToNodeDropNoRoute()...)
	out = append(out, f.rulesPostInVRFToPreOutVRF()...)
	out = append(out, f.rulesPreOutVRFToNodeDropACLOut()...)
	out = append(out, f.rulesPreOutVRFToNodeDropNullRoute()...)
	out = append(out, f.rulesPreOutVRFToNodeInterfaceNeighborUnreachable()...)
	out = append(out, f.rulesPreOutVRFToPreOutEdge()...)
	out = append(out, f.rulesPreOutEdgeToPreOutEdgePostNAT()...)
	out = append(out, f.rulesPreOutEdgePostNATToNodeDropACLOut()...)
	out = append(out, f.rulesPreOutEdgePostNATToPreInInterface()...)
	return out
}

// rulesNodeDispositionsToGlobal aggregates per-device dispositions of the
// final devices into the global terminals.
func (f *Factory) rulesNodeDispositionsToGlobal(finalNodes []string) []Edge {
	var out []Edge
	for _, node := range finalNodes {
		dev, ok := f.devices[node]
		if !ok {
			continue
		}
		out = append(out,
			newConstraintEdge(state.NodeAccept{Device: node}, state.Accept{}, f.one),
			newConstraintEdge(state.NodeDropACLIn{Device: node}, state.DropACLIn{}, f.one),
			newConstraintEdge(state.NodeDropACLOut{Device: node}, state.DropACLOut{}, f.one),
			newConstraintEdge(state.NodeDropNoRoute{Device: node}, state.DropNoRoute{}, f.one),
			newConstraintEdge(state.NodeDropNullRoute{Device: node}, state.DropNullRoute{}, f.one),
		)
		for iface := range dev.Interfaces {
			out = append(out, newConstraintEdge(
				state.NodeInterfaceNeighborUnreachable{Device: node, Interface: iface},
				state.NeighborUnreachable{},
				f.one,
			))
		}
	}
	return out
}

func (f *Factory) rulesPreInInterfaceToNodeDropACLIn() []Edge {
	var out []Edge
	for node, dev := range f.devices {
		for ifaceName, iface := range dev.Interfaces {
			deny, ok := f.aclDeny[node][iface.IncomingFilter]
			if iface.IncomingFilter == "" || !ok {
				continue
			}
			out = append(out, newEdge(
				state.PreInInterface{Device: node, Interface: ifaceName},
				state.NodeDropACLIn{Device: node},
				f.eraseSourceAfter(deny, node),
				f.validSource(deny, node),
			))
		}
	}
	return out
}

func (f *Factory) rulesPreInInterfaceToPostInVRF() []Edge {
	var out []Edge
	for node, dev := range f.devices {
		for ifaceName, iface := range dev.Interfaces {
			permit := f.aclPermitOrAll(node, iface.IncomingFilter)
			out = append(out, newConstraintEdge(
				state.PreInInterface{Device: node, Interface: ifaceName},
				state.PostInVRF{Device: node, VRF: iface.VRF},
				permit,
			))
		}
	}
	return out
}

func (f *Factory) rulesPostInVRFToNodeAccept() []Edge {
	var out []Edge
	for node, dev := range f.devices {
		for vrf := range dev.VRFs {
			accept := f.lookupNested(f.vrfAccept, node, vrf)
			out = append(out, newEdge(
				state.PostInVRF{Device: node, VRF: vrf},
				state.NodeAccept{Device: node},
				f.eraseSourceAfter(accept, node),
				f.validSource(accept, node),
			))
		}
	}
	return out
}

func (f *Factory) rulesPostInVRFToNodeDropNoRoute() []Edge {
	var out []Edge
	for node, dev := range f.devices {
		for vrf := range dev.VRFs {
			notAccept := f.notAccept(node, vrf)
			noRoute := notAccept.And(f.lookupNested(f.routable, node, vrf).Not())
			out = append(out, newEdge(
				state.PostInVRF{Device: node, VRF: vrf},
				state.NodeDropNoRoute{Device: node},
				f.eraseSourceAfter(noRoute, node),
				f.validSource(noRoute, node),
			))
		}
	}
	return out
}

func (f *Factory) rulesPostInVRFToPreOutVRF() []Edge {
	var out []Edge
	for node, dev := range f.devices {
		for vrf := range dev.VRFs {
			forwarded := f.notAccept(node, vrf).And(f.lookupNested(f.routable, node, vrf))
			out = append(out, newConstraintEdge(
				state.PostInVRF{Device: node, VRF: vrf},
				state.PreOutVRF{Device: node, VRF: vrf},
				forwarded,
			))
		}
	}
	return out
}

// notAccept returns the complement of the vrf's locally accepted set. A vrf
// absent from the forwarding results accepts nothing.
func (f *Factory) notAccept(node, vrf string) bdd.Set {
	if inner, ok := f.vrfNotAccept[node]; ok {
		if set, ok := inner[vrf]; ok {
			return set
		}
	}
	return f.one
}

// rulesPreOutVRFToNodeDropACLOut drops packets that are routed out an
// interface with an unresponsive neighbor and also denied by the egress
// filter: the filter verdict precedes the delivery failure. The per-interface
// sets of a vrf are unioned into a single edge, since the drop states do not
// distinguish the egress interface.
func (f *Factory) rulesPreOutVRFToNodeDropACLOut() []Edge {
	var out []Edge
	for node, vrfs := range f.neighborUnreachable {
		for vrf, ifaces := range vrfs {
			dropSet := f.zero
			for ifaceName, ipSet := range ifaces {
				deny, ok := f.outgoingDeny(node, ifaceName)
				if !ok {
					continue
				}
				dropSet = dropSet.Or(ipSet.And(deny))
			}
			if dropSet.IsZero() {
				continue
			}
			out = append(out, newEdge(
				state.PreOutVRF{Device: node, VRF: vrf},
				state.NodeDropACLOut{Device: node},
				f.eraseSourceAfter(dropSet, node),
				dropSet.And,
			))
		}
	}
	return out
}

func (f *Factory) rulesPreOutVRFToNodeDropNullRoute() []Edge {
	var out []Edge
	for node, vrfs := range f.nullRouted {
		for vrf, nullRoutedSet := range vrfs {
			out = append(out, newEdge(
				state.PreOutVRF{Device: node, VRF: vrf},
				state.NodeDropNullRoute{Device: node},
				f.eraseSourceAfter(nullRoutedSet, node),
				nullRoutedSet.And,
			))
		}
	}
	return out
}

func (f *Factory) rulesPreOutVRFToNodeInterfaceNeighborUnreachable() []Edge {
	var out []Edge
	for node, vrfs := range f.neighborUnreachable {
		for vrf, ifaces := range vrfs {
			for ifaceName, ipSet := range ifaces {
				permit := f.aclPermitOrAll(node, f.outgoingFilterName(node, ifaceName))
				edgeSet := ipSet.And(permit)
				if edgeSet.IsZero() {
					continue
				}
				out = append(out, newEdge(
					state.PreOutVRF{Device: node, VRF: vrf},
					state.NodeInterfaceNeighborUnreachable{Device: node, Interface: ifaceName},
					f.eraseSourceAfter(edgeSet, node),
					edgeSet.And,
				))
			}
		}
	}
	return out
}

func (f *Factory) rulesPreOutVRFToPreOutEdge() []Edge {
	var out []Edge
	for link, arpTrue := range f.arpTrueEdge {
		vrf := f.ifaceVRF(link.Device1, link.Iface1)
		out = append(out, newConstraintEdge(
			state.PreOutVRF{Device: link.Device1, VRF: vrf},
			state.PreOutEdge(link),
			arpTrue,
		))
	}
	return out
}

func (f *Factory) rulesPreOutEdgeToPreOutEdgePostNAT() []Edge {
	var out []Edge
	for link := range f.arpTrueEdge {
		pre := state.PreOutEdge(link)
		post := state.PreOutEdgePostNAT(link)

		nats := f.compileNats(link.Device1, link.Iface1)
		if len(nats) == 0 {
			out = append(out, newConstraintEdge(pre, post, f.one))
			continue
		}
		out = append(out, newEdge(pre, post, f.natForward(nats), f.natBackward(nats)))
	}
	return out
}

func (f *Factory) rulesPreOutEdgePostNATToNodeDropACLOut() []Edge {
	var out []Edge
	for link := range f.arpTrueEdge {
		deny, ok := f.outgoingDeny(link.Device1, link.Iface1)
		if !ok {
			continue
		}
		out = append(out, newEdge(
			state.PreOutEdgePostNAT(link),
			state.NodeDropACLOut{Device: link.Device1},
			f.eraseSourceAfter(deny, link.Device1),
			f.validSource(deny, link.Device1),
		))
	}
	return out
}

// rulesPreOutEdgePostNATToPreInInterface hands the packet to the neighbor
// device. Forward: apply the egress permit, erase the sender's source group,
// assert the receiver's ingress interface. Backward: undo the receiver's
// source constraint and additionally require the sender's source to have
// been well defined.
func (f *Factory) rulesPreOutEdgePostNATToPreInInterface() []Edge {
	var out []Edge
	for link := range f.arpTrueEdge {
		permit := f.aclPermitOrAll(link.Device1, f.outgoingFilterName(link.Device1, link.Iface1))
		out = append(out, newEdge(
			state.PreOutEdgePostNAT(link),
			state.PreInInterface{Device: link.Device2, Interface: link.Iface2},
			f.crossDeviceForward(permit, link.Device1, link.Device2, link.Iface2),
			f.crossDeviceBackward(permit, link.Device1, link.Device2, link.Iface2),
		))
	}
	return out
}

// validSource is the backward transition into a device from one of its
// disposition states, where no forward constraint pinned the source.
func (f *Factory) validSource(constraint bdd.Set, node string) Transition {
	withValid := f.srcMgrs[node].IsValidValue().And(constraint)
	return withValid.And
}

// eraseSourceAfter applies the constraint (which may reference the source
// group) and then erases the group. Used on every transition that leaves a
// device's tracked interior.
func (f *Factory) eraseSourceAfter(constraint bdd.Set, node string) Transition {
	mgr := f.srcMgrs[node]
	return func(orig bdd.Set) bdd.Set {
		return mgr.ExistsSource(orig.And(constraint))
	}
}

func (f *Factory) crossDeviceForward(constraint bdd.Set, exitNode, enterNode, enterIface string) Transition {
	exitMgr := f.srcMgrs[exitNode]
	enterIfaceSet := f.srcMgrs[enterNode].SourceInterfaceSet(enterIface)
	return func(orig bdd.Set) bdd.Set {
		return exitMgr.ExistsSource(orig.And(constraint)).And(enterIfaceSet)
	}
}

func (f *Factory) crossDeviceBackward(constraint bdd.Set, exitNode, enterNode, enterIface string) Transition {
	enterMgr := f.srcMgrs[enterNode]
	enterIfaceSet := enterMgr.SourceInterfaceSet(enterIface)
	exitSet := constraint.And(f.srcMgrs[exitNode].IsValidValue())
	if exitSet.IsZero() {
		zero := f.zero
		return func(bdd.Set) bdd.Set { return zero }
	}
	return func(orig bdd.Set) bdd.Set {
		return enterMgr.ExistsSource(orig.And(enterIfaceSet)).And(exitSet)
	}
}

// aclPermitOrAll resolves a filter name to its permit set. An empty name or
// a name with no compiled predicate means unfiltered; reference validation
// is the configuration layer's concern, not this engine's.
func (f *Factory) aclPermitOrAll(node, aclName string) bdd.Set {
	if aclName == "" {
		return f.one
	}
	if permit, ok := f.aclPermit[node][aclName]; ok {
		return permit
	}
	return f.one
}

// outgoingDeny returns the egress deny set of an interface, or false if the
// interface is unfiltered (or the filter reference does not resolve).
func (f *Factory) outgoingDeny(node, ifaceName string) (bdd.Set, bool) {
	name := f.outgoingFilterName(node, ifaceName)
	if name == "" {
		return bdd.Set{}, false
	}
	deny, ok := f.aclDeny[node][name]
	return deny, ok
}

func (f *Factory) outgoingFilterName(node, ifaceName string) string {
	dev, ok := f.devices[node]
	if !ok {
		return ""
	}
	iface, ok := dev.Interfaces[ifaceName]
	if !ok {
		return ""
	}
	return iface.OutgoingFilter
}

// compileNats lowers an interface's NAT rule list. A rule whose match ACL
// does not resolve matches nothing and drops out of the list.
func (f *Factory) compileNats(node, ifaceName string) []compiledNat {
	dev, ok := f.devices[node]
	if !ok {
		return nil
	}
	iface, ok := dev.Interfaces[ifaceName]
	if !ok {
		return nil
	}
	var nats []compiledNat
	for _, nat := range iface.SourceNats {
		condition, ok := f.aclPermit[node][nat.ACL]
		if !ok {
			continue
		}
		nats = append(nats, compiledNat{
			condition: condition,
			poolRange: f.pkt.SrcIP.Range(bdd.IPValue(nat.PoolFirst), bdd.IPValue(nat.PoolLast)),
		})
	}
	return nats
}

func (f *Factory) lookupNested(m map[string]map[string]bdd.Set, node, vrf string) bdd.Set {
	if inner, ok := m[node]; ok {
		if set, ok := inner[vrf]; ok {
			return set
		}
	}
	return f.zero
}

func (f *Factory) ifaceVRF(node, ifaceName string) string {
	dev, ok := f.devices[node]
	if !ok {
		return ""
	}
	iface, ok := dev.Interfaces[ifaceName]
	if !ok {
		return ""
	}
	return iface.VRF
}

func sortedDeviceNames(devices map[string]*netmodel.Device) []string {
	names := make([]string, 0, len(devices))
	for name := range devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
