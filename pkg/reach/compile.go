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
	"fmt"

	"go4.org/netipx"

	"github.com/symflow/symflow/pkg/bdd"
	"github.com/symflow/symflow/pkg/netmodel"
)

// ipSetToBDD compiles an address set into a predicate over the given IP
// field. A nil set compiles to the empty set: forwarding results omit
// entries that carry no destinations.
func ipSetToBDD(v bdd.Integer, set *netipx.IPSet) bdd.Set {
	res := v.Factory().Zero()
	if set == nil {
		return res
	}
	for _, r := range set.Ranges() {
		if !r.From().Is4() || !r.To().Is4() {
			// The symbolic domain models IPv4 headers only.
			continue
		}
		res = res.Or(v.Range(bdd.IPValue(r.From()), bdd.IPValue(r.To())))
	}
	return res
}

// aclCompiler compiles match expressions for one device. The device's
// source tracker resolves the entry-point predicates.
type aclCompiler struct {
	pkt *bdd.Packet
	src *SourceMgr
}

// acl compiles an access list into its permit set, folding the lines with
// first-match semantics: a line only sees packets no earlier line matched.
func (c aclCompiler) acl(acl *netmodel.ACL) bdd.Set {
	f := c.pkt.Factory()
	permit := f.Zero()
	remaining := f.One()
	for _, line := range acl.Lines {
		matched := remaining.And(c.expr(line.Match))
		if line.Action == netmodel.Permit {
			permit = permit.Or(matched)
		}
		remaining = remaining.Diff(matched)
	}
	return permit
}

func (c aclCompiler) expr(e netmodel.MatchExpr) bdd.Set {
	f := c.pkt.Factory()
	switch m := e.(type) {
	case netmodel.MatchHeader:
		return c.header(m)
	case netmodel.MatchSrcInterface:
		res := f.Zero()
		for _, iface := range m.Interfaces {
			res = res.Or(c.src.SourceInterfaceSet(iface))
		}
		return res
	case netmodel.MatchOriginatingFromDevice:
		return c.src.OriginatedByDeviceSet()
	case netmodel.MatchAnd:
		res := f.One()
		for _, op := range m.Operands {
			res = res.And(c.expr(op))
		}
		return res
	case netmodel.MatchOr:
		res := f.Zero()
		for _, op := range m.Operands {
			res = res.Or(c.expr(op))
		}
		return res
	case netmodel.MatchNot:
		return c.expr(m.Operand).Not()
	case netmodel.MatchTrue:
		return f.One()
	case netmodel.MatchFalse:
		return f.Zero()
	default:
		panic(fmt.Sprintf("unhandled match expression %T", e))
	}
}

func (c aclCompiler) header(m netmodel.MatchHeader) bdd.Set {
	f := c.pkt.Factory()
	res := f.One()
	if m.SrcIPs != nil {
		res = res.And(ipSetToBDD(c.pkt.SrcIP, m.SrcIPs))
	}
	if m.DstIPs != nil {
		res = res.And(ipSetToBDD(c.pkt.DstIP, m.DstIPs))
	}
	if len(m.SrcPorts) > 0 {
		res = res.And(portsToBDD(c.pkt.SrcPort, m.SrcPorts))
	}
	if len(m.DstPorts) > 0 {
		res = res.And(portsToBDD(c.pkt.DstPort, m.DstPorts))
	}
	if len(m.Protocols) > 0 {
		res = res.And(valuesToBDD(c.pkt.Protocol, m.Protocols))
	}
	if len(m.ICMPTypes) > 0 {
		res = res.And(valuesToBDD(c.pkt.ICMPType, m.ICMPTypes))
	}
	if len(m.ICMPCodes) > 0 {
		res = res.And(valuesToBDD(c.pkt.ICMPCode, m.ICMPCodes))
	}
	if len(m.TCPFlags) > 0 {
		flags := f.Zero()
		for _, tf := range m.TCPFlags {
			flags = flags.Or(c.tcpFlags(tf))
		}
		res = res.And(flags)
	}
	return res
}

func (c aclCompiler) tcpFlags(tf netmodel.TCPFlags) bdd.Set {
	res := c.pkt.Factory().One()
	bit := func(v bdd.Integer, use, set bool) {
		if !use {
			return
		}
		val := uint64(0)
		if set {
			val = 1
		}
		res = res.And(v.Value(val))
	}
	bit(c.pkt.TCPSyn, tf.UseSyn, tf.Syn)
	bit(c.pkt.TCPAck, tf.UseAck, tf.Ack)
	bit(c.pkt.TCPRst, tf.UseRst, tf.Rst)
	bit(c.pkt.TCPFin, tf.UseFin, tf.Fin)
	return res
}

func valuesToBDD(v bdd.Integer, values []uint8) bdd.Set {
	res := v.Factory().Zero()
	for _, val := range values {
		res = res.Or(v.Value(uint64(val)))
	}
	return res
}

func portsToBDD(v bdd.Integer, ranges []netmodel.PortRange) bdd.Set {
	res := v.Factory().Zero()
	for _, r := range ranges {
		res = res.Or(v.Range(uint64(r.Lo), uint64(r.Hi)))
	}
	return res
}
