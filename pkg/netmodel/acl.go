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

import "go4.org/netipx"

// LineAction is the verdict of an ACL line.
type LineAction int

const (
	Permit LineAction = iota
	Deny
)

// ACL is an ordered access list with first-match semantics. A packet that
// matches no line is denied.
type ACL struct {
	Name  string
	Lines []ACLLine
}

// ACLLine pairs a match expression with a verdict.
type ACLLine struct {
	Action LineAction
	Match  MatchExpr
}

// MatchExpr is a boolean expression over a packet and its entry point into
// the device. The set of implementations is closed; the engine compiles each
// variant into the symbolic domain.
type MatchExpr interface {
	isMatchExpr()
}

// PortRange is an inclusive port interval.
type PortRange struct {
	Lo, Hi uint16
}

// MatchHeader matches on packet-header fields. Nil or empty members impose
// no constraint on their field.
type MatchHeader struct {
	SrcIPs    *netipx.IPSet
	DstIPs    *netipx.IPSet
	SrcPorts  []PortRange
	DstPorts  []PortRange
	Protocols []uint8
	ICMPTypes []uint8
	ICMPCodes []uint8
	// TCPFlags entries are alternatives: the header matches if any entry
	// does.
	TCPFlags []TCPFlags
}

// TCPFlags matches a combination of TCP flag bits. Each flag is tested only
// when its Use member is set; an entry using no flags matches every packet.
type TCPFlags struct {
	UseSyn, UseAck, UseRst, UseFin bool
	Syn, Ack, Rst, Fin             bool
}

// MatchSrcInterface matches packets that entered the device through one of
// the named interfaces.
type MatchSrcInterface struct {
	Interfaces []string
}

// MatchOriginatingFromDevice matches packets generated by the device itself.
type MatchOriginatingFromDevice struct{}

// MatchAnd is the conjunction of its operands.
type MatchAnd struct {
	Operands []MatchExpr
}

// MatchOr is the disjunction of its operands.
type MatchOr struct {
	Operands []MatchExpr
}

// MatchNot negates its operand.
type MatchNot struct {
	Operand MatchExpr
}

// MatchTrue matches every packet.
type MatchTrue struct{}

// MatchFalse matches no packet.
type MatchFalse struct{}

func (MatchHeader) isMatchExpr()                {}
func (MatchSrcInterface) isMatchExpr()          {}
func (MatchOriginatingFromDevice) isMatchExpr() {}
func (MatchAnd) isMatchExpr()                   {}
func (MatchOr) isMatchExpr()                    {}
func (MatchNot) isMatchExpr()                   {}
func (MatchTrue) isMatchExpr()                  {}
func (MatchFalse) isMatchExpr()                 {}
