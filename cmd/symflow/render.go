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

package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"github.com/symflow/symflow/pkg/bdd"
	"github.com/symflow/symflow/pkg/reach"
)

// Result is the output of one reachability query.
type Result struct {
	Snapshot     string         `json:"snapshot" yaml:"snapshot"`
	Dispositions []string       `json:"dispositions" yaml:"dispositions"`
	Origins      []OriginResult `json:"origins" yaml:"origins"`
}

// OriginResult describes the packets admitted from one origin.
type OriginResult struct {
	Origin    string   `json:"origin" yaml:"origin"`
	Reachable bool     `json:"reachable" yaml:"reachable"`
	Example   *Example `json:"example,omitempty" yaml:"example,omitempty"`
}

// Example is one concrete packet drawn from a non-empty result set.
// Unconstrained fields decode as zero.
type Example struct {
	SrcIP    string `json:"src_ip" yaml:"src_ip"`
	DstIP    string `json:"dst_ip" yaml:"dst_ip"`
	Protocol string `json:"protocol" yaml:"protocol"`
	SrcPort  uint16 `json:"src_port" yaml:"src_port"`
	DstPort  uint16 `json:"dst_port" yaml:"dst_port"`
}

func buildResult(
	snapshotPath string,
	dispositions []string,
	pkt *bdd.Packet,
	sets map[reach.Location]bdd.Set,
) (Result, error) {

	res := Result{Snapshot: snapshotPath, Dispositions: dispositions}
	for loc, set := range sets {
		or := OriginResult{Origin: fmt.Sprint(loc)}
		prof, ok, err := set.Example()
		if err != nil {
			return Result{}, errors.WithMessagef(err, "sampling packets from %s", loc)
		}
		if ok {
			or.Reachable = true
			or.Example = decodeExample(pkt, prof)
		}
		res.Origins = append(res.Origins, or)
	}
	sort.Slice(res.Origins, func(i, j int) bool {
		return res.Origins[i].Origin < res.Origins[j].Origin
	})
	return res, nil
}

func decodeExample(pkt *bdd.Packet, prof []int) *Example {
	return &Example{
		SrcIP:    bdd.IPFromValue(pkt.SrcIP.ValueFromExample(prof)).String(),
		DstIP:    bdd.IPFromValue(pkt.DstIP.ValueFromExample(prof)).String(),
		Protocol: protocolName(uint8(pkt.Protocol.ValueFromExample(prof))),
		SrcPort:  uint16(pkt.SrcPort.ValueFromExample(prof)),
		DstPort:  uint16(pkt.DstPort.ValueFromExample(prof)),
	}
}

func protocolName(p uint8) string {
	switch p {
	case 1:
		return "icmp"
	case 6:
		return "tcp"
	case 17:
		return "udp"
	default:
		return fmt.Sprintf("%d", p)
	}
}

// Human writes the result as a table to the writer.
func (r Result) Human(w io.Writer, colored bool) {
	noColor := color.New()
	good := noColor
	bad := noColor
	if colored && isTerminal(w) {
		good = color.New(color.FgGreen)
		bad = color.New(color.FgRed)
	}

	fmt.Fprintf(w, "Dispositions: %v\n", r.Dispositions)
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Origin", "Reachable", "Example flow"})
	table.SetAutoWrapText(false)
	for _, or := range r.Origins {
		reachable := bad.Sprint("no")
		example := ""
		if or.Reachable {
			reachable = good.Sprint("yes")
			example = fmt.Sprintf("%s -> %s %s sport=%d dport=%d",
				or.Example.SrcIP, or.Example.DstIP, or.Example.Protocol,
				or.Example.SrcPort, or.Example.DstPort)
		}
		table.Append([]string{or.Origin, reachable, example})
	}
	table.Render()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd())
}
