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
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go4.org/netipx"
	yaml "gopkg.in/yaml.v2"

	"github.com/symflow/symflow/pkg/reach"
	"github.com/symflow/symflow/private/snapshot"
)

func newQuery() *cobra.Command {
	var flags struct {
		snapshotPath string
		from         []string
		srcIPs       []string
		dstIPs       []string
		finalNodes   []string
		dispositions []string
		format       string
		noColor      bool
		logLevel     string
	}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Compute which packets reach a disposition from an origin",
		Args:  cobra.NoArgs,
		Example: `  symflow query --snapshot net.yml --from leaf1
  symflow query --snapshot net.yml --from "leaf1[eth0]" --dst-ips 10.0.0.0/24
  symflow query --snapshot net.yml --from leaf1@default --disposition denied-out --final spine1`,
		Long: `'query' loads a network snapshot, originates the chosen packet space at the
given locations and reports, per origin, the set of packets whose journey ends
with one of the requested dispositions on a final device.

An origin is written as "device" or "device@vrf" for traffic the device itself
sends, or "device[interface]" for traffic arriving on the link attached to an
interface.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := setupLog(flags.logLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if len(flags.from) == 0 {
				return errors.New("at least one --from origin is required")
			}
			locations := make([]reach.Location, 0, len(flags.from))
			for _, spec := range flags.from {
				loc, err := parseLocation(spec)
				if err != nil {
					return err
				}
				locations = append(locations, loc)
			}

			entry := reach.AssignmentEntry{Locations: locations}
			if len(flags.srcIPs) > 0 {
				if entry.IPSpace, err = snapshot.ParseIPSet(flags.srcIPs); err != nil {
					return errors.Wrap(err, "parsing --src-ips")
				}
			}
			var dstIPs *netipx.IPSet
			if len(flags.dstIPs) > 0 {
				if dstIPs, err = snapshot.ParseIPSet(flags.dstIPs); err != nil {
					return errors.Wrap(err, "parsing --dst-ips")
				}
			}

			dispositions := make([]reach.Disposition, 0, len(flags.dispositions))
			for _, s := range flags.dispositions {
				d, err := reach.ParseDisposition(s)
				if err != nil {
					return err
				}
				dispositions = append(dispositions, d)
			}

			cmd.SilenceUsage = true

			store := snapshot.NewStore(0, logger)
			compiled, err := store.LoadFile(flags.snapshotPath)
			if err != nil {
				return err
			}

			finals := flags.finalNodes
			if len(finals) == 0 {
				for name := range compiled.Network.Devices {
					finals = append(finals, name)
				}
				sort.Strings(finals)
			}

			analysis, err := compiled.Factory.Analysis(
				[]reach.AssignmentEntry{entry}, dstIPs, finals, dispositions)
			if err != nil {
				return err
			}
			sets, err := analysis.ReachableSets()
			if err != nil {
				return err
			}

			res, err := buildResult(flags.snapshotPath, flags.dispositions, compiled.Packet, sets)
			if err != nil {
				return err
			}
			switch flags.format {
			case "human":
				res.Human(cmd.OutOrStdout(), !flags.noColor)
				return nil
			case "json":
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			case "yaml":
				return yaml.NewEncoder(os.Stdout).Encode(res)
			default:
				return errors.Errorf("output format not supported: %q", flags.format)
			}
		},
	}

	cmd.Flags().StringVar(&flags.snapshotPath, "snapshot", "", "Snapshot file to analyze")
	cmd.Flags().StringArrayVar(&flags.from, "from", nil,
		"Origin location (repeatable): device, device@vrf or device[interface]")
	cmd.Flags().StringSliceVar(&flags.srcIPs, "src-ips", nil,
		"Constrain originated source addresses (prefixes, addresses or ranges)")
	cmd.Flags().StringSliceVar(&flags.dstIPs, "dst-ips", nil,
		"Constrain destination addresses (prefixes, addresses or ranges)")
	cmd.Flags().StringSliceVar(&flags.finalNodes, "final", nil,
		"Devices whose dispositions terminate the query (default: all)")
	cmd.Flags().StringSliceVar(&flags.dispositions, "disposition", []string{"accepted"},
		"Dispositions to query for")
	cmd.Flags().StringVar(&flags.format, "format", "human",
		"Specify the output format (human|json|yaml)")
	cmd.Flags().BoolVar(&flags.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&flags.logLevel, "log.level", "error", "Log level (debug|info|error)")
	if err := cmd.MarkFlagRequired("snapshot"); err != nil {
		panic(err)
	}
	return cmd
}

// parseLocation accepts "device", "device@vrf" and "device[interface]".
func parseLocation(spec string) (reach.Location, error) {
	if open := strings.IndexByte(spec, '['); open >= 0 {
		if !strings.HasSuffix(spec, "]") || open == 0 || open+1 == len(spec)-1 {
			return nil, errors.Errorf("malformed origin %q", spec)
		}
		return reach.InterfaceLinkLocation{
			Device:    spec[:open],
			Interface: spec[open+1 : len(spec)-1],
		}, nil
	}
	device, vrf, found := strings.Cut(spec, "@")
	if !found {
		vrf = "default"
	}
	if device == "" || vrf == "" {
		return nil, errors.Errorf("malformed origin %q", spec)
	}
	return reach.VRFLocation{Device: device, VRF: vrf}, nil
}

func setupLog(level string) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Errorf("unknown log level %q", level)
	}
	cfg.DisableStacktrace = true
	return cfg.Build()
}
