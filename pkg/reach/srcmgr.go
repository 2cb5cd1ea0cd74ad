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
	"math/bits"
	"sort"

	"github.com/symflow/symflow/pkg/bdd"
	"github.com/symflow/symflow/pkg/netmodel"
)

// SourceMgr tracks, for one device, which ingress interface a packet entered
// through, or whether the device originated it. The tracker owns a private
// variable group in the diagram: value 0 means "no constraint assigned yet",
// values 1..n name the interfaces, and n+1 means "originated by the device".
//
// While a packet is inside the device its symbolic set must imply a valid
// value of this group. The value is assigned on entry and existentially
// erased on every exit (hand-off, disposition, or walking backward out of an
// origination state), so it never leaks into origin- or terminal-facing
// sets. Correct edge construction enforces the invariant; SourceMgr only
// supplies the building blocks.
type SourceMgr struct {
	device      string
	v           bdd.Integer
	ifaceValues map[string]uint64
	originValue uint64
}

// NewSourceMgr allocates the variable group for one device. Interface values
// are assigned in sorted name order so that identical inputs always produce
// an identical variable encoding.
func NewSourceMgr(f *bdd.Factory, dev *netmodel.Device) (*SourceMgr, error) {
	names := dev.InterfaceNames()
	sort.Strings(names)

	ifaceValues := make(map[string]uint64, len(names))
	for i, name := range names {
		ifaceValues[name] = uint64(i + 1)
	}
	originValue := uint64(len(names) + 1)

	width := bits.Len64(originValue)
	v, err := bdd.NewInteger(f, width)
	if err != nil {
		return nil, err
	}
	return &SourceMgr{
		device:      dev.Name,
		v:           v,
		ifaceValues: ifaceValues,
		originValue: originValue,
	}, nil
}

// NewSourceMgrs builds trackers for every device of a snapshot. Devices are
// processed in sorted name order for a deterministic variable layout.
func NewSourceMgrs(f *bdd.Factory, devices map[string]*netmodel.Device) (map[string]*SourceMgr, error) {
	names := make([]string, 0, len(devices))
	for name := range devices {
		names = append(names, name)
	}
	sort.Strings(names)

	mgrs := make(map[string]*SourceMgr, len(names))
	for _, name := range names {
		mgr, err := NewSourceMgr(f, devices[name])
		if err != nil {
			return nil, err
		}
		mgrs[name] = mgr
	}
	return mgrs, nil
}

// SourceInterfaceSet asserts that the packet entered through iface. The
// interface must exist on the device; every name reaching this point was
// read from the same configuration that defines the device.
func (m *SourceMgr) SourceInterfaceSet(iface string) bdd.Set {
	val, ok := m.ifaceValues[iface]
	if !ok {
		panic(fmt.Sprintf("unknown interface %q on device %s", iface, m.device))
	}
	return m.v.Value(val)
}

// OriginatedByDeviceSet asserts that the device generated the packet itself.
func (m *SourceMgr) OriginatedByDeviceSet() bdd.Set {
	return m.v.Value(m.originValue)
}

// IsValidValue asserts that the group holds some defined value. Used on
// backward traversals that re-enter a device from a disposition state, where
// no forward constraint pinned the source.
func (m *SourceMgr) IsValidValue() bdd.Set {
	return m.v.Range(1, m.originValue)
}

// ExistsSource erases the variable group from a set.
func (m *SourceMgr) ExistsSource(s bdd.Set) bdd.Set {
	return s.Exists(m.v.VarSet())
}
