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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symflow/symflow/pkg/bdd"
	"github.com/symflow/symflow/pkg/netmodel"
	"github.com/symflow/symflow/pkg/reach"
)

func newTestDevice(name string, ifaces ...string) *netmodel.Device {
	dev := &netmodel.Device{
		Name:       name,
		VRFs:       map[string]*netmodel.VRF{"default": {Name: "default", Interfaces: ifaces}},
		Interfaces: map[string]*netmodel.Interface{},
		ACLs:       map[string]*netmodel.ACL{},
	}
	for _, iface := range ifaces {
		dev.Interfaces[iface] = &netmodel.Interface{Name: iface, VRF: "default"}
	}
	return dev
}

func TestSourceMgr(t *testing.T) {
	f, err := bdd.NewFactory(64)
	require.NoError(t, err)
	mgr, err := reach.NewSourceMgr(f, newTestDevice("r1", "eth0", "eth1"))
	require.NoError(t, err)

	eth0 := mgr.SourceInterfaceSet("eth0")
	eth1 := mgr.SourceInterfaceSet("eth1")
	origin := mgr.OriginatedByDeviceSet()

	t.Run("values are mutually exclusive", func(t *testing.T) {
		assert.True(t, eth0.And(eth1).IsZero())
		assert.True(t, eth0.And(origin).IsZero())
		assert.True(t, eth1.And(origin).IsZero())
	})

	t.Run("valid covers all assigned values", func(t *testing.T) {
		valid := mgr.IsValidValue()
		assert.True(t, eth0.Or(eth1).Or(origin).Equal(valid.And(eth0.Or(eth1).Or(origin))))
		for _, set := range []bdd.Set{eth0, eth1, origin} {
			assert.True(t, set.And(valid).Equal(set))
		}
	})

	t.Run("erase is idempotent", func(t *testing.T) {
		set := eth0.Or(origin)
		once := mgr.ExistsSource(set)
		assert.True(t, once.Equal(mgr.ExistsSource(once)))
		assert.True(t, once.IsOne())
	})

	t.Run("unknown interface panics", func(t *testing.T) {
		assert.Panics(t, func() { mgr.SourceInterfaceSet("eth99") })
	})
}

func TestSourceMgrsIndependentGroups(t *testing.T) {
	f, err := bdd.NewFactory(128)
	require.NoError(t, err)
	devices := map[string]*netmodel.Device{
		"r1": newTestDevice("r1", "eth0"),
		"r2": newTestDevice("r2", "eth0"),
	}
	mgrs, err := reach.NewSourceMgrs(f, devices)
	require.NoError(t, err)

	// Erasing one device's group must not disturb the other's constraint.
	set := mgrs["r1"].SourceInterfaceSet("eth0").And(mgrs["r2"].OriginatedByDeviceSet())
	erased := mgrs["r1"].ExistsSource(set)
	assert.True(t, erased.Equal(mgrs["r2"].OriginatedByDeviceSet()))
}
