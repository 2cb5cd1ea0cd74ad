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

package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"zgo.at/zcache/v2"

	"github.com/symflow/symflow/pkg/bdd"
	"github.com/symflow/symflow/pkg/netmodel"
	"github.com/symflow/symflow/pkg/reach"
)

// Entry is a fully compiled snapshot: the parsed network together with
// the symbolic packet space and the reachability factory built over it.
// Entries are safe for concurrent use.
type Entry struct {
	Network *netmodel.Network
	Packet  *bdd.Packet
	Factory *reach.Factory
}

// Store caches compiled snapshots keyed by content digest, so repeated
// queries against the same snapshot reuse the factory and its predicate
// tables instead of recompiling.
type Store struct {
	logger *zap.Logger
	cache  *zcache.Cache[string, *Entry]

	// Serializes compilation of a given digest so concurrent first
	// queries do not build the same factory twice.
	mu sync.Mutex
}

// NewStore creates a snapshot store. Compiled entries expire ttl after
// insertion; zero means they never expire.
func NewStore(ttl time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl == 0 {
		ttl = zcache.NoExpiration
	}
	return &Store{
		logger: logger,
		cache:  zcache.New[string, *Entry](ttl, ttl),
	}
}

// Load parses and compiles a snapshot, or returns the cached entry when
// the same bytes were loaded before.
func (s *Store) Load(raw []byte) (*Entry, error) {
	digest := sha256.Sum256(raw)
	key := hex.EncodeToString(digest[:])

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.cache.Get(key); ok {
		s.logger.Debug("snapshot cache hit", zap.String("digest", key[:12]))
		return entry, nil
	}

	network, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	f, err := bdd.NewFactory(0)
	if err != nil {
		return nil, err
	}
	pkt, err := bdd.NewPacket(f)
	if err != nil {
		return nil, err
	}
	factory, err := reach.NewFactory(pkt, network, s.logger)
	if err != nil {
		return nil, err
	}

	entry := &Entry{Network: network, Packet: pkt, Factory: factory}
	s.cache.Set(key, entry)
	s.logger.Info("compiled snapshot",
		zap.String("digest", key[:12]),
		zap.Int("devices", len(network.Devices)))
	return entry, nil
}

// LoadFile loads and compiles a snapshot file through the cache.
func (s *Store) LoadFile(path string) (*Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return s.Load(raw)
}
