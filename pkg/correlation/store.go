// Package correlation is the bridge-message correlation store: it
// records every relayed message once, then tracks every platform-native
// copy of it so replies and edits can be mapped back across platforms.
package correlation

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/picoclaw-bridge/bridge/pkg/bridge"
	"github.com/picoclaw-bridge/bridge/pkg/fileutil"
)

// ErrAmbiguousRef is returned by FindByRef when more than one record
// references the given (platform, originID) pair. The store never
// silently picks among ambiguous matches.
var ErrAmbiguousRef = errors.New("correlation: more than one record matches this reference")

// Store is the in-memory, disk-backed table of bridge-message records.
type Store struct {
	mu      sync.RWMutex
	path    string
	records []*bridge.MessageRecord
	byID    map[string]*bridge.MessageRecord
}

// Open loads the store from path if it exists, or starts empty.
func Open(path string) (*Store, error) {
	s := &Store{path: path, byID: make(map[string]*bridge.MessageRecord)}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("correlation: read %s: %w", path, err)
	}

	var records []*bridge.MessageRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("correlation: parse %s: %w", path, err)
	}
	for _, r := range records {
		s.records = append(s.records, r)
		s.byID[r.ID] = r
	}
	return s, nil
}

// Save creates a new bridge-message record seeded with one ref for the
// message's platform of origin, persists it, and returns its ID.
func (s *Store) Save(form bridge.SaveForm) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := &bridge.MessageRecord{
		ID:       uuid.NewString(),
		SenderID: form.SenderID,
		Avatar:   form.SenderAvatar,
		Chain:    form.Chain,
		Refs:     []bridge.Ref{{Platform: form.OriginPlatform, OriginID: form.OriginID}},
	}
	s.records = append(s.records, record)
	s.byID[record.ID] = record

	if err := s.saveLocked(); err != nil {
		return "", err
	}
	return record.ID, nil
}

// AddRef records that bridgeID was also delivered to platform as
// originID. It is a no-op if a ref for that platform already exists on
// the record, so a platform can never accumulate more than one ref.
func (s *Store) AddRef(bridgeID string, platform bridge.Platform, originID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.byID[bridgeID]
	if !ok {
		return fmt.Errorf("correlation: no record with id %q", bridgeID)
	}
	for _, ref := range record.Refs {
		if ref.Platform == platform {
			return nil
		}
	}
	record.Refs = append(record.Refs, bridge.Ref{Platform: platform, OriginID: originID})
	return s.saveLocked()
}

// Get returns the record for a given bridge-message ID.
func (s *Store) Get(bridgeID string) (*bridge.MessageRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[bridgeID]
	return r, ok
}

// FindByRef returns the record that has a ref matching (platform,
// originID). It returns ErrAmbiguousRef if more than one record
// matches, and (nil, nil) if none do.
func (s *Store) FindByRef(platform bridge.Platform, originID string) (*bridge.MessageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var match *bridge.MessageRecord
	for _, r := range s.records {
		for _, ref := range r.Refs {
			if ref.Platform == platform && ref.OriginID == originID {
				if match != nil {
					return nil, ErrAmbiguousRef
				}
				match = r
				break
			}
		}
	}
	return match, nil
}

func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := json.Marshal(s.records)
	if err != nil {
		return fmt.Errorf("correlation: marshal: %w", err)
	}
	return fileutil.WriteFileAtomic(s.path, data, 0o600)
}
