// Package identity is the bridge-wide identity store: one record per
// (platform, origin id) pair, optionally linked to a counterpart on
// another platform via a shared ref ID.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/picoclaw-bridge/bridge/pkg/bridge"
	"github.com/picoclaw-bridge/bridge/pkg/fileutil"
)

// BuildCanonicalID constructs a canonical "platform:id" identifier used
// as the store's internal index key. Both parts are trimmed; the
// platform is also lowercased.
func BuildCanonicalID(platform, originID string) string {
	p := strings.ToLower(strings.TrimSpace(platform))
	id := strings.TrimSpace(originID)
	if p == "" || id == "" {
		return ""
	}
	return p + ":" + id
}

// ParseCanonicalID splits a canonical ID ("platform:id") into its
// parts. ok is false if the input has no colon separator.
func ParseCanonicalID(canonical string) (platform, id string, ok bool) {
	canonical = strings.TrimSpace(canonical)
	idx := strings.Index(canonical, ":")
	if idx <= 0 || idx == len(canonical)-1 {
		return "", "", false
	}
	return canonical[:idx], canonical[idx+1:], true
}

// Store is the in-memory, disk-backed table of bridge users.
type Store struct {
	mu       sync.RWMutex
	path     string
	users    []*bridge.User
	byID     map[string]*bridge.User
	byOrigin map[string]*bridge.User // key: BuildCanonicalID(platform.Code(), originID)
}

// Open loads the store from path if it exists, or starts empty.
func Open(path string) (*Store, error) {
	s := &Store{
		path:     path,
		byID:     make(map[string]*bridge.User),
		byOrigin: make(map[string]*bridge.User),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identity: read %s: %w", path, err)
	}

	var users []*bridge.User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("identity: parse %s: %w", path, err)
	}
	for _, u := range users {
		s.index(u)
	}
	return s, nil
}

func originKey(platform bridge.Platform, originID string) string {
	return BuildCanonicalID(platform.Code(), originID)
}

func (s *Store) index(u *bridge.User) {
	s.users = append(s.users, u)
	s.byID[u.ID] = u
	s.byOrigin[originKey(u.Platform, u.OriginID)] = u
}

// Get returns the user with the given bridge user ID.
func (s *Store) Get(id string) (*bridge.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	return u, ok
}

// FindByOrigin returns the user for a given platform and native origin
// ID, if one has been created.
func (s *Store) FindByOrigin(platform bridge.Platform, originID string) (*bridge.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byOrigin[originKey(platform, originID)]
	return u, ok
}

// FindOrCreate returns the existing user for (platform, originID),
// creating and persisting one with displayText if none exists yet. Safe
// under concurrent calls for the same key: Create itself resolves the
// race by handing back whichever record won.
func (s *Store) FindOrCreate(platform bridge.Platform, originID, displayText string) (*bridge.User, error) {
	return s.Create(platform, originID, displayText)
}

// Create returns the user for (platform, originID), inserting and
// persisting a brand new record with displayText if none exists yet.
// Two concurrent calls for the same key both return the same record —
// whichever one the lock lets through first creates it, the other just
// reads it back — rather than the loser getting ErrAlreadyExists.
func (s *Store) Create(platform bridge.Platform, originID, displayText string) (*bridge.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := originKey(platform, originID)
	if existing, exists := s.byOrigin[key]; exists {
		return existing, nil
	}

	u := &bridge.User{
		ID:          uuid.NewString(),
		Platform:    platform,
		OriginID:    originID,
		DisplayText: displayText,
	}
	s.index(u)
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return u, nil
}

// FindCounterpart returns the user linked to refID on the given
// platform, if any. Unlike the reference implementation, a user with
// no ref ID is simply skipped rather than aborting the whole search.
func (s *Store) FindCounterpart(refID string, platform bridge.Platform) (*bridge.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.RefID == nil {
			continue
		}
		if *u.RefID == refID && u.Platform == platform {
			return u, true
		}
	}
	return nil, false
}

// BatchUpdate overwrites the RefID (and any other mutable fields) of
// each given user by ID, then persists the whole table atomically.
func (s *Store) BatchUpdate(users ...*bridge.User) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, update := range users {
		existing, ok := s.byID[update.ID]
		if !ok {
			continue
		}
		existing.RefID = update.RefID
		existing.DisplayText = update.DisplayText
		count++
	}
	if err := s.saveLocked(); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := json.Marshal(s.users)
	if err != nil {
		return fmt.Errorf("identity: marshal: %w", err)
	}
	return fileutil.WriteFileAtomic(s.path, data, 0o600)
}
