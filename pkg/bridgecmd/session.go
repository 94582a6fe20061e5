package bridgecmd

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/picoclaw-bridge/bridge/pkg/bridge"
	"github.com/picoclaw-bridge/bridge/pkg/identity"
)

// CacheTimeout is how long an unconfirmed bind session is kept before
// it is treated as abandoned. Matches the reference implementation's
// 24-hour CACHE_TIMEOUT.
const CacheTimeout = 24 * time.Hour

type session struct {
	applicantID       string
	applicantPlatform bridge.Platform
	responderID       string // empty until RespondToSession
	createdAt         time.Time
}

// SessionTable tracks in-flight bind sessions: one applicant can have
// at most one live session at a time, keyed by both the token they were
// given and their own bridge user ID.
type SessionTable struct {
	mu          sync.Mutex
	byToken     map[string]*session
	byApplicant map[string]string // applicant id -> token
	now         func() time.Time
}

// NewSessionTable creates an empty session table.
func NewSessionTable() *SessionTable {
	return &SessionTable{
		byToken:     make(map[string]*session),
		byApplicant: make(map[string]string),
		now:         time.Now,
	}
}

func (t *SessionTable) expireLocked() {
	cutoff := t.now().Add(-CacheTimeout)
	for token, s := range t.byToken {
		if s.createdAt.Before(cutoff) {
			delete(t.byToken, token)
			if t.byApplicant[s.applicantID] == token {
				delete(t.byApplicant, s.applicantID)
			}
		}
	}
}

// CreateSession starts a new bind session for applicantID on platform,
// discarding any previous unconfirmed session that applicant held, and
// returns the token the applicant should hand to the other party.
func (t *SessionTable) CreateSession(applicantID string, platform bridge.Platform) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.expireLocked()

	if oldToken, ok := t.byApplicant[applicantID]; ok {
		delete(t.byToken, oldToken)
	}

	var token string
	for {
		token = newToken()
		if _, exists := t.byToken[token]; !exists {
			break
		}
	}

	t.byToken[token] = &session{applicantID: applicantID, applicantPlatform: platform, createdAt: t.now()}
	t.byApplicant[applicantID] = token
	return token
}

// RespondToSession records that responderID, native to responderPlatform,
// answered a bind request identified by token. Responding a second time
// with the same responder is an idempotent no-op; a different responder
// who is already linked to the applicant is rejected with
// ErrAlreadyMapping, and any other different responder replaces the
// previous one. A response from the same platform as the applicant is also
// rejected — bridge users with the same ref id must sit on different
// platforms (spec's bridge-user data-model invariant).
func (t *SessionTable) RespondToSession(token, responderID string, responderPlatform bridge.Platform, isBound func(a, b string) bool) error {
	tok, err := parseToken(token)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.expireLocked()

	s, ok := t.byToken[tok]
	if !ok {
		return ErrNotFoundToken
	}
	if s.applicantPlatform == responderPlatform {
		return ErrSelfReference
	}
	if s.responderID != "" {
		if s.responderID == responderID {
			return nil
		}
		if isBound(s.applicantID, responderID) {
			return ErrAlreadyMapping
		}
	}
	s.responderID = responderID
	return nil
}

// pendingConfirmation is what ConfirmBind needs once it has located the
// applicant's session.
type pendingConfirmation struct {
	token       string
	responderID string
}

func (t *SessionTable) lookupForConfirm(applicantID string) (pendingConfirmation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expireLocked()

	token, ok := t.byApplicant[applicantID]
	if !ok {
		return pendingConfirmation{}, ErrNoApply
	}
	s, ok := t.byToken[token]
	if !ok {
		return pendingConfirmation{}, ErrNoApply
	}
	if s.responderID == "" {
		return pendingConfirmation{}, ErrNoResponded
	}
	return pendingConfirmation{token: token, responderID: s.responderID}, nil
}

func (t *SessionTable) clear(applicantID, token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byToken, token)
	if t.byApplicant[applicantID] == token {
		delete(t.byApplicant, applicantID)
	}
}

// ConfirmBind finalizes the bind session the applicant created: it
// reuses either party's existing ref ID if one already has one, mints a
// fresh one otherwise, and links both bridge users.
func ConfirmBind(sessions *SessionTable, ids *identity.Store, applicantID string) error {
	pending, err := sessions.lookupForConfirm(applicantID)
	if err != nil {
		return err
	}

	userA, ok := ids.Get(applicantID)
	if !ok {
		return ErrNotFoundBridgeUser
	}
	userB, ok := ids.Get(pending.responderID)
	if !ok {
		return ErrNotFoundBridgeUser
	}
	if userA.Platform == userB.Platform {
		return ErrSelfReference
	}

	var refID string
	switch {
	case userA.RefID != nil:
		refID = *userA.RefID
	case userB.RefID != nil:
		refID = *userB.RefID
	default:
		refID = uuid.NewString()
	}
	userA.RefID = &refID
	userB.RefID = &refID

	if _, err := ids.BatchUpdate(userA, userB); err != nil {
		return ErrUpdateBridgeUserFailure
	}

	sessions.clear(applicantID, pending.token)
	return nil
}

// Unbind clears the link between userID and its counterpart on
// platform. It is a no-op (not an error) if userID has no link, or no
// counterpart exists on that platform — mirroring the reference
// implementation's "nothing to undo" treatment of both cases. Only the
// counterpart's ref ID is cleared; userID's own ref ID is left as-is so
// it can still see any other linked counterpart.
func Unbind(ids *identity.Store, userID string, platform bridge.Platform) error {
	user, ok := ids.Get(userID)
	if !ok {
		return ErrNotFoundBridgeUser
	}
	if user.RefID == nil {
		return nil
	}

	counterpart, ok := ids.FindCounterpart(*user.RefID, platform)
	if !ok {
		return nil
	}

	counterpart.RefID = nil
	if _, err := ids.BatchUpdate(counterpart); err != nil {
		return ErrUpdateBridgeUserFailure
	}
	return nil
}
