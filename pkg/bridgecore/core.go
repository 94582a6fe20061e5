// Package bridgecore threads the bridge's shared dependencies — the
// bus, the identity store, the correlation store, and the media cache —
// as a single explicitly-constructed value, rather than the package-level
// singletons the reference implementation uses. Every adapter is handed
// a Handle obtained from Core.Register instead of reaching for globals.
package bridgecore

import (
	"context"

	"github.com/picoclaw-bridge/bridge/pkg/bridge"
	"github.com/picoclaw-bridge/bridge/pkg/bus"
	"github.com/picoclaw-bridge/bridge/pkg/correlation"
	"github.com/picoclaw-bridge/bridge/pkg/identity"
	"github.com/picoclaw-bridge/bridge/pkg/media"
)

// Core bundles the bridge's shared state. It has no knowledge of any
// specific adapter; adapters depend on it, never the other way around.
type Core struct {
	Bus         *bus.Bus
	Identity    *identity.Store
	Correlation *correlation.Store
	Media       *media.Cache
}

// New builds a Core from its already-constructed dependencies.
func New(b *bus.Bus, ids *identity.Store, corr *correlation.Store, mediaCache *media.Cache) *Core {
	return &Core{Bus: b, Identity: ids, Correlation: corr, Media: mediaCache}
}

// Register creates a new named bus subscription and wraps it in a
// Handle carrying access back to the shared stores.
func (c *Core) Register(name string) (*Handle, error) {
	sub, err := c.Bus.Register(name)
	if err != nil {
		return nil, err
	}
	return &Handle{core: c, sub: sub}, nil
}

// Handle is one adapter's view onto the bridge core: it can receive
// fanned-out messages, record+publish new ones, and extend a message's
// ref set as it lands on more platforms.
type Handle struct {
	core *Core
	sub  *bus.Subscription
}

// Name returns the name this handle was registered under.
func (h *Handle) Name() string { return h.sub.Name() }

// Recv blocks for the next message addressed to this handle.
func (h *Handle) Recv(ctx context.Context) (bridge.Message, bool) {
	return h.sub.Recv(ctx)
}

// SendMessage records form in the correlation store, then fans the
// resulting canonical message out to every other registered handle. It
// returns the freshly assigned bridge-message ID.
func (h *Handle) SendMessage(ctx context.Context, form bridge.SaveForm, cfg bridge.BridgeConfig) (string, error) {
	id, err := h.core.Correlation.Save(form)
	if err != nil {
		return "", err
	}

	h.sub.Send(ctx, bridge.Message{
		ID:             id,
		SenderID:       form.SenderID,
		SenderName:     form.SenderName,
		SenderAvatar:   form.SenderAvatar,
		OriginPlatform: form.OriginPlatform,
		OriginID:       form.OriginID,
		Bridge:         cfg,
		Chain:          form.Chain,
	})
	return id, nil
}

// SendFeedback publishes a Cmd-origin message addressed to a single
// platform (see bridge.Message.TargetPlatform) without recording it in
// the correlation store — command feedback is transient and is never a
// reply/edit target itself.
func (h *Handle) SendFeedback(ctx context.Context, cfg bridge.BridgeConfig, target bridge.Platform, chain bridge.MessageChain) {
	h.sub.Send(ctx, bridge.Message{
		SenderID:       "",
		OriginPlatform: bridge.Cmd,
		Bridge:         cfg,
		Chain:          chain,
		TargetPlatform: &target,
	})
}

// AddRef extends bridgeID's ref set with a copy delivered to platform
// under originID. See correlation.Store.AddRef for idempotence.
func (h *Handle) AddRef(bridgeID string, platform bridge.Platform, originID string) error {
	return h.core.Correlation.AddRef(bridgeID, platform, originID)
}

// ResolveUser finds or creates the bridge user for (platform, originID).
// displayText is only used when the user is created; an existing
// user's display text is left unchanged. Adapters call this on every inbound
// message before translating sender/mention segments.
func (h *Handle) ResolveUser(platform bridge.Platform, originID, displayText string) (*bridge.User, error) {
	return h.core.Identity.FindOrCreate(platform, originID, displayText)
}

// GetUser looks up a bridge user by its bridge-wide ID, as referenced by
// a SegmentAt's AtID.
func (h *Handle) GetUser(id string) (*bridge.User, bool) {
	return h.core.Identity.Get(id)
}

// GetRecord looks up the persisted record for a bridge-message ID, used
// to resolve a SegmentReply into a platform-native reply target.
func (h *Handle) GetRecord(bridgeMessageID string) (*bridge.MessageRecord, bool) {
	return h.core.Correlation.Get(bridgeMessageID)
}

// FindByRef resolves a platform-native reply target back into the
// bridge-message it corresponds to, so an inbound reply can be
// translated into a SegmentReply. See correlation.Store.FindByRef for
// the ErrAmbiguousRef case.
func (h *Handle) FindByRef(platform bridge.Platform, originID string) (*bridge.MessageRecord, error) {
	return h.core.Correlation.FindByRef(platform, originID)
}

// FindCounterpart returns the bridge user linked (via RefID) to the
// same identity on platform, if the two accounts have been bound.
// Adapters use this to render a SegmentAt as a native mention rather
// than a plain display-name fallback.
func (h *Handle) FindCounterpart(refID string, platform bridge.Platform) (*bridge.User, bool) {
	return h.core.Identity.FindCounterpart(refID, platform)
}

// FetchMedia downloads and caches url, returning a local file path.
func (h *Handle) FetchMedia(ctx context.Context, url string) (string, error) {
	return h.core.Media.Fetch(ctx, url)
}

// WriteMediaBytes content-addresses raw bytes into the media cache,
// returning a local file path.
func (h *Handle) WriteMediaBytes(data []byte, contentType string) (string, error) {
	return h.core.Media.WriteBytes(data, contentType)
}
