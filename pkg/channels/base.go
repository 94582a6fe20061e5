package channels

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/picoclaw-bridge/bridge/pkg/bridge"
	"github.com/picoclaw-bridge/bridge/pkg/bridgecmd"
	"github.com/picoclaw-bridge/bridge/pkg/bridgecore"
)

// Channel is the adapter contract every platform implementation
// satisfies. Manager drives Start/Stop/Send; adapters drive their own
// receive loop and call into their embedded BaseChannel to relay.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bridge.Message) error
	IsRunning() bool
}

// BaseChannelOption is a functional option for configuring a BaseChannel.
type BaseChannelOption func(*BaseChannel)

// WithMaxMessageLength sets the maximum message length (in runes) for a
// channel. Messages made of a single plain-text segment that exceed this
// limit are split by the Manager; other messages are sent whole. A value
// of 0 means no limit.
func WithMaxMessageLength(n int) BaseChannelOption {
	return func(c *BaseChannel) { c.maxMessageLength = n }
}

// BaseChannel holds the plumbing common to every platform adapter: its
// own bridge handle, its allow-list, the running flag Manager reads via
// IsRunning, and the max-length hint used for outbound splitting.
type BaseChannel struct {
	name             string
	platform         bridge.Platform
	handle           *bridgecore.Handle
	allowList        []string
	maxMessageLength int
	running          atomic.Bool
}

// NewBaseChannel builds a BaseChannel already registered on the bridge
// core under name.
func NewBaseChannel(name string, platform bridge.Platform, handle *bridgecore.Handle, allowList []string, opts ...BaseChannelOption) *BaseChannel {
	bc := &BaseChannel{
		name:      name,
		platform:  platform,
		handle:    handle,
		allowList: allowList,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

func (c *BaseChannel) Name() string                { return c.name }
func (c *BaseChannel) Platform() bridge.Platform    { return c.platform }
func (c *BaseChannel) Handle() *bridgecore.Handle   { return c.handle }
func (c *BaseChannel) MaxMessageLength() int        { return c.maxMessageLength }
func (c *BaseChannel) IsRunning() bool              { return c.running.Load() }
func (c *BaseChannel) SetRunning(running bool)      { c.running.Store(running) }

// IsAllowed reports whether a platform-native sender ID may relay
// through this adapter. An empty allow-list permits everyone.
func (c *BaseChannel) IsAllowed(originID string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	for _, allowed := range c.allowList {
		if originID == strings.TrimPrefix(allowed, "@") {
			return true
		}
	}
	return false
}

// ShouldRelay reports whether an inbound bus message should be rendered
// by a channel running as platform own. Command-addressed feedback only
// renders on its target platform; ordinary command text is suppressed
// for every platform except Cmd, which is the one adapter whose job is
// to parse it — rendering it anywhere else would just leak bind tokens
// into every other bridged chat.
func ShouldRelay(msg bridge.Message, own bridge.Platform) bool {
	if msg.TargetPlatform != nil {
		return *msg.TargetPlatform == own
	}
	if own == bridge.Cmd {
		return true
	}
	return !bridgecmd.IsCommand(msg)
}
