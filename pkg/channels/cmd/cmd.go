// Package cmd implements the bind-protocol pseudo-adapter: it never
// talks to an external platform, only to the bus. It receives every
// un-targeted message (see channels.ShouldRelay), answers the ones that
// look like commands, and stays silent for everything else.
package cmd

import (
	"context"

	"github.com/picoclaw-bridge/bridge/pkg/bridge"
	"github.com/picoclaw-bridge/bridge/pkg/bridgecmd"
	"github.com/picoclaw-bridge/bridge/pkg/bridgecore"
	"github.com/picoclaw-bridge/bridge/pkg/channels"
	"github.com/picoclaw-bridge/bridge/pkg/config"
	"github.com/picoclaw-bridge/bridge/pkg/logger"
)

// Channel is the command pseudo-adapter. Its Send is driven by
// Manager's generic relay loop, same as every other adapter's.
type Channel struct {
	*channels.BaseChannel
	dispatcher *bridgecmd.Dispatcher
}

// New builds a cmd Channel over the given dispatcher.
func New(handle *bridgecore.Handle, dispatcher *bridgecmd.Dispatcher) *Channel {
	base := channels.NewBaseChannel("cmd", bridge.Cmd, handle, nil)
	return &Channel{BaseChannel: base, dispatcher: dispatcher}
}

func init() {
	channels.RegisterFactory("cmd", func(cfg *config.Config, core *bridgecore.Core) (channels.Channel, error) {
		handle, err := core.Register("cmd")
		if err != nil {
			return nil, err
		}
		dispatcher := bridgecmd.NewDispatcher(core.Identity, cfg.CommandAliases)
		return New(handle, dispatcher), nil
	})
}

func (c *Channel) Start(ctx context.Context) error {
	c.SetRunning(true)
	return nil
}

func (c *Channel) Stop(ctx context.Context) error {
	c.SetRunning(false)
	return nil
}

// Send inspects msg and, if it is a recognized command, runs it and
// publishes the reply back to the originating platform. An unknown
// command keyword still gets an "unknown command" reply. Ordinary chat,
// and a bare "!" with no keyword, are silently ignored — the cmd
// adapter has nothing to render.
func (c *Channel) Send(ctx context.Context, msg bridge.Message) error {
	if !bridgecmd.IsCommand(msg) {
		return nil
	}

	reply, handled := c.dispatcher.Handle(msg)
	if !handled || reply == "" {
		return nil
	}

	logger.DebugCF("cmd", "handled command", map[string]any{
		"sender":   msg.SenderID,
		"platform": msg.OriginPlatform.String(),
	})

	c.Handle().SendFeedback(ctx, msg.Bridge, msg.OriginPlatform, bridge.MessageChain{bridge.Plain(reply)})
	return nil
}
