// Package discord adapts Discord guild/DM channels to the bridge's
// canonical message model via discordgo.
package discord

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/picoclaw-bridge/bridge/pkg/bridge"
	"github.com/picoclaw-bridge/bridge/pkg/bridgecore"
	"github.com/picoclaw-bridge/bridge/pkg/channels"
	"github.com/picoclaw-bridge/bridge/pkg/config"
	"github.com/picoclaw-bridge/bridge/pkg/logger"
	"github.com/picoclaw-bridge/bridge/pkg/utils"
)

const sendTimeout = 10 * time.Second

// Channel bridges Discord guild/DM channels onto the bus.
type Channel struct {
	*channels.BaseChannel
	session   *discordgo.Session
	cfg       *config.Config
	ctx       context.Context
	cancel    context.CancelFunc
	botUserID string
}

// New builds a Discord Channel. The session is created but not opened.
func New(cfg *config.Config, handle *bridgecore.Handle) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	base := channels.NewBaseChannel("discord", bridge.Discord, handle, []string(cfg.Discord.AllowFrom),
		channels.WithMaxMessageLength(2000))
	return &Channel{BaseChannel: base, session: session, cfg: cfg, ctx: context.Background()}, nil
}

func init() {
	channels.RegisterFactory("discord", func(cfg *config.Config, core *bridgecore.Core) (channels.Channel, error) {
		handle, err := core.Register("discord")
		if err != nil {
			return nil, err
		}
		return New(cfg, handle)
	})
}

func (c *Channel) Start(ctx context.Context) error {
	logger.InfoC("discord", "starting discord bot")
	c.ctx, c.cancel = context.WithCancel(ctx)

	botUser, err := c.session.User("@me")
	if err != nil {
		return fmt.Errorf("discord: get bot user: %w", err)
	}
	c.botUserID = botUser.ID

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	c.SetRunning(true)

	logger.InfoCF("discord", "discord bot connected", map[string]any{"user_id": botUser.ID})
	return nil
}

func (c *Channel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "stopping discord bot")
	c.SetRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	if err := c.session.Close(); err != nil {
		return fmt.Errorf("discord: close session: %w", err)
	}
	return nil
}

func discordMention(user *bridge.User, nativeID string) string {
	if nativeID == "" {
		return "@" + user.DisplayText
	}
	return "<@" + nativeID + ">"
}

// Send relays a bridge message into the Discord channel named by
// msg.Bridge.Discord.ChannelID.
func (c *Channel) Send(ctx context.Context, msg bridge.Message) error {
	if !c.IsRunning() {
		return channels.ErrNotRunning
	}

	channelID := msg.Bridge.Discord.ChannelID
	if channelID == "" {
		return fmt.Errorf("discord: no channel mapped for bridge %q: %w", msg.Bridge.Name, channels.ErrSendFailed)
	}

	rendered := channels.Render(c.Handle(), bridge.Discord, msg.Chain, discordMention, "@everyone")

	send := &discordgo.MessageSend{Content: rendered.Text}

	if rendered.HasReply {
		if record, ok := c.Handle().GetRecord(rendered.ReplyTo); ok {
			if nativeID, ok := record.RefOn(bridge.Discord); ok {
				send.Reference = &discordgo.MessageReference{MessageID: nativeID, ChannelID: channelID}
			}
		}
	}

	var openFiles []*os.File
	for _, img := range rendered.Images {
		path, err := c.resolveImage(ctx, img)
		if err != nil {
			logger.WarnCF("discord", "failed to resolve image", map[string]any{"error": err.Error()})
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			logger.WarnCF("discord", "failed to open image", map[string]any{"path": path, "error": err.Error()})
			continue
		}
		openFiles = append(openFiles, f)
		send.Files = append(send.Files, &discordgo.File{Name: filenameOf(path), Reader: f})
	}
	defer func() {
		for _, f := range openFiles {
			f.Close()
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	done := make(chan *discordgo.Message, 1)
	errCh := make(chan error, 1)
	go func() {
		sent, err := c.session.ChannelMessageSendComplex(channelID, send)
		if err != nil {
			errCh <- err
			return
		}
		done <- sent
	}()

	select {
	case sent := <-done:
		if msg.ID != "" {
			if err := c.Handle().AddRef(msg.ID, bridge.Discord, sent.ID); err != nil {
				logger.WarnCF("discord", "failed to record ref", map[string]any{"error": err.Error()})
			}
		}
		return nil
	case err := <-errCh:
		return classifyDiscordErr(err)
	case <-sendCtx.Done():
		return sendCtx.Err()
	}
}

func filenameOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

func (c *Channel) resolveImage(ctx context.Context, seg bridge.MessageSegment) (string, error) {
	switch seg.ImageSource {
	case bridge.ImageURL:
		return c.Handle().FetchMedia(ctx, seg.ImageURL)
	case bridge.ImagePath:
		return seg.ImagePath, nil
	case bridge.ImageBytes:
		return c.Handle().WriteMediaBytes(seg.ImageBytes, "")
	default:
		return "", fmt.Errorf("discord: image segment has no source")
	}
}

func classifyDiscordErr(err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return channels.ClassifySendError(restErr.Response.StatusCode, err)
	}
	return channels.ClassifyNetError(err)
}

var mentionPattern = regexp.MustCompile(`<@!?(\d+)>|@everyone|@here`)

func (c *Channel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Author == nil || m.Author.ID == c.botUserID {
		return
	}
	if !c.IsAllowed(m.Author.ID) {
		logger.DebugCF("discord", "message rejected by allow-list", map[string]any{"user_id": m.Author.ID})
		return
	}

	bridgeCfg, ok := c.cfg.ResolveBridge(bridge.Discord, m.ChannelID)
	if !ok {
		return
	}

	displayName := m.Author.Username
	if m.Author.Discriminator != "" && m.Author.Discriminator != "0" {
		displayName += "#" + m.Author.Discriminator
	}
	sender, err := c.Handle().ResolveUser(bridge.Discord, m.Author.ID, displayName)
	if err != nil {
		logger.ErrorCF("discord", "failed to resolve sender", map[string]any{"error": err.Error()})
		return
	}

	chain := c.parseContent(m)

	for _, att := range m.Attachments {
		if strings.HasPrefix(att.ContentType, "image/") {
			chain = append(chain, bridge.ImageFromURL(att.URL))
		} else {
			chain = append(chain, bridge.Other(fmt.Sprintf("[attachment: %s]", att.URL)))
		}
	}

	if len(chain) == 0 {
		return
	}

	if m.MessageReference != nil && m.MessageReference.MessageID != "" {
		if record, err := c.Handle().FindByRef(bridge.Discord, m.MessageReference.MessageID); err == nil && record != nil {
			chain = append(bridge.MessageChain{bridge.Reply(record.ID)}, chain...)
		}
	}

	logger.DebugCF("discord", "received message", map[string]any{
		"sender":  displayName,
		"preview": utils.Truncate(m.Content, 50),
	})

	if _, err := c.Handle().SendMessage(c.ctx, bridge.SaveForm{
		SenderID:       sender.ID,
		SenderName:     displayName,
		OriginPlatform: bridge.Discord,
		OriginID:       m.ID,
		Chain:          chain,
	}, bridgeCfg); err != nil {
		logger.ErrorCF("discord", "failed to relay message", map[string]any{"error": err.Error()})
	}
}

// parseContent splits m.Content into a chain, resolving <@id> and
// @everyone/@here tokens into SegmentAt/SegmentAtAll and leaving the
// rest as plain text runs.
func (c *Channel) parseContent(m *discordgo.MessageCreate) bridge.MessageChain {
	if m.Content == "" {
		return nil
	}

	mentionNames := make(map[string]string, len(m.Mentions))
	for _, u := range m.Mentions {
		mentionNames[u.ID] = u.Username
	}

	var chain bridge.MessageChain
	last := 0
	for _, loc := range mentionPattern.FindAllStringSubmatchIndex(m.Content, -1) {
		if loc[0] > last {
			if text := m.Content[last:loc[0]]; text != "" {
				chain = append(chain, bridge.Plain(text))
			}
		}
		token := m.Content[loc[0]:loc[1]]
		switch {
		case token == "@everyone" || token == "@here":
			chain = append(chain, bridge.AtAll())
		default:
			discordID := m.Content[loc[2]:loc[3]]
			user, err := c.Handle().ResolveUser(bridge.Discord, discordID, mentionNames[discordID])
			if err == nil {
				chain = append(chain, bridge.At(user.ID))
			}
		}
		last = loc[1]
	}
	if last < len(m.Content) {
		if text := m.Content[last:]; text != "" {
			chain = append(chain, bridge.Plain(text))
		}
	}
	return chain
}
