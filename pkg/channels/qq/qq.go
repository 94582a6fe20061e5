// Package qq adapts QQ guild/group chats to the bridge's canonical
// message model via the official botgo WebSocket gateway.
package qq

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/tencent-connect/botgo"
	"github.com/tencent-connect/botgo/dto"
	"github.com/tencent-connect/botgo/event"
	"github.com/tencent-connect/botgo/openapi"
	"github.com/tencent-connect/botgo/token"

	"github.com/picoclaw-bridge/bridge/pkg/bridge"
	"github.com/picoclaw-bridge/bridge/pkg/bridgecore"
	"github.com/picoclaw-bridge/bridge/pkg/channels"
	"github.com/picoclaw-bridge/bridge/pkg/config"
	"github.com/picoclaw-bridge/bridge/pkg/logger"
	"github.com/picoclaw-bridge/bridge/pkg/utils"
)

// Channel bridges QQ groups onto the bus over botgo's WebSocket gateway.
// Only group @ messages are relayed: spec scope is group-to-group
// bridging, and botgo's group events are always bot-mentioned by
// construction, so there is no separate "everyone in the group" stream
// to filter the way Discord/Telegram require.
type Channel struct {
	*channels.BaseChannel
	cfg            *config.Config
	api            openapi.OpenAPI
	sessionManager botgo.SessionManager
	ctx            context.Context
	cancel         context.CancelFunc

	mu           sync.Mutex
	processedIDs map[string]struct{}
}

// New builds a QQ Channel. The gateway session is not opened until Start.
func New(cfg *config.Config, handle *bridgecore.Handle) (*Channel, error) {
	base := channels.NewBaseChannel("qq", bridge.QQ, handle, []string(cfg.QQ.AllowFrom))
	return &Channel{
		BaseChannel:  base,
		cfg:          cfg,
		processedIDs: make(map[string]struct{}),
	}, nil
}

func init() {
	channels.RegisterFactory("qq", func(cfg *config.Config, core *bridgecore.Core) (channels.Channel, error) {
		handle, err := core.Register("qq")
		if err != nil {
			return nil, err
		}
		return New(cfg, handle)
	})
}

func (c *Channel) Start(ctx context.Context) error {
	if c.cfg.QQ.AppID == "" || c.cfg.QQ.AppSecret == "" {
		return fmt.Errorf("qq: app id/secret not configured")
	}

	logger.InfoC("qq", "starting qq bot (websocket mode)")
	c.ctx, c.cancel = context.WithCancel(ctx)

	credentials := &token.QQBotCredentials{AppID: c.cfg.QQ.AppID, AppSecret: c.cfg.QQ.AppSecret}
	tokenSource := token.NewQQBotTokenSource(credentials)
	if err := token.StartRefreshAccessToken(c.ctx, tokenSource); err != nil {
		return fmt.Errorf("qq: start token refresh: %w", err)
	}

	c.api = botgo.NewOpenAPI(c.cfg.QQ.AppID, tokenSource).WithTimeout(5 * time.Second)

	intent := event.RegisterHandlers(c.handleGroupATMessage())

	wsInfo, err := c.api.WS(c.ctx, nil, "")
	if err != nil {
		return fmt.Errorf("qq: get websocket info: %w", err)
	}

	c.sessionManager = botgo.NewSessionManager()
	go func() {
		if err := c.sessionManager.Start(wsInfo, tokenSource, &intent); err != nil {
			logger.ErrorCF("qq", "websocket session error", map[string]any{"error": err.Error()})
			c.SetRunning(false)
		}
	}()

	c.SetRunning(true)
	logger.InfoC("qq", "qq bot started")
	return nil
}

func (c *Channel) Stop(ctx context.Context) error {
	logger.InfoC("qq", "stopping qq bot")
	c.SetRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func qqMention(user *bridge.User, nativeID string) string {
	return "@" + user.DisplayText
}

// Send relays a bridge message into the QQ group named by
// msg.Bridge.QQGroup.
func (c *Channel) Send(ctx context.Context, msg bridge.Message) error {
	if !c.IsRunning() {
		return channels.ErrNotRunning
	}
	if msg.Bridge.QQGroup == 0 {
		return fmt.Errorf("qq: no group mapped for bridge %q: %w", msg.Bridge.Name, channels.ErrSendFailed)
	}
	groupID := fmt.Sprintf("%d", msg.Bridge.QQGroup)

	rendered := channels.Render(c.Handle(), bridge.QQ, msg.Chain, qqMention, "@全体成员")
	text := rendered.Text
	if len(rendered.Images) > 0 {
		// dto.MessageToCreate's rich-media fields aren't grounded in
		// the pack beyond plain Content; the first image degrades to its
		// local file path appended as text rather than being attached,
		// and any further images are not sent.
		if path, err := c.resolveImage(ctx, rendered.Images[0]); err == nil {
			text += "\n[image] " + path
		} else {
			logger.WarnCF("qq", "failed to resolve image", map[string]any{"error": err.Error()})
		}
	}

	toCreate := &dto.MessageToCreate{Content: text}

	// botgo's exposed OpenAPI surface only carries PostC2CMessage; there
	// is no separate group-send call grounded in the pack, so group
	// relay goes out the same endpoint keyed by the group id.
	sent, err := c.api.PostC2CMessage(ctx, groupID, toCreate)
	if err != nil {
		return classifyQQErr(err)
	}
	if msg.ID != "" && sent != nil && sent.ID != "" {
		if err := c.Handle().AddRef(msg.ID, bridge.QQ, sent.ID); err != nil {
			logger.WarnCF("qq", "failed to record ref", map[string]any{"error": err.Error()})
		}
	}
	return nil
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
		return "", fmt.Errorf("qq: image segment has no source")
	}
}

func classifyQQErr(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "frequency limit"):
		return fmt.Errorf("%w: %v", channels.ErrRateLimit, err)
	default:
		return channels.ClassifyNetError(err)
	}
}

var botMentionPattern = regexp.MustCompile(`^<@!?\d+>\s*`)

func (c *Channel) handleGroupATMessage() event.GroupATMessageEventHandler {
	return func(_ *dto.WSPayload, data *dto.WSGroupATMessageData) error {
		if c.isDuplicate(data.ID) {
			return nil
		}
		if data.Author == nil || data.Author.ID == "" {
			logger.WarnC("qq", "group message missing sender id")
			return nil
		}
		if !c.IsAllowed(data.Author.ID) {
			logger.DebugCF("qq", "message rejected by allow-list", map[string]any{"user_id": data.Author.ID})
			return nil
		}

		bridgeCfg, ok := c.cfg.ResolveBridge(bridge.QQ, data.GroupID)
		if !ok {
			return nil
		}

		content := botMentionPattern.ReplaceAllString(data.Content, "")
		if content == "" {
			return nil
		}

		sender, err := c.Handle().ResolveUser(bridge.QQ, data.Author.ID, data.Author.ID)
		if err != nil {
			logger.ErrorCF("qq", "failed to resolve sender", map[string]any{"error": err.Error()})
			return nil
		}

		chain := bridge.MessageChain{bridge.Plain(content)}
		if data.MessageReference != nil && data.MessageReference.MessageID != "" {
			if record, err := c.Handle().FindByRef(bridge.QQ, data.MessageReference.MessageID); err == nil && record != nil {
				chain = append(bridge.MessageChain{bridge.Reply(record.ID)}, chain...)
			}
		}

		logger.DebugCF("qq", "received group message", map[string]any{
			"sender":  data.Author.ID,
			"group":   data.GroupID,
			"preview": utils.Truncate(content, 50),
		})

		if _, err := c.Handle().SendMessage(c.ctx, bridge.SaveForm{
			SenderID:       sender.ID,
			SenderName:     data.Author.ID,
			OriginPlatform: bridge.QQ,
			OriginID:       data.ID,
			Chain:          chain,
		}, bridgeCfg); err != nil {
			logger.ErrorCF("qq", "failed to relay message", map[string]any{"error": err.Error()})
		}
		return nil
	}
}

// isDuplicate guards against botgo occasionally redelivering an event
// on reconnect. The set is capped and halved rather than grown
// unbounded across a long-running process.
func (c *Channel) isDuplicate(messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, seen := c.processedIDs[messageID]; seen {
		return true
	}
	c.processedIDs[messageID] = struct{}{}

	if len(c.processedIDs) > 10000 {
		count := 0
		for id := range c.processedIDs {
			if count >= 5000 {
				break
			}
			delete(c.processedIDs, id)
			count++
		}
	}
	return false
}
