// Package telegram adapts Telegram private/group chats to the
// bridge's canonical message model via long-polling telego.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/picoclaw-bridge/bridge/pkg/bridge"
	"github.com/picoclaw-bridge/bridge/pkg/bridgecore"
	"github.com/picoclaw-bridge/bridge/pkg/channels"
	"github.com/picoclaw-bridge/bridge/pkg/config"
	"github.com/picoclaw-bridge/bridge/pkg/logger"
	"github.com/picoclaw-bridge/bridge/pkg/utils"
)

// Channel bridges Telegram chats onto the bus over long polling.
type Channel struct {
	*channels.BaseChannel
	bot    *telego.Bot
	bh     *th.BotHandler
	cfg    *config.Config
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Telegram Channel. The bot client is created but polling
// does not start until Start.
func New(cfg *config.Config, handle *bridgecore.Handle) (*Channel, error) {
	var opts []telego.BotOption
	if proxy := os.Getenv("HTTPS_PROXY"); proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil {
			opts = append(opts, telego.WithHTTPClient(&http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)}}))
		}
	}

	bot, err := telego.NewBot(cfg.Telegram.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}

	base := channels.NewBaseChannel("telegram", bridge.Telegram, handle, []string(cfg.Telegram.AllowFrom),
		channels.WithMaxMessageLength(4096))
	return &Channel{BaseChannel: base, bot: bot, cfg: cfg, ctx: context.Background()}, nil
}

func init() {
	channels.RegisterFactory("telegram", func(cfg *config.Config, core *bridgecore.Core) (channels.Channel, error) {
		handle, err := core.Register("telegram")
		if err != nil {
			return nil, err
		}
		return New(cfg, handle)
	})
}

func (c *Channel) Start(ctx context.Context) error {
	logger.InfoC("telegram", "starting telegram bot (polling mode)")
	c.ctx, c.cancel = context.WithCancel(ctx)

	updates, err := c.bot.UpdatesViaLongPolling(c.ctx, &telego.GetUpdatesParams{Timeout: 30})
	if err != nil {
		c.cancel()
		return fmt.Errorf("telegram: start long polling: %w", err)
	}

	bh, err := th.NewBotHandler(c.bot, updates)
	if err != nil {
		c.cancel()
		return fmt.Errorf("telegram: create bot handler: %w", err)
	}
	c.bh = bh

	bh.HandleMessage(func(hctx *th.Context, message telego.Message) error {
		return c.handleMessage(hctx, &message)
	}, th.AnyMessage())

	c.SetRunning(true)
	logger.InfoCF("telegram", "telegram bot connected", map[string]any{"username": c.bot.Username()})
	go bh.Start()
	return nil
}

func (c *Channel) Stop(ctx context.Context) error {
	logger.InfoC("telegram", "stopping telegram bot")
	c.SetRunning(false)
	if c.bh != nil {
		c.bh.Stop()
	}
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func telegramMention(user *bridge.User, nativeID string) string {
	if nativeID == "" {
		return "@" + user.DisplayText
	}
	return fmt.Sprintf(`<a href="tg://user?id=%s">%s</a>`, nativeID, escapeHTML(user.DisplayText))
}

// renderOutbound flattens chain into Telegram HTML. Mention markup
// must survive markdownToTelegramHTML's own HTML escaping pass, so it
// is rendered as a placeholder token first and substituted back in
// after conversion — the same trick the markdown converter already
// uses for code blocks.
func renderOutbound(handle *bridgecore.Handle, chain bridge.MessageChain) channels.Rendered {
	var mentions []string
	formatter := func(user *bridge.User, nativeID string) string {
		placeholder := fmt.Sprintf("\x00AT%d\x00", len(mentions))
		mentions = append(mentions, telegramMention(user, nativeID))
		return placeholder
	}

	rendered := channels.Render(handle, bridge.Telegram, chain, formatter, "@all")
	text := markdownToTelegramHTML(rendered.Text)
	for i, m := range mentions {
		text = strings.ReplaceAll(text, fmt.Sprintf("\x00AT%d\x00", i), m)
	}
	rendered.Text = text
	return rendered
}

// Send relays a bridge message into the Telegram chat named by
// msg.Bridge.TGGroup.
func (c *Channel) Send(ctx context.Context, msg bridge.Message) error {
	if !c.IsRunning() {
		return channels.ErrNotRunning
	}
	if msg.Bridge.TGGroup == 0 {
		return fmt.Errorf("telegram: no chat mapped for bridge %q: %w", msg.Bridge.Name, channels.ErrSendFailed)
	}

	rendered := renderOutbound(c.Handle(), msg.Chain)

	tgMsg := tu.Message(tu.ID(msg.Bridge.TGGroup), rendered.Text)
	tgMsg.ParseMode = telego.ModeHTML
	if rendered.HasReply {
		if record, ok := c.Handle().GetRecord(rendered.ReplyTo); ok {
			if nativeID, ok := record.RefOn(bridge.Telegram); ok {
				if mid, err := strconv.Atoi(nativeID); err == nil {
					tgMsg.ReplyParameters = &telego.ReplyParameters{MessageID: mid}
				}
			}
		}
	}

	sent, err := c.bot.SendMessage(ctx, tgMsg)
	if err != nil {
		tgMsg.ParseMode = ""
		sent, err = c.bot.SendMessage(ctx, tgMsg)
		if err != nil {
			return classifyTelegramErr(err)
		}
	}

	for _, img := range rendered.Images {
		if err := c.sendImage(ctx, msg.Bridge.TGGroup, img); err != nil {
			logger.WarnCF("telegram", "failed to send image", map[string]any{"error": err.Error()})
		}
	}

	if msg.ID != "" {
		if err := c.Handle().AddRef(msg.ID, bridge.Telegram, strconv.Itoa(sent.MessageID)); err != nil {
			logger.WarnCF("telegram", "failed to record ref", map[string]any{"error": err.Error()})
		}
	}
	return nil
}

func (c *Channel) sendImage(ctx context.Context, chatID int64, seg bridge.MessageSegment) error {
	path, err := c.resolveImage(ctx, seg)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = c.bot.SendPhoto(ctx, &telego.SendPhotoParams{
		ChatID: tu.ID(chatID),
		Photo:  telego.InputFile{File: f},
	})
	return err
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
		return "", fmt.Errorf("telegram: image segment has no source")
	}
}

func classifyTelegramErr(err error) error {
	var apiErr *telego.Error
	if errors.As(err, &apiErr) {
		return channels.ClassifySendError(apiErr.ErrorCode, err)
	}
	return channels.ClassifyNetError(err)
}

func (c *Channel) handleMessage(ctx context.Context, message *telego.Message) error {
	if message == nil || message.From == nil {
		return nil
	}

	platformID := strconv.FormatInt(message.From.ID, 10)
	if !c.IsAllowed(platformID) {
		logger.DebugCF("telegram", "message rejected by allow-list", map[string]any{"user_id": platformID})
		return nil
	}

	chatIDStr := strconv.FormatInt(message.Chat.ID, 10)
	bridgeCfg, ok := c.cfg.ResolveBridge(bridge.Telegram, chatIDStr)
	if !ok {
		return nil
	}

	displayName := message.From.FirstName
	if message.From.Username != "" {
		displayName = message.From.Username
	}
	sender, err := c.Handle().ResolveUser(bridge.Telegram, platformID, displayName)
	if err != nil {
		logger.ErrorCF("telegram", "failed to resolve sender", map[string]any{"error": err.Error()})
		return nil
	}

	chain := c.parseEntities(message)

	if len(message.Photo) > 0 {
		photo := message.Photo[len(message.Photo)-1]
		if url := c.downloadURL(ctx, photo.FileID); url != "" {
			chain = append(chain, bridge.ImageFromURL(url))
		}
	}
	if message.Document != nil {
		chain = append(chain, bridge.Other("[file]"))
	}
	if message.Voice != nil || message.Audio != nil {
		chain = append(chain, bridge.Other("[audio]"))
	}

	if len(chain) == 0 {
		return nil
	}

	if message.ReplyToMessage != nil {
		nativeID := strconv.Itoa(message.ReplyToMessage.MessageID)
		if record, err := c.Handle().FindByRef(bridge.Telegram, nativeID); err == nil && record != nil {
			chain = append(bridge.MessageChain{bridge.Reply(record.ID)}, chain...)
		}
	}

	logger.DebugCF("telegram", "received message", map[string]any{
		"sender":  displayName,
		"preview": utils.Truncate(message.Text, 50),
	})

	_, err = c.Handle().SendMessage(c.ctx, bridge.SaveForm{
		SenderID:       sender.ID,
		SenderName:     displayName,
		OriginPlatform: bridge.Telegram,
		OriginID:       strconv.Itoa(message.MessageID),
		Chain:          chain,
	}, bridgeCfg)
	if err != nil {
		logger.ErrorCF("telegram", "failed to relay message", map[string]any{"error": err.Error()})
	}
	return nil
}

// parseEntities splits message.Text/Caption using Telegram's own
// entity offsets, resolving "mention"/"text_mention" entities into
// SegmentAt and leaving the rest as plain text runs.
func (c *Channel) parseEntities(message *telego.Message) bridge.MessageChain {
	text := message.Text
	entities := message.Entities
	if text == "" {
		text = message.Caption
		entities = message.CaptionEntities
	}
	if text == "" {
		return nil
	}
	runes := []rune(text)

	var chain bridge.MessageChain
	last := 0
	for _, e := range entities {
		if e.Type != "mention" && e.Type != "text_mention" {
			continue
		}
		if e.Offset < last || e.Offset+e.Length > len(runes) {
			continue
		}
		if e.Offset > last {
			chain = append(chain, bridge.Plain(string(runes[last:e.Offset])))
		}

		var nativeID, displayText string
		if e.Type == "text_mention" && e.User != nil {
			nativeID = strconv.FormatInt(e.User.ID, 10)
			displayText = e.User.FirstName
		} else {
			displayText = strings.TrimPrefix(string(runes[e.Offset:e.Offset+e.Length]), "@")
			nativeID = displayText
		}
		if nativeID != "" {
			if user, err := c.Handle().ResolveUser(bridge.Telegram, nativeID, displayText); err == nil {
				chain = append(chain, bridge.At(user.ID))
			}
		}
		last = e.Offset + e.Length
	}
	if last < len(runes) {
		chain = append(chain, bridge.Plain(string(runes[last:])))
	}
	if len(chain) == 0 && text != "" {
		chain = append(chain, bridge.Plain(text))
	}
	return chain
}

func (c *Channel) downloadURL(ctx context.Context, fileID string) string {
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		logger.ErrorCF("telegram", "failed to get file", map[string]any{"error": err.Error()})
		return ""
	}
	if file.FilePath == "" {
		return ""
	}
	return c.bot.FileDownloadURL(file.FilePath)
}
