package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/caarlos0/env/v11"

	"github.com/picoclaw-bridge/bridge/pkg/bridge"
	"github.com/picoclaw-bridge/bridge/pkg/fileutil"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers, so an
// allow-list can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// FlexibleUint64 accepts a JSON number or a quoted numeric string, so
// operators pasting a group/channel ID don't need to worry about which
// JSON type it should be.
type FlexibleUint64 uint64

func (f *FlexibleUint64) UnmarshalJSON(data []byte) error {
	var n uint64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexibleUint64(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return err
	}
	*f = FlexibleUint64(n)
	return nil
}

func (f FlexibleUint64) MarshalJSON() ([]byte, error) { return json.Marshal(uint64(f)) }

// FlexibleInt64 is FlexibleUint64's signed counterpart, used for Telegram
// group/chat IDs (which are negative for supergroups).
type FlexibleInt64 int64

func (f *FlexibleInt64) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexibleInt64(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*f = FlexibleInt64(n)
	return nil
}

func (f FlexibleInt64) MarshalJSON() ([]byte, error) { return json.Marshal(int64(f)) }

// Config is the top-level process configuration, loaded from config.json
// and overridable per-field by environment variables.
type Config struct {
	PrintQR        bool              `json:"printQR,omitempty"`
	Discord        DiscordConfig     `json:"discordConfig"`
	Telegram       TelegramConfig    `json:"telegramConfig"`
	QQ             QQConfig          `json:"qqConfig"`
	Bridges        []BridgeDef       `json:"bridges"`
	CommandAliases map[string]string `json:"commandAliases,omitempty"`
}

type DiscordConfig struct {
	Enabled   bool                `json:"enabled"   env:"BRIDGE_DISCORD_ENABLED"`
	Token     string              `json:"token"     env:"BRIDGE_DISCORD_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allowFrom" env:"BRIDGE_DISCORD_ALLOW_FROM"`
}

type TelegramConfig struct {
	Enabled   bool                `json:"enabled"   env:"BRIDGE_TELEGRAM_ENABLED"`
	Token     string              `json:"token"     env:"BRIDGE_TELEGRAM_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allowFrom" env:"BRIDGE_TELEGRAM_ALLOW_FROM"`
}

// QQConfig models the legacy mirai-http login surface (botId/password/
// version/auth) as documented external config, extended with appId/
// appSecret so the botgo-backed adapter has real OAuth2 credentials to
// authenticate with — see DESIGN.md for the adaptation rationale.
type QQConfig struct {
	Enabled   bool                `json:"enabled"   env:"BRIDGE_QQ_ENABLED"`
	BotID     uint64              `json:"botId,omitempty"`
	Password  string              `json:"password,omitempty"`
	Version   int                 `json:"version,omitempty"`
	Auth      int                 `json:"auth,omitempty"`
	AppID     string              `json:"appId"     env:"BRIDGE_QQ_APP_ID"`
	AppSecret string              `json:"appSecret" env:"BRIDGE_QQ_APP_SECRET"`
	AllowFrom FlexibleStringSlice `json:"allowFrom" env:"BRIDGE_QQ_ALLOW_FROM"`
}

// DiscordTargetDef is the JSON shape of a bridge mapping's Discord side.
type DiscordTargetDef struct {
	ChannelID    string `json:"channelId,omitempty"`
	WebhookID    string `json:"webhookId,omitempty"`
	WebhookToken string `json:"webhookToken,omitempty"`
}

// BridgeDef is one configured mapping between platform-native chats that
// should be kept in sync.
type BridgeDef struct {
	Name    string           `json:"name"`
	Enabled bool             `json:"enable"`
	Discord DiscordTargetDef `json:"discord,omitempty"`
	QQGroup FlexibleUint64   `json:"qqGroup,omitempty"`
	TGGroup FlexibleInt64    `json:"tgGroup,omitempty"`
}

// ToBridgeConfig converts the JSON definition into the canonical-model
// type carried on the bus.
func (b BridgeDef) ToBridgeConfig() bridge.BridgeConfig {
	return bridge.BridgeConfig{
		Name:    b.Name,
		Enabled: b.Enabled,
		Discord: bridge.DiscordTarget{
			ChannelID: b.Discord.ChannelID,
			WebhookID: b.Discord.WebhookID,
			Webhook:   b.Discord.WebhookToken,
		},
		QQGroup: uint64(b.QQGroup),
		TGGroup: int64(b.TGGroup),
	}
}

// ResolveBridge finds the enabled bridge mapping whose platform side
// matches originID, so an adapter that just received a native message
// can look up which mapping (and therefore which other platforms) it
// belongs to.
func (c *Config) ResolveBridge(platform bridge.Platform, originID string) (bridge.BridgeConfig, bool) {
	for _, def := range c.Bridges {
		if !def.Enabled {
			continue
		}
		var match bool
		switch platform {
		case bridge.Discord:
			match = def.Discord.ChannelID == originID
		case bridge.QQ:
			match = strconv.FormatUint(uint64(def.QQGroup), 10) == originID
		case bridge.Telegram:
			match = strconv.FormatInt(int64(def.TGGroup), 10) == originID
		}
		if match {
			return def.ToBridgeConfig(), true
		}
	}
	return bridge.BridgeConfig{}, false
}

// LoadConfig reads config.json at path, falling back to DefaultConfig if
// the file does not exist, then overlays any environment variables the
// struct tags name.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if perr := env.Parse(cfg); perr != nil {
				return nil, perr
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig atomically writes cfg to path as indented JSON.
func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(path, data, 0o600)
}
