// Package bridge holds the canonical message model shared by every
// adapter: the platform enum, the message chain, bridge channel
// mappings, and the persisted message/user records built on top of it.
package bridge

import (
	"fmt"
	"strings"
)

// Platform identifies which chat network a bridge user or message
// segment originates from. Values are a bitset so a single mapping
// can, in principle, be described as a combination of platforms.
type Platform uint64

const (
	Discord Platform = 1 << iota
	QQ
	Telegram
	Cmd
)

// Code returns the short uppercase code used in logs and in persisted
// records (e.g. "DC", "QQ").
func (p Platform) Code() string {
	switch p {
	case Discord:
		return "DC"
	case QQ:
		return "QQ"
	case Telegram:
		return "TG"
	case Cmd:
		return "CMD"
	default:
		return fmt.Sprintf("0x%x", uint64(p))
	}
}

func (p Platform) String() string { return p.Code() }

// MarshalJSON renders the platform as its short code.
func (p Platform) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.Code() + `"`), nil
}

// UnmarshalJSON accepts the short code, case-insensitively.
func (p *Platform) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParsePlatform(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ErrUnknownPlatform is returned by ParsePlatform for an unrecognized code.
type ErrUnknownPlatform struct{ Input string }

func (e *ErrUnknownPlatform) Error() string {
	return fmt.Sprintf("bridge: unknown platform %q", e.Input)
}

// ParsePlatform parses a platform code case-insensitively. It accepts
// both the short codes ("dc", "qq", "tg", "cmd") and the long names
// ("discord", "telegram").
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dc", "discord":
		return Discord, nil
	case "qq":
		return QQ, nil
	case "tg", "telegram":
		return Telegram, nil
	case "cmd":
		return Cmd, nil
	default:
		return 0, &ErrUnknownPlatform{Input: s}
	}
}
