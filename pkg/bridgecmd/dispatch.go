// Package bridgecmd implements the bind/unbind command subsystem: the
// tokenizer, the command table (with operator-configurable aliases),
// and the bind-session state machine used to link bridge users across
// platforms.
package bridgecmd

import (
	"fmt"
	"strings"

	"github.com/picoclaw-bridge/bridge/pkg/bridge"
	"github.com/picoclaw-bridge/bridge/pkg/identity"
)

const prefix = "!"

// Dispatcher recognizes and executes bind-protocol commands found in
// inbound canonical messages.
type Dispatcher struct {
	Identity *identity.Store
	Sessions *SessionTable
	// Aliases maps an operator-configured alias (e.g. a Chinese command
	// name) to the canonical keyword it should dispatch as.
	Aliases map[string]string
}

// NewDispatcher builds a Dispatcher over the given stores with aliases
// loaded from configuration (may be nil/empty).
func NewDispatcher(ids *identity.Store, aliases map[string]string) *Dispatcher {
	return &Dispatcher{
		Identity: ids,
		Sessions: NewSessionTable(),
		Aliases:  aliases,
	}
}

// IsCommand reports whether msg's first plain-text segment looks like a
// command invocation.
func IsCommand(msg bridge.Message) bool {
	text, ok := firstPlainText(msg)
	return ok && strings.HasPrefix(text, prefix)
}

func firstPlainText(msg bridge.Message) (string, bool) {
	for _, seg := range msg.Chain {
		if seg.Kind == bridge.SegmentPlain {
			return seg.Text, true
		}
	}
	return "", false
}

// Handle executes the command in msg, if any, and returns the feedback
// text to publish back to the originating channel. handled is false if
// msg was not a recognized command invocation at all (IsCommand was
// false, or nothing follows the "!"), in which case reply is always empty.
func (d *Dispatcher) Handle(msg bridge.Message) (reply string, handled bool) {
	text, ok := firstPlainText(msg)
	if !ok || !strings.HasPrefix(text, prefix) {
		return "", false
	}

	fields := strings.Fields(strings.TrimPrefix(text, prefix))
	if len(fields) == 0 {
		return "", false
	}

	keyword := d.resolveAlias(fields[0])
	args := fields[1:]

	switch keyword {
	case "help":
		return helpText, true
	case "bind":
		return d.handleBind(msg.SenderID, msg.OriginPlatform, args), true
	case "confirm-bind":
		return d.handleConfirmBind(msg.SenderID), true
	case "unbind":
		return d.handleUnbind(msg.SenderID, args), true
	default:
		return fmt.Sprintf("未知指令：%s", fields[0]), true
	}
}

func (d *Dispatcher) resolveAlias(keyword string) string {
	if canonical, ok := d.Aliases[keyword]; ok {
		return canonical
	}
	return keyword
}

const helpText = "可用指令：\n" +
	"!bind — 生成一个关联口令\n" +
	"!bind <口令> — 使用对方给出的口令回应关联申请\n" +
	"!confirm-bind — 确认关联申请\n" +
	"!unbind <平台> — 解除与指定平台账户的关联"

func (d *Dispatcher) handleBind(applicantID string, platform bridge.Platform, args []string) string {
	if len(args) == 0 {
		token := d.Sessions.CreateSession(applicantID, platform)
		return fmt.Sprintf("口令：%s\n请在对方平台发送 !bind %s 以回应关联申请。", token, token)
	}

	err := d.Sessions.RespondToSession(args[0], applicantID, platform, d.isBound)
	if err != nil {
		return err.Error()
	}
	return "已记录您的回应，请原申请者发送 !confirm-bind 完成关联。"
}

func (d *Dispatcher) handleConfirmBind(applicantID string) string {
	if err := ConfirmBind(d.Sessions, d.Identity, applicantID); err != nil {
		return err.Error()
	}
	return "关联成功！"
}

func (d *Dispatcher) handleUnbind(userID string, args []string) string {
	if len(args) == 0 {
		return "用法：!unbind <平台>"
	}
	platform, err := bridge.ParsePlatform(args[0])
	if err != nil {
		return fmt.Sprintf("未知平台：%s", args[0])
	}
	if err := Unbind(d.Identity, userID, platform); err != nil {
		return err.Error()
	}
	return "已解除关联。"
}

func (d *Dispatcher) isBound(a, b string) bool {
	userA, ok := d.Identity.Get(a)
	if !ok || userA.RefID == nil {
		return false
	}
	userB, ok := d.Identity.Get(b)
	if !ok || userB.RefID == nil {
		return false
	}
	return *userA.RefID == *userB.RefID
}
