package bridgecmd

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/picoclaw-bridge/bridge/pkg/bridge"
	"github.com/picoclaw-bridge/bridge/pkg/identity"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *identity.Store) {
	t.Helper()
	ids, err := identity.Open(filepath.Join(t.TempDir(), "bridge_user.json"))
	require.NoError(t, err)
	return NewDispatcher(ids, map[string]string{"绑定": "bind"}), ids
}

func plainMsg(senderID, text string) bridge.Message {
	return bridge.Message{SenderID: senderID, Chain: bridge.MessageChain{bridge.Plain(text)}}
}

func plainMsgFrom(senderID string, platform bridge.Platform, text string) bridge.Message {
	msg := plainMsg(senderID, text)
	msg.OriginPlatform = platform
	return msg
}

func TestIsCommandRequiresLeadingBang(t *testing.T) {
	require.True(t, IsCommand(plainMsg("u1", "!help")))
	require.False(t, IsCommand(plainMsg("u1", "hello")))
}

func TestFullBindFlow(t *testing.T) {
	d, ids := newTestDispatcher(t)

	applicant, err := ids.Create(bridge.Discord, "111", "Alice")
	require.NoError(t, err)
	responder, err := ids.Create(bridge.QQ, "222", "Bob")
	require.NoError(t, err)

	reply, handled := d.Handle(plainMsgFrom(applicant.ID, bridge.Discord, "!bind"))
	require.True(t, handled)
	require.Contains(t, reply, "口令")

	token := extractToken(reply)
	require.Len(t, token, 6)

	reply, handled = d.Handle(plainMsgFrom(responder.ID, bridge.QQ, "!bind "+token))
	require.True(t, handled)
	require.Contains(t, reply, "已记录您的回应")

	reply, handled = d.Handle(plainMsg(applicant.ID, "!confirm-bind"))
	require.True(t, handled)
	require.Equal(t, "关联成功！", reply)

	a, _ := ids.Get(applicant.ID)
	b, _ := ids.Get(responder.ID)
	require.NotNil(t, a.RefID)
	require.NotNil(t, b.RefID)
	require.Equal(t, *a.RefID, *b.RefID)
}

func TestAliasResolvesToCanonicalCommand(t *testing.T) {
	d, ids := newTestDispatcher(t)
	applicant, err := ids.Create(bridge.Discord, "111", "Alice")
	require.NoError(t, err)

	reply, handled := d.Handle(plainMsg(applicant.ID, "!绑定"))
	require.True(t, handled)
	require.Contains(t, reply, "口令")
}

func TestConfirmBindWithoutApplyFails(t *testing.T) {
	d, ids := newTestDispatcher(t)
	applicant, err := ids.Create(bridge.Discord, "111", "Alice")
	require.NoError(t, err)

	reply, handled := d.Handle(plainMsg(applicant.ID, "!confirm-bind"))
	require.True(t, handled)
	require.Equal(t, ErrNoApply.Error(), reply)
}

func TestSelfReferenceRejected(t *testing.T) {
	d, ids := newTestDispatcher(t)
	applicant, err := ids.Create(bridge.Discord, "111", "Alice")
	require.NoError(t, err)

	reply, _ := d.Handle(plainMsg(applicant.ID, "!bind"))
	token := extractToken(reply)

	reply, _ = d.Handle(plainMsg(applicant.ID, "!bind "+token))
	require.Equal(t, ErrSelfReference.Error(), reply)
}

func TestUnbindWithNoLinkIsNoOp(t *testing.T) {
	d, ids := newTestDispatcher(t)
	user, err := ids.Create(bridge.Discord, "111", "Alice")
	require.NoError(t, err)

	reply, handled := d.Handle(plainMsg(user.ID, "!unbind qq"))
	require.True(t, handled)
	require.Equal(t, "已解除关联。", reply)
}

func extractToken(reply string) string {
	lines := strings.Split(reply, "\n")
	idx := strings.Index(lines[0], "：")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(lines[0][idx+len("："):])
}
