package channels

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/picoclaw-bridge/bridge/pkg/bridge"
	"github.com/picoclaw-bridge/bridge/pkg/bridgecore"
	"github.com/picoclaw-bridge/bridge/pkg/bus"
	"github.com/picoclaw-bridge/bridge/pkg/correlation"
	"github.com/picoclaw-bridge/bridge/pkg/identity"
	"github.com/picoclaw-bridge/bridge/pkg/media"
)

func newRenderTestCore(t *testing.T) *bridgecore.Core {
	t.Helper()
	dir := t.TempDir()
	ids, err := identity.Open(filepath.Join(dir, "bridge_user.json"))
	require.NoError(t, err)
	corr, err := correlation.Open(filepath.Join(dir, "bridge_message.json"))
	require.NoError(t, err)
	cache, err := media.NewCache(filepath.Join(dir, "cache"))
	require.NoError(t, err)
	return bridgecore.New(bus.New(), ids, corr, cache)
}

func discordMention(user *bridge.User, nativeID string) string {
	if nativeID == "" {
		return "@" + user.DisplayText
	}
	return "<@" + nativeID + ">"
}

func TestRenderSubstitutesBoundMention(t *testing.T) {
	core := newRenderTestCore(t)
	handle, err := core.Register("discord")
	require.NoError(t, err)

	qqUser, err := core.Identity.Create(bridge.QQ, "111", "小明")
	require.NoError(t, err)
	discordUser, err := core.Identity.Create(bridge.Discord, "222", "Ming")
	require.NoError(t, err)
	ref := "shared-ref"
	qqUser.RefID = &ref
	discordUser.RefID = &ref
	_, err = core.Identity.BatchUpdate(qqUser, discordUser)
	require.NoError(t, err)

	chain := bridge.MessageChain{bridge.Plain("hi "), bridge.At(qqUser.ID), bridge.Plain("!")}
	rendered := Render(handle, bridge.Discord, chain, discordMention, "@everyone")
	require.Equal(t, "hi <@222>!", rendered.Text)
}

func TestRenderFallsBackWhenUnbound(t *testing.T) {
	core := newRenderTestCore(t)
	handle, err := core.Register("discord")
	require.NoError(t, err)

	qqUser, err := core.Identity.Create(bridge.QQ, "111", "小明")
	require.NoError(t, err)

	chain := bridge.MessageChain{bridge.At(qqUser.ID)}
	rendered := Render(handle, bridge.Discord, chain, discordMention, "@everyone")
	require.Equal(t, "@小明", rendered.Text)
}

func TestRenderSeparatesImagesAndReply(t *testing.T) {
	core := newRenderTestCore(t)
	handle, err := core.Register("discord")
	require.NoError(t, err)

	chain := bridge.MessageChain{
		bridge.Reply("bridge-msg-1"),
		bridge.Plain("look at this"),
		bridge.ImageFromURL("https://example.com/a.png"),
	}
	rendered := Render(handle, bridge.Discord, chain, discordMention, "@everyone")
	require.Equal(t, "look at this", rendered.Text)
	require.True(t, rendered.HasReply)
	require.Equal(t, "bridge-msg-1", rendered.ReplyTo)
	require.Len(t, rendered.Images, 1)
	require.Equal(t, "https://example.com/a.png", rendered.Images[0].ImageURL)
}

func TestRenderAtAllUsesEveryoneText(t *testing.T) {
	core := newRenderTestCore(t)
	handle, err := core.Register("discord")
	require.NoError(t, err)

	chain := bridge.MessageChain{bridge.AtAll()}
	rendered := Render(handle, bridge.Discord, chain, discordMention, "@everyone")
	require.Equal(t, "@everyone", rendered.Text)
}
