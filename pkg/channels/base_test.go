package channels

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/picoclaw-bridge/bridge/pkg/bridge"
)

func TestIsAllowedEmptyListPermitsEveryone(t *testing.T) {
	bc := NewBaseChannel("discord", bridge.Discord, nil, nil)
	require.True(t, bc.IsAllowed("anyone"))
}

func TestIsAllowedRespectsList(t *testing.T) {
	bc := NewBaseChannel("discord", bridge.Discord, nil, []string{"@alice", "123"})
	require.True(t, bc.IsAllowed("alice"))
	require.True(t, bc.IsAllowed("123"))
	require.False(t, bc.IsAllowed("bob"))
}

func TestShouldRelayTargetedFeedback(t *testing.T) {
	target := bridge.Discord
	msg := bridge.Message{TargetPlatform: &target}
	require.True(t, ShouldRelay(msg, bridge.Discord))
	require.False(t, ShouldRelay(msg, bridge.QQ))
}

func TestShouldRelaySuppressesCommandText(t *testing.T) {
	msg := bridge.Message{Chain: bridge.MessageChain{bridge.Plain("!bind")}}
	require.False(t, ShouldRelay(msg, bridge.Discord))

	msg = bridge.Message{Chain: bridge.MessageChain{bridge.Plain("hello")}}
	require.True(t, ShouldRelay(msg, bridge.Discord))
}

func TestRunningFlag(t *testing.T) {
	bc := NewBaseChannel("discord", bridge.Discord, nil, nil)
	require.False(t, bc.IsRunning())
	bc.SetRunning(true)
	require.True(t, bc.IsRunning())
}
