package channels

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/picoclaw-bridge/bridge/pkg/bridge"
	"github.com/picoclaw-bridge/bridge/pkg/bridgecore"
	"github.com/picoclaw-bridge/bridge/pkg/bus"
	"github.com/picoclaw-bridge/bridge/pkg/correlation"
	"github.com/picoclaw-bridge/bridge/pkg/identity"
	"github.com/picoclaw-bridge/bridge/pkg/media"
)

func newTestCore(t *testing.T) *bridgecore.Core {
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

type fakeChannel struct {
	*BaseChannel
	mu       sync.Mutex
	received []bridge.Message
	sendErr  error
}

func newFakeChannel(name string, platform bridge.Platform, core *bridgecore.Core) *fakeChannel {
	handle, err := core.Register(name)
	if err != nil {
		panic(err)
	}
	return &fakeChannel{BaseChannel: NewBaseChannel(name, platform, handle, nil, WithMaxMessageLength(10))}
}

func (f *fakeChannel) Start(ctx context.Context) error { f.SetRunning(true); return nil }
func (f *fakeChannel) Stop(ctx context.Context) error  { f.SetRunning(false); return nil }
func (f *fakeChannel) Send(ctx context.Context, msg bridge.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.received = append(f.received, msg)
	return nil
}

func (f *fakeChannel) snapshot() []bridge.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bridge.Message, len(f.received))
	copy(out, f.received)
	return out
}

func TestManagerRelaysBetweenTwoAdapters(t *testing.T) {
	core := newTestCore(t)
	m := &Manager{core: core, channels: map[string]Channel{}, workers: map[string]*channelWorker{}}

	discord := newFakeChannel("discord", bridge.Discord, core)
	qq := newFakeChannel("qq", bridge.QQ, core)
	m.RegisterChannel("discord", discord)
	m.RegisterChannel("qq", qq)

	require.NoError(t, m.StartAll(context.Background()))
	defer m.StopAll(context.Background())

	_, err := discord.Handle().SendMessage(context.Background(), bridge.SaveForm{
		SenderID:       "u1",
		OriginPlatform: bridge.Discord,
		OriginID:       "111",
		Chain:          bridge.MessageChain{bridge.Plain("hi")},
	}, bridge.BridgeConfig{Name: "test"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(qq.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	require.Empty(t, discord.snapshot())
}

func TestManagerSuppressesCommandRelay(t *testing.T) {
	core := newTestCore(t)
	m := &Manager{core: core, channels: map[string]Channel{}, workers: map[string]*channelWorker{}}

	discord := newFakeChannel("discord", bridge.Discord, core)
	qq := newFakeChannel("qq", bridge.QQ, core)
	m.RegisterChannel("discord", discord)
	m.RegisterChannel("qq", qq)

	require.NoError(t, m.StartAll(context.Background()))
	defer m.StopAll(context.Background())

	_, err := discord.Handle().SendMessage(context.Background(), bridge.SaveForm{
		SenderID:       "u1",
		OriginPlatform: bridge.Discord,
		OriginID:       "111",
		Chain:          bridge.MessageChain{bridge.Plain("!bind")},
	}, bridge.BridgeConfig{Name: "test"})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	require.Empty(t, qq.snapshot())
}

func TestManagerSplitsOversizedPlainText(t *testing.T) {
	core := newTestCore(t)
	m := &Manager{core: core, channels: map[string]Channel{}, workers: map[string]*channelWorker{}}

	discord := newFakeChannel("discord", bridge.Discord, core)
	qq := newFakeChannel("qq", bridge.QQ, core)
	m.RegisterChannel("discord", discord)
	m.RegisterChannel("qq", qq)

	require.NoError(t, m.StartAll(context.Background()))
	defer m.StopAll(context.Background())

	_, err := discord.Handle().SendMessage(context.Background(), bridge.SaveForm{
		SenderID:       "u1",
		OriginPlatform: bridge.Discord,
		OriginID:       "111",
		Chain:          bridge.MessageChain{bridge.Plain("this text is definitely longer than ten runes")},
	}, bridge.BridgeConfig{Name: "test"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(qq.snapshot()) > 1 }, time.Second, 5*time.Millisecond)
}

func TestManagerTargetedFeedbackOnlyRendersOnTargetPlatform(t *testing.T) {
	core := newTestCore(t)
	m := &Manager{core: core, channels: map[string]Channel{}, workers: map[string]*channelWorker{}}

	discord := newFakeChannel("discord", bridge.Discord, core)
	cmd := newFakeChannel("cmd", bridge.Cmd, core)
	m.RegisterChannel("discord", discord)
	m.RegisterChannel("cmd", cmd)

	require.NoError(t, m.StartAll(context.Background()))
	defer m.StopAll(context.Background())

	cmd.Handle().SendFeedback(context.Background(), bridge.BridgeConfig{Name: "test"}, bridge.Discord,
		bridge.MessageChain{bridge.Plain("done")})

	require.Eventually(t, func() bool { return len(discord.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
}
