package channels

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/picoclaw-bridge/bridge/pkg/bridge"
	"github.com/picoclaw-bridge/bridge/pkg/bridgecore"
	"github.com/picoclaw-bridge/bridge/pkg/config"
	"github.com/picoclaw-bridge/bridge/pkg/logger"
)

const (
	defaultRateLimit = 10 // msg/s, used when a platform has no override below
	maxRetries       = 3
	rateLimitDelay   = 1 * time.Second
	baseBackoff      = 500 * time.Millisecond
	maxBackoff       = 8 * time.Second
)

// channelRateConfig maps adapter name to a per-second outbound rate limit.
var channelRateConfig = map[string]float64{
	"telegram": 20,
	"discord":  1,
	"qq":       5,
	"cmd":      50,
}

// handleProvider is implemented by any Channel built on BaseChannel: it
// exposes the bridge handle and platform Manager needs to drive the
// adapter's own receive loop.
type handleProvider interface {
	Handle() *bridgecore.Handle
	Platform() bridge.Platform
}

type channelWorker struct {
	ch      Channel
	limiter *rate.Limiter
	done    chan struct{}
}

// Manager owns every registered adapter's lifecycle: starting/stopping
// the underlying transport and running the per-adapter worker that
// drains that adapter's bus handle with rate limiting, retry, and
// message splitting.
type Manager struct {
	core     *bridgecore.Core
	config   *config.Config
	channels map[string]Channel
	workers  map[string]*channelWorker
	cancel   context.CancelFunc
	mu       sync.RWMutex
}

// NewManager builds a Manager and initializes every adapter configured
// as enabled, via the factories platform subpackages register in init().
func NewManager(cfg *config.Config, core *bridgecore.Core) (*Manager, error) {
	m := &Manager{
		core:     core,
		config:   cfg,
		channels: make(map[string]Channel),
		workers:  make(map[string]*channelWorker),
	}
	m.initChannels()
	return m, nil
}

func (m *Manager) initChannel(name, displayName string) {
	f, ok := getFactory(name)
	if !ok {
		logger.WarnCF("channels", "Factory not registered", map[string]any{"channel": displayName})
		return
	}
	ch, err := f(m.config, m.core)
	if err != nil {
		logger.ErrorCF("channels", "Failed to initialize channel", map[string]any{
			"channel": displayName,
			"error":   err.Error(),
		})
		return
	}
	m.channels[name] = ch
	logger.InfoCF("channels", "Channel enabled", map[string]any{"channel": displayName})
}

func (m *Manager) initChannels() {
	logger.InfoC("channels", "Initializing channel manager")

	if m.config.Discord.Enabled && m.config.Discord.Token != "" {
		m.initChannel("discord", "Discord")
	}
	if m.config.Telegram.Enabled && m.config.Telegram.Token != "" {
		m.initChannel("telegram", "Telegram")
	}
	if m.config.QQ.Enabled {
		m.initChannel("qq", "QQ")
	}
	// The cmd pseudo-adapter has no transport config; it is always enabled.
	m.initChannel("cmd", "Cmd")

	logger.InfoCF("channels", "Channel initialization completed", map[string]any{
		"enabled_channels": len(m.channels),
	})
}

// StartAll starts every initialized adapter's transport and launches its
// worker goroutine.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.channels) == 0 {
		logger.WarnC("channels", "No channels enabled")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	for name, ch := range m.channels {
		if err := ch.Start(runCtx); err != nil {
			logger.ErrorCF("channels", "Failed to start channel", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
			continue
		}
		w := newChannelWorker(name, ch)
		m.workers[name] = w
		go m.runWorker(runCtx, name, w)
	}

	logger.InfoC("channels", "All channels started")
	return nil
}

// StopAll cancels every worker and stops every adapter's transport.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger.InfoC("channels", "Stopping all channels")

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	for _, w := range m.workers {
		<-w.done
	}

	for name, ch := range m.channels {
		if err := ch.Stop(ctx); err != nil {
			logger.ErrorCF("channels", "Error stopping channel", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}

	logger.InfoC("channels", "All channels stopped")
	return nil
}

func newChannelWorker(name string, ch Channel) *channelWorker {
	rateVal := defaultRateLimit
	if r, ok := channelRateConfig[name]; ok {
		rateVal = int(r)
	}
	burst := int(math.Max(1, math.Ceil(float64(rateVal)/2)))
	return &channelWorker{
		ch:      ch,
		limiter: rate.NewLimiter(rate.Limit(rateVal), burst),
		done:    make(chan struct{}),
	}
}

// runWorker drains this adapter's own bridge handle, filtering messages
// that shouldn't relay onto this platform, splitting oversized content,
// and sending with retry.
func (m *Manager) runWorker(ctx context.Context, name string, w *channelWorker) {
	defer close(w.done)

	hp, ok := w.ch.(handleProvider)
	if !ok {
		logger.ErrorCF("channels", "Channel does not expose a bridge handle, worker exiting", map[string]any{"channel": name})
		return
	}
	handle := hp.Handle()
	own := hp.Platform()

	for {
		msg, ok := handle.Recv(ctx)
		if !ok {
			return
		}
		if !ShouldRelay(msg, own) {
			continue
		}

		maxLen := 0
		if mlp, ok := w.ch.(MessageLengthProvider); ok {
			maxLen = mlp.MaxMessageLength()
		}

		// Splitting only applies to the common case of a single
		// over-length plain-text segment; mixed chains (mentions,
		// images, replies) are sent whole and left to the adapter to
		// truncate or reject if its platform demands it.
		if maxLen > 0 && len(msg.Chain) == 1 && msg.Chain[0].Kind == bridge.SegmentPlain &&
			len([]rune(msg.Chain[0].Text)) > maxLen {
			for _, chunk := range SplitMessage(msg.Chain[0].Text, maxLen) {
				chunkMsg := msg
				chunkMsg.Chain = bridge.MessageChain{bridge.Plain(chunk)}
				m.sendWithRetry(ctx, name, w, chunkMsg)
			}
			continue
		}

		m.sendWithRetry(ctx, name, w, msg)
	}
}

// sendWithRetry sends msg through the channel with rate limiting and
// retry logic. Errors are classified to determine the retry strategy:
//   - ErrNotRunning / ErrSendFailed: permanent, no retry
//   - ErrRateLimit: fixed-delay retry
//   - ErrTemporary / unknown: exponential backoff
func (m *Manager) sendWithRetry(ctx context.Context, name string, w *channelWorker, msg bridge.Message) {
	if err := w.limiter.Wait(ctx); err != nil {
		return
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = w.ch.Send(ctx, msg)
		if lastErr == nil {
			return
		}

		if errors.Is(lastErr, ErrNotRunning) || errors.Is(lastErr, ErrSendFailed) {
			break
		}
		if attempt == maxRetries {
			break
		}
		if errors.Is(lastErr, ErrRateLimit) {
			select {
			case <-time.After(rateLimitDelay):
				continue
			case <-ctx.Done():
				return
			}
		}

		backoff := min(time.Duration(float64(baseBackoff)*math.Pow(2, float64(attempt))), maxBackoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
	}

	logger.ErrorCF("channels", "Send failed", map[string]any{
		"channel": name,
		"error":   lastErr.Error(),
		"retries": maxRetries,
	})
}

func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

func (m *Manager) GetStatus() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := make(map[string]any, len(m.channels))
	for name, ch := range m.channels {
		status[name] = map[string]any{"running": ch.IsRunning()}
	}
	return status
}

func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}

// RegisterChannel registers an already-constructed channel directly,
// bypassing the factory registry. Used by tests; every adapter,
// including the always-on cmd pseudo-adapter, is otherwise created
// through its factory in initChannels.
func (m *Manager) RegisterChannel(name string, channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = channel
}

var errChannelNotFound = errors.New("channels: channel not found")

// SendTo looks up a running channel by name and sends msg through it
// directly, bypassing the worker queue. Intended for one-off sends
// (e.g. startup notices) rather than steady-state relay traffic.
func (m *Manager) SendTo(ctx context.Context, name string, msg bridge.Message) error {
	m.mu.RLock()
	ch, ok := m.channels[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", errChannelNotFound, name)
	}
	return ch.Send(ctx, msg)
}
