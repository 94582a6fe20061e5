package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/picoclaw-bridge/bridge/pkg/bridgecore"
	"github.com/picoclaw-bridge/bridge/pkg/bus"
	"github.com/picoclaw-bridge/bridge/pkg/channels"
	_ "github.com/picoclaw-bridge/bridge/pkg/channels/cmd"
	_ "github.com/picoclaw-bridge/bridge/pkg/channels/discord"
	_ "github.com/picoclaw-bridge/bridge/pkg/channels/qq"
	_ "github.com/picoclaw-bridge/bridge/pkg/channels/telegram"
	"github.com/picoclaw-bridge/bridge/pkg/config"
	"github.com/picoclaw-bridge/bridge/pkg/correlation"
	"github.com/picoclaw-bridge/bridge/pkg/identity"
	"github.com/picoclaw-bridge/bridge/pkg/logger"
	"github.com/picoclaw-bridge/bridge/pkg/media"
)

const dataDir = "data"

func runCmd(configPath string, debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("debug logging enabled")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	ids, err := identity.Open(filepath.Join(dataDir, "bridge_user.json"))
	if err != nil {
		return fmt.Errorf("error opening identity store: %w", err)
	}
	corr, err := correlation.Open(filepath.Join(dataDir, "bridge_message.json"))
	if err != nil {
		return fmt.Errorf("error opening correlation store: %w", err)
	}
	mediaCache, err := media.NewCache("cache")
	if err != nil {
		return fmt.Errorf("error opening media cache: %w", err)
	}

	core := bridgecore.New(bus.New(), ids, corr, mediaCache)

	manager, err := channels.NewManager(cfg, core)
	if err != nil {
		return fmt.Errorf("error creating channel manager: %w", err)
	}

	enabled := manager.GetEnabledChannels()
	if len(enabled) > 0 {
		fmt.Printf("channels enabled: %v\n", enabled)
	} else {
		fmt.Println("warning: no channels enabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.StartAll(ctx); err != nil {
		fmt.Printf("error starting channels: %v\n", err)
	}
	fmt.Println("bridge started, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nshutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := manager.StopAll(shutdownCtx); err != nil {
		fmt.Printf("error stopping channels: %v\n", err)
	}
	fmt.Println("bridge stopped")
	return nil
}
