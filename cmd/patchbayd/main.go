// patchbayd is the patch-bay daemon: it owns the host audio API
// binding, the Device Watcher, the Router/Engine, and exposes both
// over a patchrpc server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/agalue/patchbay/internal/config"
	"github.com/agalue/patchbay/internal/engine"
	"github.com/agalue/patchbay/internal/hostaudio"
	"github.com/agalue/patchbay/internal/patchrpc"
	"github.com/agalue/patchbay/internal/session"
	"github.com/agalue/patchbay/internal/watcher"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	log.Println("patchbayd starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	api, err := hostaudio.NewMalgoAPI()
	if err != nil {
		log.Fatalf("Failed to initialize host audio API: %v", err)
	}
	defer api.Close()

	eng := engine.New(api)

	devWatcher := watcher.New(api, time.Duration(cfg.DeviceWatchIntervalMs)*time.Millisecond)
	if err := devWatcher.Start(); err != nil {
		log.Fatalf("Failed to start device watcher: %v", err)
	}
	defer devWatcher.Stop()

	server := patchrpc.New(api, eng, cfg.DefaultSampleRate, cfg.DefaultBufferFrames)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		deviceEventLoop(ctx, devWatcher, eng, server, cfg.LogLevel)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
			log.Printf("patchrpc server stopped: %v", err)
		}
	}()

	if cfg.SessionConfigPath != "" {
		restoreSession(eng, cfg)
	}

	log.Printf("patchrpc listening on %s", cfg.ListenAddr)
	log.Println("Ready. Ctrl+C to quit.")

	<-sigChan
	log.Println("Shutting down...")

	eng.StopSession()
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Shutdown complete")
	case <-time.After(5 * time.Second):
		log.Println("Shutdown timeout, forcing exit")
	}
}

// deviceEventLoop drains the Device Watcher's event channel, forwards
// disconnect/reconnect reconciliation to the engine, and rebroadcasts
// every event to connected patchrpc clients. At config.LogDebug it also
// logs every event and a periodic stats line (SPEC_FULL.md §4.5).
func deviceEventLoop(ctx context.Context, w *watcher.Watcher, eng *engine.Engine, server *patchrpc.Server, level config.LogLevel) {
	var statsTick <-chan time.Time
	if level == config.LogDebug {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		statsTick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if level == config.LogDebug {
				log.Printf("[watcher] %s %s (%s)", ev.Kind, ev.UID, ev.Name)
			}
			eng.HandleDeviceEvent(ev)
			server.BroadcastDeviceEvent(ev)
		case <-statsTick:
			stats := eng.GetStats()
			log.Printf("[stats] routes=%d taps=%d units=%d underruns=%d overruns=%d bufferFill=%.2f",
				stats.Routes, stats.InputTaps, stats.OutputUnits, stats.Underruns, stats.Overruns, stats.BufferFill)
		}
	}
}

// restoreSession loads a saved session config and replays it against
// the engine: start the session, then re-add every route.
func restoreSession(eng *engine.Engine, cfg *config.Config) {
	saved, err := session.Load(cfg.SessionConfigPath)
	if err != nil {
		log.Printf("Failed to load session config %s: %v", cfg.SessionConfigPath, err)
		return
	}

	if _, err := eng.StartSession(saved.OutputDeviceUID, saved.SampleRate, saved.BufferFrames); err != nil {
		log.Printf("Failed to restore session on %s: %v", saved.OutputDeviceUID, err)
		return
	}

	for _, rc := range saved.Routes {
		if err := eng.AddRoute(rc.ToRouteSpec()); err != nil {
			log.Printf("Failed to restore route %s: %v", rc.ID, err)
		}
	}
}
