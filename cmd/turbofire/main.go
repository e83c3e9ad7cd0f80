// turbofire - global turbo-fire for held keys and mouse buttons
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"turbofire/internal/api"
	"turbofire/internal/autostart"
	"turbofire/internal/config"
	"turbofire/internal/hook"
	"turbofire/internal/input"
	"turbofire/internal/network"
	"turbofire/internal/osutils"
	"turbofire/internal/protocol"
	"turbofire/internal/tray"
	"turbofire/internal/turbo"
	"turbofire/internal/ui"
)

var (
	version     = "0.1.0"
	showVer     = flag.Bool("version", false, "Show version")
	configPath  = flag.String("config", "", "Path to the config file (.json, .yaml or .toml)")
	listKeys    = flag.Bool("list-keys", false, "List input names accepted by the other flags")
	triggerArg  = flag.String("trigger", "", "Trigger input to designate at startup (overrides config)")
	noTray      = flag.Bool("no-tray", false, "Run without the system tray icon")
	showStatus  = flag.Bool("status", false, "Print the state of a running instance")
	watch       = flag.Bool("watch", false, "Follow events from a running instance")
	designate   = flag.Bool("designate", false, "Ask a running instance to await a trigger designation")
	removeArg   = flag.String("remove", "", "Remove the binding for an input on a running instance")
	intervalArg = flag.String("interval", "", "Set a binding interval on a running instance (input=ms)")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("turbofire version %s\n", version)
		return
	}

	if *listKeys {
		printInputNames()
		return
	}

	cfgMgr, err := config.NewManager(*configPath)
	if err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}
	if err := cfgMgr.Load(); err != nil {
		log.Printf("Warning: failed to load config: %v", err)
	}

	if handled, err := runClientCommand(cfgMgr.Get()); handled {
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		return
	}

	runService(cfgMgr)
}

func printInputNames() {
	fmt.Println("Keyboard:")
	fmt.Printf("  %s\n", strings.Join(input.KeyNames(), " "))
	fmt.Println("Mouse:")
	fmt.Printf("  %s\n", strings.Join(input.ButtonNames(), " "))
}

// runClientCommand handles the flags that talk to an already running
// instance. It reports false when none of them was given.
func runClientCommand(cfg *config.Config) (bool, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.General.APIPort)
	client := network.NewClient(addr, cfg.General.APIToken)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch {
	case *designate:
		if err := client.Designate(ctx); err != nil {
			return true, err
		}
		fmt.Println("Waiting for trigger designation: press a key or mouse button.")
		return true, nil

	case *removeArg != "":
		if err := client.Remove(ctx, *removeArg); err != nil {
			return true, err
		}
		fmt.Printf("Removed %s\n", *removeArg)
		return true, nil

	case *intervalArg != "":
		name, value, ok := strings.Cut(*intervalArg, "=")
		if !ok {
			return true, fmt.Errorf("-interval expects input=ms, got %q", *intervalArg)
		}
		ms, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return true, fmt.Errorf("-interval: %w", err)
		}
		b, err := client.SetInterval(ctx, strings.TrimSpace(name), ms)
		if err != nil {
			return true, err
		}
		fmt.Printf("%s now repeats every %d ms\n", b.Input, b.IntervalMs)
		return true, nil

	case *showStatus:
		status, err := client.Status(ctx)
		if err != nil {
			return true, err
		}
		printStatus(status)
		return true, nil

	case *watch:
		cancel()
		runWatch(addr, cfg.General.APIToken)
		return true, nil
	}
	return false, nil
}

func printStatus(s protocol.SnapshotPayload) {
	trigger := s.Trigger
	if trigger == "" {
		trigger = "(none)"
	}
	fmt.Printf("Trigger: %s\n", trigger)
	if s.AwaitingDesignation {
		fmt.Println("Awaiting designation")
	}
	if len(s.Bindings) == 0 {
		fmt.Println("No bindings")
		return
	}
	fmt.Println("Bindings:")
	for _, b := range s.Bindings {
		state := "idle"
		if b.Running {
			state = "firing"
		}
		fmt.Printf("  %-20s %4d ms  %s\n", b.Input, b.IntervalMs, state)
	}
}

// runWatch prints every event from a running instance until interrupted.
func runWatch(addr, token string) {
	ws := network.NewWSClient(addr, token)
	ws.OnConnect = func() {
		log.Printf("Watch: Connected to %s", addr)
	}
	ws.OnMessage = func(msg protocol.Message) {
		if msg.Type == protocol.TypeSnapshot {
			var snap protocol.SnapshotPayload
			if err := protocol.DecodePayload(msg, &snap); err == nil {
				printStatus(snap)
				return
			}
		}
		payload, _ := json.Marshal(msg.Payload)
		fmt.Printf("%s %s %s\n", time.Now().Format("15:04:05.000"), msg.Type, payload)
	}
	ws.Start()
	defer ws.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

func runService(cfgMgr *config.Manager) {
	cfg := cfgMgr.Get()
	log.Printf("turbofire %s starting (config %s)", version, cfgMgr.Path())

	if warning := osutils.PrivilegeWarning(); warning != "" {
		log.Printf("Warning: %s", warning)
	}

	backend, err := input.NewBackend(input.BackendConfig{DevicePath: cfg.General.DevicePath})
	if err != nil {
		if errors.Is(err, input.ErrUnsupported) {
			log.Fatalf("Input backend not available on this platform: %v", err)
		}
		log.Fatalf("Failed to open input backend: %v", err)
	}
	defer backend.Close()

	engine := turbo.NewEngine(backend, backend, turbo.Options{
		DefaultIntervalMs: cfg.General.DefaultIntervalMs,
		KeyHold:           cfg.General.KeyHold(),
		Verbose:           cfg.General.VerboseLogging,
	})
	defer engine.Shutdown()

	startupTrigger := cfg.General.StartupTrigger
	if *triggerArg != "" {
		startupTrigger = *triggerArg
	}
	if startupTrigger != "" {
		in, err := input.Parse(startupTrigger)
		if err != nil {
			log.Fatalf("Invalid trigger %q: %v", startupTrigger, err)
		}
		engine.SetTrigger(in)
		log.Printf("Trigger: %s", in)
	} else {
		log.Printf("No trigger set. Use the tray menu or -designate to choose one.")
	}

	var dashboardURL string
	if cfg.General.APIEnabled {
		dashboardURL = fmt.Sprintf("http://127.0.0.1:%d/", cfg.General.APIPort)
		if cfg.General.APIToken != "" {
			dashboardURL += "?token=" + url.QueryEscape(cfg.General.APIToken)
		}
	}

	var t *tray.Tray
	stop := make(chan struct{})
	var stopOnce sync.Once
	quit := func() { stopOnce.Do(func() { close(stop) }) }

	// The tray listens before anything can change engine state.
	if cfg.General.TrayEnabled && !*noTray {
		actions := tray.Actions{
			Designate: func() { go engine.RequestDesignation() },
			Remove: func(in input.LogicalInput) {
				go func() {
					if err := engine.RemoveBinding(in); err != nil {
						log.Printf("Tray: remove %s: %v", in, err)
					}
				}()
			},
			RemoveAll: func() { go engine.RemoveAll() },
			Quit:      quit,
		}
		if dashboardURL != "" {
			actions.OpenDashboard = func() { ui.OpenBrowser(dashboardURL) }
		}
		t = tray.New(actions)
		engine.Attach(t, t.Sync)
	}

	var apiServer *api.Server
	if cfg.General.APIEnabled {
		apiServer = api.NewServer(engine, cfg.General.APIToken)
		dashboard := ui.NewHandler(cfgMgr)
		for _, pattern := range dashboard.Routes() {
			apiServer.Handle(pattern, dashboard)
		}
		go func() {
			if err := apiServer.Start(cfg.General.APIPort); err != nil {
				log.Printf("API server error: %v", err)
			}
		}()
	}

	hookMgr := hook.NewManager(engine, hook.WithDevicePath(cfg.General.DevicePath))
	if err := hookMgr.Start(); err != nil {
		log.Fatalf("Failed to start input hook: %v", err)
	}
	defer hookMgr.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := autostart.Apply(cfg.General.StartOnBoot); err != nil && !errors.Is(err, autostart.ErrUnsupported) {
		log.Printf("Warning: failed to update start on boot: %v", err)
	}
	watchSettings(cfgMgr, engine)
	cfgMgr.RegisterChangeCallback(func(c *config.Config) {
		if err := autostart.Apply(c.General.StartOnBoot); err != nil && !errors.Is(err, autostart.ErrUnsupported) {
			log.Printf("Warning: failed to update start on boot: %v", err)
		}
	})
	if err := cfgMgr.Watch(ctx); err != nil {
		log.Printf("Warning: config changes will not be picked up: %v", err)
	}

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			log.Println("Shutting down...")
			quit()
		case <-stop:
		}
		if t != nil {
			t.Stop()
		}
	}()

	log.Println("turbofire running. Press Ctrl+C to stop.")
	if t != nil {
		t.Run()
		quit()
	} else {
		<-stop
	}

	if apiServer != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 3*time.Second)
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API shutdown: %v", err)
		}
		cancelShutdown()
	}
	if n := hookMgr.Dropped(); n > 0 {
		log.Printf("Hook: %d input events were dropped", n)
	}
}

// settingsTarget is the part of the engine that follows config reloads.
type settingsTarget interface {
	ApplySettings(defaultIntervalMs int, keyHold time.Duration, verbose bool)
}

// watchSettings keeps the engine in step with config changes. The API, tray
// and input device settings only take effect on restart.
func watchSettings(cfgMgr *config.Manager, engine settingsTarget) {
	cfgMgr.RegisterChangeCallback(func(c *config.Config) {
		engine.ApplySettings(c.General.DefaultIntervalMs, c.General.KeyHold(), c.General.VerboseLogging)
		log.Printf("Config: applied default_interval_ms=%d key_hold_ms=%d verbose=%v start_on_boot=%v (API, tray and device settings apply on restart)",
			c.General.DefaultIntervalMs, c.General.KeyHoldMs, c.General.VerboseLogging, c.General.StartOnBoot)
	})
}
