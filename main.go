package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"kiku/audio"
	"kiku/config"
	"kiku/controller"
	"kiku/hotkey"
	"kiku/log"
	"kiku/notify"
	"kiku/pending"
	"kiku/recorder"
	"kiku/shutdown"
	"kiku/uploader"
)

var version = "dev"

var shutdownOnce sync.Once

// desktopPerms maps the controller's permission surface onto the desktop
// reality: storage is probed with a real write, and microphone access is
// mediated by the OS at device-open time, so it reports granted here and
// denial surfaces as a capture-open error instead.
type desktopPerms struct {
	root string
}

func (p desktopPerms) CanWrite() bool {
	if err := os.MkdirAll(p.root, 0755); err != nil {
		return false
	}
	probe := filepath.Join(p.root, ".write_probe")
	if err := os.WriteFile(probe, nil, 0644); err != nil {
		return false
	}
	os.Remove(probe)
	return true
}

func (p desktopPerms) Microphone() controller.MicPermission { return controller.MicGranted }
func (p desktopPerms) RequestMicrophone() controller.MicPermission {
	return controller.MicGranted
}

func gracefulShutdown(ctrl *controller.Controller, engine *recorder.Engine, store *pending.Store) {
	shutdownOnce.Do(func() {
		ctrl.Stop()
		// Give the final completion event a moment to settle before the
		// consumers go away.
		time.Sleep(200 * time.Millisecond)
		ctrl.Close()
		engine.Close()
		log.SessionEnd(store.Len())
		log.Close()
		tuiMu.Lock()
		p := tuiProgram
		tuiMu.Unlock()
		if p != nil {
			p.Quit()
		}
		os.Exit(0)
	})
}

// runDoctor prints what a support ticket needs: whether the global
// hotkey can attach and which capture devices are visible.
func runDoctor() {
	if msg, err := hotkey.Diagnose(); err != nil {
		fmt.Printf("hotkey:     FAIL  %v\n", err)
	} else {
		fmt.Printf("hotkey:     ok    %s\n", msg)
	}

	ctx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("microphone: FAIL  %v\n", err)
		return
	}
	defer ctx.Close()

	devices, err := ctx.Devices()
	if err != nil {
		fmt.Printf("microphone: FAIL  %v\n", err)
		return
	}
	fmt.Printf("microphone: ok    %d capture device(s)\n", len(devices))
	for _, d := range devices {
		name := d.Name
		if audio.IsBluetooth(name) {
			name += " (BT)"
		}
		fmt.Println("  -", name)
	}
}

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return name + suffix
}

func run() {
	configFlag := flag.String("config", "", "Config file path (default: OS config dir)")
	rootFlag := flag.String("root", "", "Capture root directory")
	serverFlag := flag.String("server", "", "Upload server base URL")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	setupFlag := flag.Bool("setup", false, "Select microphone device interactively")
	logPathFlag := flag.String("logpath", "", "Log directory path (default: OS-specific location)")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	doctorFlag := flag.Bool("doctor", false, "Check hotkey and microphone access, then exit")
	testFlag := flag.Bool("test", false, "Test mode (headless, stdin-driven)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("kiku %s\n", version)
		os.Exit(0)
	}

	if *doctorFlag {
		runDoctor()
		os.Exit(0)
	}

	// Resolve log directory early
	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	configPath := *configFlag
	if configPath == "" {
		configPath, err = config.Path()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *serverFlag != "" {
		cfg.ServerURL = *serverFlag
	}
	if *rootFlag != "" {
		cfg.CaptureRoot = *rootFlag
	}
	if *deviceFlag != "" {
		cfg.InputDevice = *deviceFlag
	}

	tz, err := cfg.Location()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	log.SessionStart(cfg.DeviceID, cfg.ServerURL)

	if *testFlag {
		runTestMode(cfg, tz)
		return
	}

	ctx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio context: %v\n", err)
		os.Exit(1)
	}
	defer ctx.Close()

	if *setupFlag {
		dev, err := audio.SelectDevice(ctx, cfg.InputDevice)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: device selection failed: %v\n", err)
		} else {
			cfg.InputDevice = dev.Name
			if err := cfg.Save(configPath); err != nil {
				log.Warnf("saving config: %v", err)
			}
		}
	}

	var selectedDevice *audio.DeviceInfo
	if cfg.InputDevice != "" {
		if devices, err := ctx.Devices(); err == nil {
			for i := range devices {
				if devices[i].Name == cfg.InputDevice {
					selectedDevice = &devices[i]
					break
				}
			}
		}
		if selectedDevice == nil {
			log.Warnf("configured device %q not found, using default", cfg.InputDevice)
		}
	}

	engine := recorder.New(ctx, cfg.CaptureRoot, selectedDevice)
	engine.SetRetentionDays(cfg.RetentionDays)
	defer engine.Close()

	client := uploader.New(cfg.ServerURL)
	go func() {
		if d := client.Warm(); d > 0 {
			log.Infof("connection warmed, tls %dms", d.Milliseconds())
		}
	}()

	store := pending.New(engine)

	ctrl := controller.New(controller.Config{
		Engine:   engine,
		Uploader: client,
		Store:    store,
		Perms:    desktopPerms{root: cfg.CaptureRoot},
		Sink:     tuiSink{},
		UserID:   cfg.UserID,
		DeviceID: cfg.DeviceID,
		Timezone: tz,
	})
	ctrl.Run()
	if err := ctrl.RefreshPending(); err != nil {
		log.Warnf("pending refresh failed: %v", err)
	}

	actions := make(chan uiAction, 4)
	tuiMu.Lock()
	tuiProgram = NewTUIProgram(actions)
	tuiMu.Unlock()

	go func() {
		if _, err := tuiProgram.Run(); err != nil {
			log.Errorf("TUI error: %v", err)
			os.Exit(1)
		}
		gracefulShutdown(ctrl, engine, store)
	}()

	tuiSend(DeviceLineMsg{Text: deviceLineText(selectedDevice)})
	tuiSend(PendingMsg{Count: store.Len()})

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		gracefulShutdown(ctrl, engine, store)
	}()

	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		// TUI keys still work without the global hotkey.
		log.Errorf("hotkey register error: %v", err)
		tuiSend(BannerMsg{Kind: notify.BannerWarning, Text: "global hotkey unavailable: " + err.Error()})
	} else {
		defer hk.Unregister()
	}

	toggle := func() {
		if ctrl.Snapshot().Phase == notify.PhaseRecording {
			if err := ctrl.Stop(); err != nil {
				log.Errorf("stop error: %v", err)
			}
			return
		}
		go func() {
			if err := ctrl.Start(); err != nil {
				tuiSend(BannerMsg{Kind: notify.BannerError, Text: ctrl.Snapshot().LastError})
			}
		}()
	}

	for {
		select {
		case <-hk.Toggle():
			toggle()
		case a := <-actions:
			switch a {
			case actionToggle:
				toggle()
			case actionDrain:
				go func() {
					if err := ctrl.DrainQueue(); err != nil {
						log.Warnf("drain: %v", err)
					}
				}()
			}
		}
	}
}

func main() {
	run()
}
