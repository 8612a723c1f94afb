package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"kiku/audio"
	"kiku/config"
	"kiku/controller"
	"kiku/log"
	"kiku/notify"
	"kiku/pending"
	"kiku/recorder"
	"kiku/uploader"
)

// lineSink prints session events as plain lines so the stdin driver and
// the integration test can assert on them.
type lineSink struct {
	settled chan struct{}
}

func (s *lineSink) Phase(p notify.Phase)      { fmt.Println("PHASE", p) }
func (s *lineSink) Elapsed(time.Duration)     {}
func (s *lineSink) Level(float64)             {}
func (s *lineSink) PendingCount(n int)        { fmt.Println("PENDING", n) }
func (s *lineSink) UploadProgress(f float64)  { fmt.Printf("UPLOAD %.1f\n", f) }
func (s *lineSink) DrainProgress(d, t int)    { fmt.Printf("DRAIN %d/%d\n", d, t) }
func (s *lineSink) DeviceLine(text string)    { fmt.Println("DEVICE", text) }

func (s *lineSink) Banner(k notify.BannerKind, text string) {
	fmt.Println("BANNER", k, text)
	select {
	case s.settled <- struct{}{}:
	default:
	}
}

// runTestMode drives the full pipeline headlessly over a fabricated
// capture backend. Commands on stdin: RECORD, STOP, DRAIN, SLEEP <ms>,
// WAIT (block until the next result banner), QUIT.
func runTestMode(cfg *config.Config, tz *time.Location) {
	fakeCtx := audio.NewSilentContext(time.Minute, true)
	defer fakeCtx.Close()

	engine := recorder.New(fakeCtx, cfg.CaptureRoot, nil)
	engine.SetRetentionDays(cfg.RetentionDays)
	defer engine.Close()

	deviceID := cfg.DeviceID
	if deviceID == "" {
		deviceID = "test-device"
	}
	userID := cfg.UserID
	if userID == "" {
		userID = "test-user"
	}

	store := pending.New(engine)
	sink := &lineSink{settled: make(chan struct{}, 1)}
	ctrl := controller.New(controller.Config{
		Engine:   engine,
		Uploader: uploader.New(cfg.ServerURL),
		Store:    store,
		Perms:    desktopPerms{root: cfg.CaptureRoot},
		Sink:     sink,
		UserID:   userID,
		DeviceID: deviceID,
		Timezone: tz,
	})
	ctrl.Run()
	if err := ctrl.RefreshPending(); err != nil {
		log.Warnf("pending refresh failed: %v", err)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch cmd {
		case "RECORD":
			if err := ctrl.Start(); err != nil {
				fmt.Println("ERR", err)
			}
		case "STOP":
			if err := ctrl.Stop(); err != nil {
				fmt.Println("ERR", err)
			}
		case "DRAIN":
			if err := ctrl.DrainQueue(); err != nil {
				fmt.Println("ERR", err)
			}
		case "WAIT":
			select {
			case <-sink.settled:
			case <-time.After(10 * time.Second):
				fmt.Println("ERR wait timed out")
			}
		case "QUIT":
			log.SessionEnd(store.Len())
			os.Exit(0)
		default:
			if strings.HasPrefix(cmd, "SLEEP ") {
				if ms, err := strconv.Atoi(cmd[6:]); err == nil {
					time.Sleep(time.Duration(ms) * time.Millisecond)
				}
			}
		}
	}
	log.SessionEnd(store.Len())
}
