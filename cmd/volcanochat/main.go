package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/s0s0/VolcanoChat/app"
	"github.com/s0s0/VolcanoChat/clipboard"
	"github.com/s0s0/VolcanoChat/config"
	"github.com/s0s0/VolcanoChat/logutil"
	"github.com/s0s0/VolcanoChat/permission"
	"github.com/s0s0/VolcanoChat/screenshot"
	"github.com/s0s0/VolcanoChat/singleinstance"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup logging
	logutil.Setup(cfg.EnableFileLogging)

	// ---------- SINGLE-INSTANCE ----------
	lock, err := singleinstance.Acquire()
	if err != nil {
		if errors.Is(err, singleinstance.ErrAlreadyRunning) {
			fmt.Println("VolcanoChat is already running")
			os.Exit(1)
		}
		log.Fatalf("Failed to acquire instance lock: %v", err)
	}
	defer lock.Release()
	// -------------------------------------

	// Validate configuration
	if cfg.APIKey == "" {
		log.Fatalf("VOLCANOCHAT_API_KEY is required. Please set it in your .env file.")
	}
	if cfg.Model == "" {
		log.Fatalf("MODEL is required. Please set it in your .env file.")
	}
	log.Printf("API key: %s", logutil.RedactKey(cfg.APIKey))

	if err := clipboard.Init(); err != nil {
		log.Fatalf("Failed to initialize clipboard: %v", err)
	}

	// Warm up the permission prompts at launch rather than mid-flow. The
	// first capture or recording re-checks and explains any denial.
	gate := permission.System{}
	for _, k := range []permission.Kind{permission.InputMonitoring, permission.ScreenCapture, permission.Microphone} {
		if !gate.Check(k) {
			log.Printf("Permission %s not yet granted, requesting", k)
			gate.Request(k)
		}
	}

	if vb, err := screenshot.VirtualBounds(); err != nil {
		log.Printf("Display enumeration failed: %v", err)
	} else {
		log.Printf("Virtual desktop: %dx%d at (%d,%d)", vb.Dx(), vb.Dy(), vb.Min.X, vb.Min.Y)
	}

	log.Printf("VolcanoChat initialized")
	log.Printf("Using model: %s", cfg.Model)
	log.Printf("Screenshot hotkey: %s", cfg.ScreenshotHotkey)
	log.Printf("Record hotkey: %s", cfg.RecordHotkey)
	log.Printf("Capture sink: %s", cfg.CaptureSink)

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to build application: %v", err)
	}

	// Handle SIGINT/SIGTERM
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		a.Quit()
	}()

	a.Run()
}
