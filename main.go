package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"jot/audio"
	"jot/config"
	"jot/doctor"
	"jot/hotkey"
	"jot/log"
	"jot/shutdown"
)

var version = "dev"

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
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
	return "mic: " + name + suffix
}

func resolveDevice(actx audio.Context, setup bool, name string) *audio.DeviceInfo {
	if setup {
		dev, err := audio.SelectDevice(actx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
			return nil
		}
		return dev
	}
	if name == "" {
		return nil
	}
	dev, err := audio.FindDevice(actx, name)
	if err != nil {
		log.Warnf("device %q: %v", name, err)
		fmt.Printf("Warning: %v, using default device\n", err)
		return nil
	}
	return dev
}

func runDoctor(cfg config.Config) int {
	d := doctor.Deps{
		Config:      cfg,
		Transcriber: newTranscriber(cfg),
		Record:      3 * time.Second,
		Hotkey:      hotkey.Diagnose,
		Out:         os.Stdout,
	}
	actx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("Warning: audio unavailable: %v\n", err)
	} else {
		defer actx.Close()
		d.Audio = actx
		d.Device = resolveDevice(actx, false, cfg.Device)
	}
	fmt.Println("Speak for 3 seconds during the microphone check.")
	return doctor.Run(context.Background(), d)
}

func run() {
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	envFlag := flag.String("env", "", "dotenv file to load (default .env)")
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	hotkeyFlag := flag.Bool("hotkey", false, "Start/stop recording with "+hotkey.Combo)
	longPressFlag := flag.Duration("longpress", hotkey.DefaultLongPress, "Hold longer than this to record only while the key is held")
	testFlag := flag.Bool("test", false, "Test mode (headless, stdin-driven)")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: jot [flags]\n       jot tier [free|pro]\n       jot -test <wav-file>\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *versionFlag {
		fmt.Printf("jot %s\n", version)
		os.Exit(0)
	}

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog()

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	cfg, err := config.Load(*envFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: loading config: %v\n", err)
		os.Exit(1)
	}
	if *deviceFlag != "" {
		cfg.Device = *deviceFlag
	}

	args := flag.Args()
	if len(args) > 0 && args[0] == "tier" {
		code := runTier(cfg, args[1:])
		log.Close()
		os.Exit(code)
	}

	if *doctorFlag {
		code := runDoctor(cfg)
		log.Close()
		os.Exit(code)
	}

	if *testFlag {
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: jot -test <wav-file>")
			os.Exit(1)
		}
		if err := runTestMode(cfg, args[0], os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			log.Close()
			os.Exit(1)
		}
		return
	}

	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Printf("Error initializing audio context: %v\n", err)
		os.Exit(1)
	}
	defer actx.Close()

	dev := resolveDevice(actx, *setupFlag, cfg.Device)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &teaSink{}
	a, err := newApp(ctx, cfg, actx, dev, sink)
	if err != nil {
		log.Errorf("init error: %v", err)
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		cancel()
		a.close()
	}()
	go a.trans.Warm()

	model := newTUIModel(ctx, a, deviceLineText(dev))
	p := tea.NewProgram(model, tea.WithAltScreen())
	sink.attach(p)
	defer sink.attach(nil)

	if *hotkeyFlag {
		hk := hotkey.New()
		if err := hk.Register(); err != nil {
			log.Warnf("hotkey: %v", err)
			fmt.Printf("Warning: global hotkey unavailable: %v\n", err)
		} else {
			defer hk.Unregister()
			tr := hotkey.NewTrigger(hk, *longPressFlag)
			defer tr.Close()
			go driveHotkey(ctx, a.ctrl, tr)
		}
	}

	stopSignals := shutdown.OnSignal(p.Quit)
	defer stopSignals()

	if _, err := p.Run(); err != nil {
		log.Errorf("TUI error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
}
