package main

import (
	"context"
	"errors"
	"fmt"

	"jot/audio"
	"jot/capture"
	"jot/config"
	"jot/export"
	"jot/hotkey"
	"jot/log"
	"jot/quota"
	"jot/session"
	"jot/store"
	"jot/transcriber"
)

// app is one wired controller with the resources it owns.
type app struct {
	cfg   config.Config
	kv    *store.SQLite
	trans *transcriber.Client
	ctrl  *session.Controller
}

func newApp(ctx context.Context, cfg config.Config, actx audio.Context, dev *audio.DeviceInfo, sink session.EventSink) (*app, error) {
	policy, err := session.ParseChargePolicy(cfg.ChargePolicy)
	if err != nil {
		return nil, err
	}

	kv, err := store.OpenSQLite(store.DefaultPath(cfg.DataDir))
	if err != nil {
		return nil, err
	}

	trans := newTranscriber(cfg)
	limits := cfg.Limits
	ctrl := session.New(ctx, session.Deps{
		Capture:     capture.NewSession(actx, capture.Config{Formats: cfg.Formats, Device: dev, Gain: cfg.MicGain}),
		Transcriber: trans,
		Quota:       quota.NewTracker(kv),
		Tier:        func() quota.Profile { return quota.LoadProfile(kv, limits) },
		Gateway:     export.NewMarkdown(cfg.ExportDir),
		Saver:       export.Dir{Path: cfg.ExportDir},
		Sink:        sink,
	}, session.Options{
		UpgradeURL:   cfg.UpgradeURL,
		ChargePolicy: policy,
	})

	return &app{cfg: cfg, kv: kv, trans: trans, ctrl: ctrl}, nil
}

func newTranscriber(cfg config.Config) *transcriber.Client {
	return transcriber.New(transcriber.Config{
		URL:     cfg.Transcribe.URL,
		Token:   cfg.Transcribe.Token,
		Timeout: cfg.Transcribe.Timeout,
	})
}

// setTier persists the tier flag and reloads the controller's profile.
func (a *app) setTier(pro bool) quota.Profile {
	if err := quota.SetPro(a.kv, pro); err != nil {
		log.Warnf("saving tier: %v", err)
	}
	return a.ctrl.RefreshTier()
}

func (a *app) close() {
	a.ctrl.Teardown()
	a.ctrl.Wait()
	if err := a.kv.Close(); err != nil {
		log.Warnf("closing store: %v", err)
	}
}

// startFresh clears a finished session, then starts recording.
func startFresh(ctx context.Context, ctrl *session.Controller) error {
	switch ctrl.State() {
	case session.StateReviewing, session.StateFailed:
		if err := ctrl.Dismiss(); err != nil {
			return err
		}
	}
	return ctrl.Start(ctx)
}

// toggle stops an active recording, otherwise starts a new one.
func toggle(ctx context.Context, ctrl *session.Controller) error {
	if ctrl.State() == session.StateRecording {
		return ctrl.Stop()
	}
	return startFresh(ctx, ctrl)
}

// driveHotkey feeds trigger actions to the controller until ctx ends.
func driveHotkey(ctx context.Context, ctrl *session.Controller, tr *hotkey.Trigger) {
	for {
		select {
		case <-ctx.Done():
			return
		case act := <-tr.Actions():
			var err error
			switch act {
			case hotkey.ActionStart:
				err = startFresh(ctx, ctrl)
			case hotkey.ActionStop:
				// The recording may already have hit its limit.
				if ctrl.State() == session.StateRecording {
					err = ctrl.Stop()
				}
			}
			if err != nil && !errors.Is(err, session.ErrQuotaExceeded) {
				log.Warnf("hotkey %s: %v", act, err)
			}
		}
	}
}

// runTier implements "jot tier [free|pro]".
func runTier(cfg config.Config, args []string) int {
	kv, err := store.OpenSQLite(store.DefaultPath(cfg.DataDir))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}
	defer kv.Close()

	if len(args) > 0 {
		switch args[0] {
		case "pro", "free":
			if err := quota.SetPro(kv, args[0] == "pro"); err != nil {
				fmt.Printf("Error: %v\n", err)
				return 1
			}
		default:
			fmt.Println("Usage: jot tier [free|pro]")
			return 2
		}
	}

	p := quota.LoadProfile(kv, cfg.Limits)
	d := quota.NewTracker(kv).CanStart(p)
	fmt.Println(tierLine(p, d))
	return 0
}

func tierLine(p quota.Profile, d quota.Decision) string {
	if p.Pro {
		return fmt.Sprintf("pro: recordings up to %s, unlimited per day", clock(p.TimeLimit))
	}
	return fmt.Sprintf("free: recordings up to %s, %d of %d left today", clock(p.TimeLimit), d.Remaining, p.DailyLimit)
}

// clock formats seconds as m:ss.
func clock(s int) string {
	if s < 0 {
		s = 0
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
