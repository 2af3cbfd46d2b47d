package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"jot/audio"
	"jot/config"
	"jot/log"
	"jot/session"
)

// printSink writes controller events as lines, one per event.
type printSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *printSink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format+"\n", args...)
}

func (s *printSink) StateChanged(st session.State, r session.Reason) {
	s.printf("state %s %s", st, r)
}

func (s *printSink) Progress(p session.Progress) {
	s.printf("progress %d/%d", p.Elapsed, p.Limit)
}

func (s *printSink) Notice(n session.Notice) {
	if n.UpgradeURL != "" {
		s.printf("notice %s %s upgrade=%s", n.Kind, n.Message, n.UpgradeURL)
		return
	}
	s.printf("notice %s %s", n.Kind, n.Message)
}

func (s *printSink) TranscriptReady(r session.Review) {
	s.printf("transcript %q", r.Transcript.Text)
}

// runTestMode drives a controller over a WAV file from line commands on in:
// START, STOP, WAIT, RETRY, DISMISS, EDIT <text>, DOWNLOAD, EXPORT,
// TIER free|pro, QUOTA, SLEEP <ms>, QUIT.
func runTestMode(cfg config.Config, wavPath string, in io.Reader, out io.Writer) error {
	fakeCtx, err := audio.NewFakeContext(wavPath, false)
	if err != nil {
		return fmt.Errorf("loading WAV: %w", err)
	}

	sink := &printSink{w: out}
	ctx := context.Background()
	a, err := newApp(ctx, cfg, fakeCtx, nil, sink)
	if err != nil {
		return err
	}
	defer a.close()

	report := func(op string, err error) {
		if err != nil {
			sink.printf("error %s: %v", op, err)
		}
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		cmd, arg, _ := strings.Cut(line, " ")
		switch strings.ToUpper(cmd) {
		case "":
		case "START":
			report("start", startFresh(ctx, a.ctrl))
		case "STOP":
			report("stop", a.ctrl.Stop())
		case "WAIT":
			a.ctrl.Wait()
		case "RETRY":
			report("retry", a.ctrl.Retry())
		case "DISMISS":
			report("dismiss", a.ctrl.Dismiss())
		case "EDIT":
			report("edit", a.ctrl.EditTranscript(arg))
		case "DOWNLOAD":
			path, err := a.ctrl.Download(ctx)
			if err != nil {
				report("download", err)
				continue
			}
			sink.printf("download %s", path)
		case "EXPORT":
			art, err := a.ctrl.Export(ctx, nil)
			if err != nil {
				report("export", err)
				continue
			}
			sink.printf("export %s", art.Path)
		case "TIER":
			p := a.setTier(strings.EqualFold(arg, "pro"))
			sink.printf("tier pro=%t limit=%d", p.Pro, p.TimeLimit)
		case "QUOTA":
			d := a.ctrl.Quota()
			sink.printf("quota allowed=%t remaining=%d", d.Allowed, d.Remaining)
		case "SLEEP":
			if ms, err := strconv.Atoi(arg); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case "QUIT":
			return nil
		default:
			log.Warnf("test mode: unknown command %q", line)
			sink.printf("error unknown command %q", line)
		}
	}
	return scanner.Err()
}
