// Command jot-stub serves a canned transcription endpoint for local use.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	"jot/config"
	"jot/log"
	"jot/stub"
)

func main() {
	addr := flag.String("addr", "", "listen address (default JOT_STUB_ADDR or :8787)")
	text := flag.String("text", "", "transcript to return")
	lang := flag.String("lang", "", "language to return")
	prob := flag.Float64("prob", -1, "language probability to return")
	failStatus := flag.Int("fail", 0, "respond to every upload with this HTTP status")
	logPath := flag.String("logpath", "", "log directory")
	flag.Parse()

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if dir, err := log.ResolveDir(*logPath); err == nil {
		log.SetDir(dir)
		if err := log.Init(); err == nil {
			defer log.Close()
		}
	}

	opts := stub.DefaultOptions()
	opts.Token = cfg.Transcribe.Token
	opts.FailStatus = *failStatus
	if *text != "" {
		opts.Transcript = *text
	}
	if *lang != "" {
		opts.Language = *lang
	}
	if *prob >= 0 {
		opts.Probability = *prob
	}

	listen := cfg.StubAddr
	if *addr != "" {
		listen = *addr
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := stub.NewRouter(opts)
	log.Info("jot-stub listening on " + listen)
	fmt.Printf("jot-stub listening on %s\n", listen)
	if err := r.Run(listen); err != nil {
		fmt.Fprintf(os.Stderr, "jot-stub: %v\n", err)
		os.Exit(1)
	}
}
