// Package stub is a local stand-in for the transcription service. It speaks
// the same multipart protocol and answers with a canned transcript.
package stub

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"jot/log"
)

type Options struct {
	Transcript  string
	Language    string
	Probability float64
	// Token, when set, is required as a bearer token.
	Token string
	// FailStatus, when non-zero, makes every transcription fail with it.
	FailStatus int
}

func DefaultOptions() Options {
	return Options{Transcript: "hello", Language: "en", Probability: 0.97}
}

// NewRouter builds the gin engine serving POST /transcribe and GET /healthz.
func NewRouter(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/transcribe", transcribe(opts))
	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Set("request_id", id)
		c.Next()
	}
}

func fail(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"error": msg})
}

func transcribe(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.Token != "" {
			auth := c.GetHeader("Authorization")
			if strings.TrimPrefix(auth, "Bearer ") != opts.Token || !strings.HasPrefix(auth, "Bearer ") {
				fail(c, http.StatusUnauthorized, "invalid token")
				return
			}
		}

		fh, err := c.FormFile("audio")
		if err != nil {
			fail(c, http.StatusBadRequest, "multipart field \"audio\" is required")
			return
		}
		f, err := fh.Open()
		if err != nil {
			fail(c, http.StatusBadRequest, "unreadable audio part")
			return
		}
		n, _ := io.Copy(io.Discard, f)
		f.Close()
		if n == 0 {
			fail(c, http.StatusBadRequest, "audio part is empty")
			return
		}

		log.Info(fmt.Sprintf("stub transcribe id=%s file=%s type=%s bytes=%d",
			c.GetString("request_id"), fh.Filename, fh.Header.Get("Content-Type"), n))

		if opts.FailStatus != 0 {
			fail(c, opts.FailStatus, "transcription failed")
			return
		}

		resp := gin.H{"transcript": opts.Transcript}
		if opts.Language != "" {
			resp["language"] = opts.Language
		}
		if opts.Probability > 0 {
			resp["language_probability"] = opts.Probability
		}
		c.JSON(http.StatusOK, resp)
	}
}
