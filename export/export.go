// Package export turns a reviewed transcript into saved artifacts: a
// Markdown document and the raw audio download.
package export

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// FilePrefix starts every downloaded recording's file name.
const FilePrefix = "recording-"

var ErrUnavailable = errors.New("export unavailable")

// Document is the structured data handed to a Gateway.
type Document struct {
	Title                 string
	TimestampText         string
	Language              string
	ConfidencePercentText string
	DurationText          string
	TranscriptText        string
	Image                 []byte
}

// Artifact acknowledges a saved export.
type Artifact struct {
	Path      string
	ImagePath string
	Bytes     int
}

// Gateway renders and saves a document. Available must be checked before
// Export.
type Gateway interface {
	Available() bool
	Export(ctx context.Context, doc Document) (Artifact, error)
}

// Saver writes a raw download and returns where it went.
type Saver interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// Filename is FilePrefix plus the UTC millisecond timestamp with ':' and '.'
// replaced, plus ext.
func Filename(t time.Time, ext string) string {
	ts := t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return FilePrefix + ts + "." + ext
}

// ConfidenceText renders a [0,1] probability as a percentage with one
// decimal, or "unknown".
func ConfidenceText(p float64, known bool) string {
	if !known {
		return "unknown"
	}
	return fmt.Sprintf("%.1f%%", p*100)
}

func LanguageText(lang string) string {
	if lang == "" {
		return "unknown"
	}
	return lang
}

// DurationText renders m:ss.
func DurationText(d time.Duration) string {
	s := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
