package session

import (
	"context"
	"fmt"

	"jot/export"
	"jot/log"
)

// DocumentTitle heads every exported document.
const DocumentTitle = "Voice Memo"

// gate checks the shared preconditions of the pro-only actions. Callers hold
// c.mu. A free-tier caller gets an UpgradeRequired notice queued.
func (c *Controller) gate(action string) error {
	if c.state != StateReviewing || c.sess == nil {
		return ErrNotReviewing
	}
	if !c.profile.Pro {
		c.queue(func(s EventSink) {
			s.Notice(Notice{
				Kind:       NoticeUpgradeRequired,
				Message:    fmt.Sprintf("%s is available on the Pro plan.", action),
				UpgradeURL: c.opts.UpgradeURL,
				Err:        ErrUpgradeRequired,
			})
		})
		return ErrUpgradeRequired
	}
	return nil
}

// Download saves the raw finalized audio and returns its location.
func (c *Controller) Download(ctx context.Context) (string, error) {
	c.mu.Lock()
	if err := c.gate("Downloading audio"); err != nil {
		c.mu.Unlock()
		c.flush()
		return "", err
	}
	s := c.sess
	if s.audio == nil || len(s.audio.Data) == 0 {
		c.mu.Unlock()
		return "", ErrNoAudio
	}
	a := *s.audio
	name := export.Filename(c.opts.Now(), a.Format.Ext)
	c.mu.Unlock()

	if c.deps.Saver == nil {
		return "", ErrExportUnavailable
	}
	path, err := c.deps.Saver.Save(ctx, name, a.Data)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	log.Info("audio downloaded to " + path)
	return path, nil
}

// Export hands the reviewed transcript, edited copy first, to the export
// gateway. image is optional.
func (c *Controller) Export(ctx context.Context, image []byte) (export.Artifact, error) {
	c.mu.Lock()
	if err := c.gate("Exporting"); err != nil {
		c.mu.Unlock()
		c.flush()
		return export.Artifact{}, err
	}
	s := c.sess
	if s.transcript == nil {
		c.mu.Unlock()
		return export.Artifact{}, ErrNotReviewing
	}
	doc := c.document(s, image)
	c.mu.Unlock()

	gw := c.deps.Gateway
	if gw == nil || !gw.Available() {
		return export.Artifact{}, ErrExportUnavailable
	}
	art, err := gw.Export(ctx, doc)
	if err != nil {
		return export.Artifact{}, fmt.Errorf("export: %w", err)
	}
	log.Info("transcript exported to " + art.Path)
	return art, nil
}

// document builds the export payload. Callers hold c.mu.
func (c *Controller) document(s *record, image []byte) export.Document {
	t := s.transcript
	text := t.Text
	if s.edited != nil {
		text = *s.edited
	}
	doc := export.Document{
		Title:                 DocumentTitle,
		TimestampText:         s.startedAt.Format("2006-01-02 15:04"),
		Language:              export.LanguageText(t.Language),
		ConfidencePercentText: export.ConfidenceText(t.Confidence, t.HasConfidence),
		TranscriptText:        text,
		Image:                 image,
	}
	if s.audio != nil {
		doc.DurationText = export.DurationText(s.audio.Duration)
	}
	return doc
}
