package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Markdown writes documents as <dir>/<name>.md, with the optional image
// saved alongside as <name>.png.
type Markdown struct {
	dir string
	now func() time.Time
}

func NewMarkdown(dir string) *Markdown {
	return &Markdown{dir: dir, now: time.Now}
}

// Available reports whether the output directory exists or can be created.
func (m *Markdown) Available() bool {
	if m == nil || m.dir == "" {
		return false
	}
	return os.MkdirAll(m.dir, 0o755) == nil
}

func (m *Markdown) Export(ctx context.Context, doc Document) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	if !m.Available() {
		return Artifact{}, ErrUnavailable
	}

	name := strings.TrimSuffix(Filename(m.now(), "md"), ".md")
	var art Artifact

	if len(doc.Image) > 0 {
		art.ImagePath = filepath.Join(m.dir, name+".png")
		if err := os.WriteFile(art.ImagePath, doc.Image, 0o644); err != nil {
			return Artifact{}, fmt.Errorf("writing image: %w", err)
		}
	}

	body := Render(doc, filepath.Base(art.ImagePath))
	art.Path = filepath.Join(m.dir, name+".md")
	if err := os.WriteFile(art.Path, []byte(body), 0o644); err != nil {
		return Artifact{}, fmt.Errorf("writing document: %w", err)
	}
	art.Bytes = len(body)
	return art, nil
}

// Render formats doc as Markdown. image is a relative path or empty.
func Render(doc Document, image string) string {
	var b strings.Builder
	title := doc.Title
	if title == "" {
		title = "Voice Memo"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if image != "" && image != "." {
		fmt.Fprintf(&b, "![%s](%s)\n\n", title, image)
	}
	if doc.TimestampText != "" {
		fmt.Fprintf(&b, "- Recorded: %s\n", doc.TimestampText)
	}
	if doc.DurationText != "" {
		fmt.Fprintf(&b, "- Duration: %s\n", doc.DurationText)
	}
	fmt.Fprintf(&b, "- Language: %s\n", LanguageText(doc.Language))
	if doc.ConfidencePercentText != "" {
		fmt.Fprintf(&b, "- Confidence: %s\n", doc.ConfidencePercentText)
	}
	b.WriteString("\n---\n\n")
	b.WriteString(strings.TrimSpace(doc.TranscriptText))
	b.WriteString("\n")
	return b.String()
}

// Dir saves downloads into a directory.
type Dir struct {
	Path string
}

func (d Dir) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name != filepath.Base(name) {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		return "", fmt.Errorf("creating download directory: %w", err)
	}
	path := filepath.Join(d.Path, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("saving %s: %w", name, err)
	}
	return path, nil
}
