// internal/guide/generate.go

package guide

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/beevik/etree"
	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/guidecap-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Generator renders a run log into the configured output formats.
type Generator struct {
	cfg    config.GuideConfig
	logger *zap.Logger
}

func NewGenerator(cfg config.GuideConfig, logger *zap.Logger) *Generator {
	return &Generator{cfg: cfg, logger: logger.Named("guide")}
}

// Generate writes the guide documents and screenshots for one run and
// returns the paths it wrote. Screenshots are written first so the documents
// can reference them by relative path.
func (g *Generator) Generate(runID string, log *Log) ([]string, error) {
	root, err := homedir.Expand(g.cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("guide: expanding output dir: %w", err)
	}
	dir := filepath.Join(root, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("guide: creating %s: %w", dir, err)
	}

	records := log.Records()
	for i := range records {
		if len(records[i].Screenshot) == 0 {
			continue
		}
		name := fmt.Sprintf("step_%d.png", records[i].Step)
		if err := os.WriteFile(filepath.Join(dir, name), records[i].Screenshot, 0o644); err != nil {
			return nil, fmt.Errorf("guide: writing screenshot %s: %w", name, err)
		}
		records[i].ScreenshotPath = name
	}

	var written []string
	for _, format := range g.cfg.Formats {
		var (
			path string
			err  error
		)
		switch strings.ToLower(format) {
		case "markdown", "md":
			path = filepath.Join(dir, "guide.md")
			err = os.WriteFile(path, []byte(renderMarkdown(log, records)), 0o644)
		case "json":
			path = filepath.Join(dir, "guide.json")
			err = writeJSON(path, log, records)
		case "html":
			path = filepath.Join(dir, "guide.html")
			err = renderHTML(path, log, records)
		default:
			g.logger.Warn("Unknown guide format, skipping.", zap.String("format", format))
			continue
		}
		if err != nil {
			return written, fmt.Errorf("guide: rendering %s: %w", format, err)
		}
		written = append(written, path)
	}
	g.logger.Info("Guide written.", zap.String("dir", dir), zap.Int("steps", len(records)))
	return written, nil
}

func renderMarkdown(log *Log, records []Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# How to: %s\n\n", log.Goal())
	fmt.Fprintf(&b, "_Recorded %s, %d steps._\n\n", log.Started().Format("2006-01-02 15:04"), len(records))
	for _, r := range records {
		fmt.Fprintf(&b, "## Step %d: %s\n\n", r.Step, r.Description)
		if r.Reasoning != "" {
			fmt.Fprintf(&b, "%s\n\n", r.Reasoning)
		}
		if r.URL != "" {
			fmt.Fprintf(&b, "> On page: %s\n\n", r.URL)
		}
		if r.ScreenshotPath != "" {
			fmt.Fprintf(&b, "![Step %d](%s)\n\n", r.Step, r.ScreenshotPath)
		}
		if !r.Success {
			b.WriteString("_Note: this step did not complete cleanly and may need a manual retry._\n\n")
		}
	}
	return b.String()
}

type document struct {
	Goal     string    `json:"goal"`
	Started  time.Time `json:"started"`
	StepsRun int       `json:"steps_run"`
	Steps    []Record  `json:"steps"`
}

func writeJSON(path string, log *Log, records []Record) error {
	blob, err := json.MarshalIndent(document{
		Goal:     log.Goal(),
		Started:  log.Started(),
		StepsRun: len(records),
		Steps:    records,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, blob, 0o644)
}

func renderHTML(path string, log *Log, records []Record) error {
	doc := etree.NewDocument()
	html := doc.CreateElement("html")
	html.CreateAttr("lang", "en")

	head := html.CreateElement("head")
	head.CreateElement("title").SetText("How to: " + log.Goal())
	meta := head.CreateElement("meta")
	meta.CreateAttr("charset", "utf-8")
	style := head.CreateElement("style")
	style.SetText("body{font-family:sans-serif;max-width:48rem;margin:2rem auto;padding:0 1rem}" +
		"img{max-width:100%;border:1px solid #ddd}" +
		".failed{color:#b00}")

	body := html.CreateElement("body")
	body.CreateElement("h1").SetText("How to: " + log.Goal())
	intro := body.CreateElement("p")
	intro.SetText(fmt.Sprintf("Recorded %s, %d steps.", log.Started().Format("2006-01-02 15:04"), len(records)))

	for _, r := range records {
		section := body.CreateElement("section")
		section.CreateElement("h2").SetText(fmt.Sprintf("Step %d: %s", r.Step, r.Description))
		if r.Reasoning != "" {
			section.CreateElement("p").SetText(r.Reasoning)
		}
		if r.URL != "" {
			loc := section.CreateElement("p")
			loc.CreateElement("em").SetText("On page: " + r.URL)
		}
		if r.ScreenshotPath != "" {
			img := section.CreateElement("img")
			img.CreateAttr("src", r.ScreenshotPath)
			img.CreateAttr("alt", fmt.Sprintf("Step %d", r.Step))
		}
		if !r.Success {
			note := section.CreateElement("p")
			note.CreateAttr("class", "failed")
			note.SetText("This step did not complete cleanly and may need a manual retry.")
		}
	}

	doc.Indent(2)
	return doc.WriteToFile(path)
}
