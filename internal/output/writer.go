package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kbforge/kbsync/internal/domain"
	"github.com/kbforge/kbsync/internal/utils"
)

// Writer archives normalized documents to an on-disk directory as
// Markdown files with YAML frontmatter. The archive is a debugging and
// inspection aid; the index is fed from segments, not from these files.
type Writer struct {
	baseDir string
	logger  *utils.Logger
}

// WriterOptions contains options for the writer
type WriterOptions struct {
	BaseDir string
	Logger  *utils.Logger
}

// frontmatter is the YAML header written on each archived article.
type frontmatter struct {
	Title     string    `yaml:"title"`
	URL       string    `yaml:"url,omitempty"`
	Identity  string    `yaml:"identity"`
	WrittenAt time.Time `yaml:"written_at"`
}

// NewWriter creates a new archive writer
func NewWriter(opts WriterOptions) *Writer {
	logger := opts.Logger
	if logger == nil {
		logger = utils.NewDefaultLogger()
	}
	return &Writer{
		baseDir: opts.BaseDir,
		logger:  logger.WithComponent("archive"),
	}
}

// Write saves one document to the archive, overwriting any previous copy.
func (w *Writer) Write(doc *domain.Document) error {
	path := w.Path(doc)
	if err := utils.EnsureDir(path); err != nil {
		return err
	}

	fm, err := yaml.Marshal(frontmatter{
		Title:     doc.Title(),
		URL:       doc.SourceURL(),
		Identity:  doc.Identity,
		WrittenAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")
	b.WriteString(doc.Text)
	b.WriteString("\n")

	return os.WriteFile(path, []byte(b.String()), 0644)
}

// WriteAll archives a batch of documents.
func (w *Writer) WriteAll(docs []domain.Document) error {
	for i := range docs {
		if err := w.Write(&docs[i]); err != nil {
			return fmt.Errorf("archive %s: %w", docs[i].Identity, err)
		}
	}
	w.logger.Debug().Int("documents", len(docs)).Str("dir", w.baseDir).Msg("Archive written")
	return nil
}

// Path returns the archive location for a document.
func (w *Writer) Path(doc *domain.Document) string {
	return filepath.Join(w.baseDir, utils.Slugify(doc.Title())+".md")
}

// Clean removes every Markdown file from the archive directory.
func (w *Writer) Clean() error {
	entries, err := os.ReadDir(w.baseDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".md" {
			continue
		}
		if err := os.Remove(filepath.Join(w.baseDir, entry.Name())); err != nil {
			return err
		}
		removed++
	}
	w.logger.Debug().Int("removed", removed).Msg("Archive cleaned")
	return nil
}

// SourceURLs scans archived files and returns every "Article URL:" line,
// keyed by filename. Useful for auditing that expected source links made
// it into the corpus.
func (w *Writer) SourceURLs() (map[string][]string, error) {
	entries, err := os.ReadDir(w.baseDir)
	if err != nil {
		return nil, err
	}

	urls := make(map[string][]string)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".md" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(w.baseDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "Article URL:") {
				urls[entry.Name()] = append(urls[entry.Name()],
					strings.TrimSpace(strings.TrimPrefix(line, "Article URL:")))
			}
		}
	}
	return urls, nil
}
