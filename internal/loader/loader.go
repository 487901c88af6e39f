// Package loader turns an ingestion source into page texts.
package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/sirupsen/logrus"

	"ragmem/internal/domain"
)

// Extractor reads the text of each page of a local document.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]string, error)
}

// Loader resolves sources. URLs are downloaded to a temporary file that is
// removed before Load returns.
type Loader struct {
	extractor Extractor
	client    *http.Client
	tempDir   string
	log       logrus.FieldLogger
}

// Options configures a Loader. Zero values select defaults.
type Options struct {
	Extractor   Extractor
	HTTPTimeout time.Duration
	TempDir     string
	Logger      logrus.FieldLogger
}

func New(opts Options) *Loader {
	if opts.Extractor == nil {
		opts.Extractor = PDFExtractor{}
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Loader{
		extractor: opts.Extractor,
		client:    &http.Client{Timeout: opts.HTTPTimeout},
		tempDir:   opts.TempDir,
		log:       opts.Logger,
	}
}

// Load returns the pages of src. Raw text is a single page.
func (l *Loader) Load(ctx context.Context, src domain.Source) ([]string, error) {
	switch src.Kind {
	case domain.SourceText:
		return []string{src.Value}, nil
	case domain.SourceFile:
		pages, err := l.extractor.Extract(ctx, src.Value)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", src.Value, err)
		}
		return pages, nil
	case domain.SourceURL:
		return l.loadURL(ctx, src.Value)
	default:
		return nil, fmt.Errorf("%w: unknown source kind %d", domain.ErrInvalidInput, src.Kind)
	}
}

func (l *Loader) loadURL(ctx context.Context, url string) ([]string, error) {
	path, err := l.download(ctx, url)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			l.log.WithError(err).WithField("path", path).Warn("failed to remove downloaded file")
		}
	}()
	pages, err := l.extractor.Extract(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", url, err)
	}
	return pages, nil
}

func (l *Loader) download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: bad url %q: %v", domain.ErrInvalidInput, url, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	f, err := os.CreateTemp(l.tempDir, "ragmem-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(f.Name())
		if copyErr == nil {
			copyErr = closeErr
		}
		return "", fmt.Errorf("download %s: %w", url, copyErr)
	}
	l.log.WithFields(logrus.Fields{"url": url, "bytes": n}).Debug("document downloaded")
	return f.Name(), nil
}

// PDFExtractor extracts plain text per page. Pages without text are skipped.
type PDFExtractor struct{}

func (PDFExtractor) Extract(ctx context.Context, path string) (pages []string, err error) {
	// the parser panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("parse PDF: %v", r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("parse PDF: %w", err)
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	return pages, nil
}
