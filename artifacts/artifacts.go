// Package artifacts mirrors Bamboo artifact listings onto local disk.
// The listings are plain HTML directory indexes linked from a build
// page; downloaded files are opaque external artifacts as far as the
// rest of the tool is concerned.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/cistat/cistat/fetch"
)

// maxDepth bounds the recursive listing walk so a cyclic or degenerate
// index cannot loop the downloader.
const maxDepth = 6

// Downloader fetches artifact files below a build page.
type Downloader struct {
	client *fetch.Client
	logger zerolog.Logger
}

// New creates a Downloader on top of the shared fetch client.
func New(client *fetch.Client, logger zerolog.Logger) *Downloader {
	return &Downloader{client: client, logger: logger}
}

// DownloadBuildLogs finds artifact listings linked from a build page
// and downloads their files under outDir, preserving the listing's
// directory structure. It returns the number of files written.
func (d *Downloader) DownloadBuildLogs(ctx context.Context, buildURL, outDir string) (int, error) {
	text, err := d.client.Fetch(ctx, buildURL)
	if err != nil {
		return 0, fmt.Errorf("fetching build page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return 0, fmt.Errorf("parsing build page: %w", err)
	}

	total := 0
	seen := make(map[string]struct{})

	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href := link.AttrOr("href", "")
		if !strings.Contains(href, "/artifact/") {
			return
		}
		listing := resolveURL(buildURL, href)
		if _, dup := seen[listing]; dup {
			return
		}
		seen[listing] = struct{}{}

		name := strings.TrimSpace(link.Text())
		n, err := d.walkListing(ctx, listing, filepath.Join(outDir, sanitizeName(name)), 0)
		if err != nil {
			d.logger.Warn().Err(err).Str("url", listing).Msg("artifact listing skipped")
			return
		}
		total += n
	})

	return total, nil
}

// walkListing downloads every file in one directory index, recursing
// into subdirectories.
func (d *Downloader) walkListing(ctx context.Context, listingURL, outDir string, depth int) (int, error) {
	if depth >= maxDepth {
		d.logger.Warn().Str("url", listingURL).Msg("listing deeper than expected, stopping")
		return 0, nil
	}

	text, err := d.client.Fetch(ctx, listingURL)
	if err != nil {
		var fe *fetch.Error
		if errors.As(err, &fe) && fe.StatusCode == 404 {
			return 0, nil
		}
		return 0, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return 0, fmt.Errorf("parsing listing: %w", err)
	}

	count := 0
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		link := row.Find("a[href]").First()
		if link.Length() == 0 {
			return
		}
		href := link.AttrOr("href", "")
		name := strings.TrimSpace(link.Text())
		if name == "" || isParentLink(name, href) {
			return
		}
		target := resolveURL(listingURL, href)

		if isDirectoryRow(row, href) {
			n, err := d.walkListing(ctx, target, filepath.Join(outDir, sanitizeName(name)), depth+1)
			if err != nil {
				d.logger.Warn().Err(err).Str("url", target).Msg("subdirectory skipped")
				return
			}
			count += n
			return
		}

		path := filepath.Join(outDir, sanitizeName(name))
		if err := d.downloadFile(ctx, target, path); err != nil {
			d.logger.Warn().Err(err).Str("url", target).Msg("file skipped")
			return
		}
		d.logger.Debug().Str("path", path).Msg("downloaded")
		count++
	})

	return count, nil
}

func (d *Downloader) downloadFile(ctx context.Context, fileURL, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	if err := d.client.Download(ctx, fileURL, f); err != nil {
		f.Close()
		os.Remove(path) //nolint:errcheck
		return err
	}
	return f.Close()
}

// isDirectoryRow tells directories from files. Bamboo marks the row
// with an icon class; a trailing slash on the href means the same.
func isDirectoryRow(row *goquery.Selection, href string) bool {
	if strings.HasSuffix(href, "/") {
		return true
	}
	icon := row.Find("span.aui-icon").First()
	return icon.Length() > 0 && strings.Contains(icon.AttrOr("class", ""), "directory")
}

func isParentLink(name, href string) bool {
	switch name {
	case "..", "../", "/", "Parent directory", "Parent Directory":
		return true
	}
	return href == "../" || href == "/"
}

func resolveURL(baseURL, href string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// sanitizeName keeps artifact names usable as single path elements.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.TrimSpace(name)
	if name == "" {
		return "artifact"
	}
	return name
}
