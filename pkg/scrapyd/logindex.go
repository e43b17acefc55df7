package scrapyd

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// LogFile is one entry of a spider's log directory.
type LogFile struct {
	JobID string `json:"jobid"`
	Name  string `json:"name"`
	URL   string `json:"url"`
}

// ListLogs reads the daemon's log directory listing for spider and returns the
// .log files it links to, in page order.
func (c *Client) ListLogs(ctx context.Context, project, spider string) ([]LogFile, error) {
	dir := c.logDirURL(project, spider)
	body, err := c.getRaw(ctx, dir)
	if err != nil {
		return nil, err
	}
	return parseLogIndex(body, dir)
}

func parseLogIndex(body []byte, dir string) ([]LogFile, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse log index: %w", err)
	}

	base, err := url.Parse(dir)
	if err != nil {
		return nil, fmt.Errorf("parse log index url: %w", err)
	}

	var files []LogFile
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		name := resolved.Path[strings.LastIndex(resolved.Path, "/")+1:]
		if !strings.HasSuffix(name, ".log") || seen[name] {
			return
		}
		seen[name] = true
		files = append(files, LogFile{
			JobID: strings.TrimSuffix(name, ".log"),
			Name:  name,
			URL:   resolved.String(),
		})
	})
	return files, nil
}
