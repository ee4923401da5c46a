package acebot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// CorpusEntry is one parsed documentation record, as produced by a
// [CorpusSource] and consumed by [DocsStore.Rebuild].
type CorpusEntry struct {
	// Names are the lookup names (including aliases) for this entry.
	Names []string

	// Link is the docs-relative link ("Commands.htm#MsgBox"), nil for
	// entries with no page of their own.
	Link *string

	// Desc is the entry description, already plain text/markdown.
	Desc string

	// Syntax is the optional code-signature block.
	Syntax *string
}

// pageAndFragment derives the page name and fragment from the entry's
// link: the known file extension is stripped, and a single '#' anchor
// (if present) becomes the fragment. Anything else leaves both nil.
func (c CorpusEntry) pageAndFragment() (page *string, fragment *string) {
	if c.Link == nil {
		return nil, nil
	}
	link := *c.Link
	if idx := strings.LastIndex(link, "/"); idx >= 0 {
		link = link[idx+1:]
	}
	name, anchor, hasAnchor := strings.Cut(link, "#")
	name = strings.TrimSuffix(name, ".htm")
	name = strings.TrimSuffix(name, ".html")
	if name == "" {
		return nil, nil
	}
	page = &name
	if hasAnchor && anchor != "" {
		fragment = &anchor
	}
	return page, fragment
}

// CorpusSource produces the full set of corpus entries for a rebuild.
type CorpusSource interface {
	Entries(ctx context.Context) ([]CorpusEntry, error)
}

// HTMLDocsSource fetches the documentation index page and walks its
// anchors into corpus entries. Each anchor's text becomes the entry name,
// its href the link, and its title attribute (when present) the
// description.
type HTMLDocsSource struct {
	URL        string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTMLDocsSource(
	url string,
	httpClient *http.Client,
	logger *slog.Logger,
) *HTMLDocsSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTMLDocsSource{
		URL:        url,
		httpClient: httpClient,
		logger:     logger.With(loggerNameKey, "docs_source"),
	}
}

func (h *HTMLDocsSource) Entries(ctx context.Context) ([]CorpusEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating docs index request: %w", err)
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, upstreamError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(
			fmt.Errorf("docs index returned status %d", resp.StatusCode),
		)
	}
	return h.parse(resp.Body)
}

func (h *HTMLDocsSource) parse(r io.Reader) ([]CorpusEntry, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("error parsing docs index: %w", err)
	}

	// Anchors pointing at the same href are aliases of one entry, in
	// document order.
	var order []string
	byLink := map[string]*CorpusEntry{}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			h.collectAnchor(n, byLink, &order)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	entries := make([]CorpusEntry, 0, len(order))
	for _, link := range order {
		entries = append(entries, *byLink[link])
	}
	h.logger.Info("parsed docs index", "entries", len(entries))
	return entries, nil
}

func (h *HTMLDocsSource) collectAnchor(
	n *html.Node,
	byLink map[string]*CorpusEntry,
	order *[]string,
) {
	var href, title string
	for _, attr := range n.Attr {
		switch attr.Key {
		case "href":
			href = strings.TrimSpace(attr.Val)
		case "title":
			title = strings.TrimSpace(attr.Val)
		}
	}
	name := strings.TrimSpace(anchorText(n))
	if name == "" || href == "" {
		return
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		// external link, not a docs entry
		return
	}
	href = strings.TrimPrefix(href, "/docs/")
	href = strings.TrimPrefix(href, "./")

	entry, ok := byLink[href]
	if !ok {
		link := href
		entry = &CorpusEntry{Link: &link, Desc: title}
		byLink[href] = entry
		*order = append(*order, href)
	}
	for _, existing := range entry.Names {
		if strings.EqualFold(existing, name) {
			return
		}
	}
	entry.Names = append(entry.Names, name)
	if entry.Desc == "" && title != "" {
		entry.Desc = title
	}
}

func anchorText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(anchorText(c))
	}
	return sb.String()
}
