package acebot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"github.com/mmcdole/gofeed"
)

const (
	// DefaultFeedInterval is the delay between forum feed polls.
	DefaultFeedInterval = 5 * time.Minute

	// DefaultFeedTimeout bounds a single feed fetch; a tick that exceeds
	// it is abandoned and retried on the next interval.
	DefaultFeedTimeout = 20 * time.Second

	// feedReplyPrefix marks a forum feed entry as a reply to an existing
	// thread rather than a new thread.
	feedReplyPrefix = "• Re: "

	// feedStatisticsMarker precedes the forum's per-post statistics
	// trailer, which is cut from entry bodies before rendering.
	feedStatisticsMarker = "Statistics: "
)

// ForumFeed polls the forum Atom feed on a fixed interval and posts new
// entries to the configured thread/reply channels. The watermark - the
// timestamp of the newest processed entry - is advanced only by the
// poller's own goroutine, so entries at or below it are never re-emitted.
type ForumFeed struct {
	config     *FeedConfig
	session    DiscordSessionHandler
	httpClient *http.Client
	parser     *gofeed.Parser
	logger     *slog.Logger

	// watermark holds the UnixMilli timestamp of the newest processed
	// entry. Written only by the poll loop; read by the status API.
	watermark atomic.Int64

	metricTicks   atomic.Int64
	metricEmitted atomic.Int64
}

func NewForumFeed(
	config *FeedConfig,
	session DiscordSessionHandler,
	httpClient *http.Client,
	logger *slog.Logger,
) *ForumFeed {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	f := &ForumFeed{
		config:     config,
		session:    session,
		httpClient: httpClient,
		parser:     gofeed.NewParser(),
		logger:     logger.With(loggerNameKey, "forum_feed"),
	}
	// start just behind now so only entries posted after startup are seen
	f.watermark.Store(time.Now().Add(-time.Minute).UnixMilli())
	return f
}

// Watermark returns the timestamp of the newest processed feed entry.
func (f *ForumFeed) Watermark() time.Time {
	return time.UnixMilli(f.watermark.Load()).UTC()
}

// SetWatermark overrides the watermark. Only for construction-time use;
// once Run starts, the poll loop is the sole writer.
func (f *ForumFeed) SetWatermark(t time.Time) {
	f.watermark.Store(t.UnixMilli())
}

// Run polls the feed until the context is cancelled. Fetch and parse
// failures skip the tick; they're transient and self-heal on the next one.
func (f *ForumFeed) Run(ctx context.Context) {
	interval := f.config.Interval
	if interval <= 0 {
		interval = DefaultFeedInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	f.logger.Info(
		"forum feed poller started",
		"url", f.config.URL,
		"interval", interval,
	)
	for {
		select {
		case <-ctx.Done():
			f.logger.Info("forum feed poller stopped")
			return
		case <-ticker.C:
			f.poll(ctx)
		}
	}
}

// poll runs one feed tick: fetch, parse, emit entries newer than the
// watermark in ascending timestamp order, advancing the watermark after
// each successful emit.
func (f *ForumFeed) poll(ctx context.Context) {
	f.metricTicks.Add(1)

	timeout := f.config.Timeout
	if timeout <= 0 {
		timeout = DefaultFeedTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	feed, err := f.fetch(ctx)
	if err != nil {
		f.logger.Warn("feed fetch failed, skipping tick", tint.Err(err))
		return
	}

	for _, item := range f.newItems(feed) {
		if err = f.emit(ctx, item); err != nil {
			// don't advance past the failed entry; it'll be retried
			// next tick
			f.logger.Error("error emitting feed entry", tint.Err(err))
			return
		}
		f.watermark.Store(item.timestamp.UnixMilli())
		f.metricEmitted.Add(1)
	}
}

func (f *ForumFeed) fetch(ctx context.Context) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, f.config.URL, nil,
	)
	if err != nil {
		return nil, fmt.Errorf("error creating feed request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}
	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error parsing feed: %w", err)
	}
	return feed, nil
}

type feedItem struct {
	item      *gofeed.Item
	timestamp time.Time
}

// newItems returns feed entries newer than the watermark, sorted by
// timestamp ascending. The upstream feed is only mostly
// reverse-chronological, so ordering is enforced here rather than assumed.
func (f *ForumFeed) newItems(feed *gofeed.Feed) []feedItem {
	watermark := f.Watermark()
	items := make([]feedItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		ts := item.UpdatedParsed
		if ts == nil {
			ts = item.PublishedParsed
		}
		if ts == nil {
			f.logger.Warn(
				"feed entry has no parseable timestamp", "title", item.Title,
			)
			continue
		}
		if !ts.After(watermark) {
			continue
		}
		items = append(items, feedItem{item: item, timestamp: ts.UTC()})
	}
	sort.SliceStable(
		items, func(i, j int) bool {
			return items[i].timestamp.Before(items[j].timestamp)
		},
	)
	return items
}

func (f *ForumFeed) emit(ctx context.Context, entry feedItem) error {
	item := entry.item
	title := renderMarkdown(item.Title)

	body := item.Content
	if body == "" {
		body = item.Description
	}
	if idx := indexOfStatistics(body); idx >= 0 {
		body = body[:idx]
	}

	embed := newEmbed()
	embed.Title = truncateContent(title, discordEmbedTitleMaxLength)
	embed.Description = renderFeedBody(body)
	embed.URL = item.GUID
	if embed.URL == "" {
		embed.URL = item.Link
	}
	embed.Timestamp = entry.timestamp.Format(time.RFC3339)
	embed.Footer = &discordgo.MessageEmbedFooter{
		Text:    f.config.FooterText,
		IconURL: f.config.FooterIconURL,
	}
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		embed.Fields = append(
			embed.Fields, &discordgo.MessageEmbedField{
				Name:  "Author",
				Value: item.Authors[0].Name,
			},
		)
	}
	if len(item.Categories) > 0 {
		embed.Fields = append(
			embed.Fields, &discordgo.MessageEmbedField{
				Name:  "Forum",
				Value: item.Categories[0],
			},
		)
	}

	channelID := f.classify(title)
	if channelID == "" {
		// no channel configured for this entry type
		return nil
	}
	_, err := f.session.ChannelMessageSendEmbed(
		channelID, embed, discordgo.WithContext(ctx),
	)
	return err
}

// classify picks the output channel: titles carrying the reply prefix go
// to the reply channel, everything else is a new thread. With no reply
// channel configured, replies fall back to the thread channel rather
// than being dropped.
func (f *ForumFeed) classify(title string) string {
	if strings.Contains(title, feedReplyPrefix) && f.config.ReplyChannelID != "" {
		return f.config.ReplyChannelID
	}
	return f.config.ThreadChannelID
}

func indexOfStatistics(body string) int {
	return strings.Index(body, feedStatisticsMarker)
}
