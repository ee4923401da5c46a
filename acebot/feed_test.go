package acebot

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedEntryTemplate = `<entry>
<id>https://www.autohotkey.com/boards/viewtopic.php?p=%d</id>
<title type="html">%s</title>
<updated>%s</updated>
<author><name>someuser</name></author>
<category term="Ask for Help" label="Ask for Help"/>
<content type="html">&lt;p&gt;%s&lt;/p&gt;</content>
</entry>`

func atomFeedBody(entries ...string) string {
	body := `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
<id>https://www.autohotkey.com/boards/feed</id>
<title type="html">AutoHotkey Community</title>
<updated>2024-06-01T12:00:00+00:00</updated>`
	for _, entry := range entries {
		body += "\n" + entry
	}
	return body + "\n</feed>"
}

func feedEntry(id int, title string, updated time.Time, body string) string {
	return fmt.Sprintf(
		feedEntryTemplate,
		id,
		title,
		updated.Format(time.RFC3339),
		body,
	)
}

func newTestForumFeed(url string) (*ForumFeed, *mockDiscordSession) {
	session := newMockDiscordSession()
	feed := NewForumFeed(
		&FeedConfig{
			URL:             url,
			ThreadChannelID: "thread-channel",
			ReplyChannelID:  "reply-channel",
			FooterText:      "AutoHotkey Community",
		},
		session,
		http.DefaultClient,
		nil,
	)
	return feed, session
}

func TestForumFeedPoll(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, _ *http.Request) {
				_, _ = fmt.Fprint(
					w, atomFeedBody(
						feedEntry(1, "old thread", base.Add(-10*time.Minute), "stale"),
						feedEntry(2, "boundary thread", base.Add(-5*time.Minute), "stale"),
						feedEntry(3, "fresh thread", base.Add(5*time.Minute), "hello world"),
					),
				)
			},
		),
	)
	defer server.Close()

	feed, session := newTestForumFeed(server.URL)
	feed.SetWatermark(base.Add(-5 * time.Minute))

	feed.poll(context.Background())

	require.Len(t, session.embeds, 1, "only the entry past the watermark emits")
	sent := session.embeds[0]
	assert.Equal(t, "thread-channel", sent.channelID)
	assert.Equal(t, "fresh thread", sent.embed.Title)
	assert.Equal(t, "hello world", sent.embed.Description)
	assert.Equal(
		t,
		"https://www.autohotkey.com/boards/viewtopic.php?p=3",
		sent.embed.URL,
	)
	require.NotNil(t, sent.embed.Footer)
	assert.Equal(t, "AutoHotkey Community", sent.embed.Footer.Text)

	assert.Equal(t, base.Add(5*time.Minute), feed.Watermark())
	assert.Equal(t, int64(1), feed.metricTicks.Load())
	assert.Equal(t, int64(1), feed.metricEmitted.Load())

	// a second poll over the same feed is idempotent
	feed.poll(context.Background())
	assert.Len(t, session.embeds, 1)
	assert.Equal(t, base.Add(5*time.Minute), feed.Watermark())
}

func TestForumFeedRepliesRouteToReplyChannel(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, _ *http.Request) {
				_, _ = fmt.Fprint(
					w, atomFeedBody(
						feedEntry(10, "• Re: existing thread", base.Add(time.Minute), "a reply"),
						feedEntry(11, "brand new thread", base.Add(2*time.Minute), "a thread"),
					),
				)
			},
		),
	)
	defer server.Close()

	feed, session := newTestForumFeed(server.URL)
	feed.SetWatermark(base)

	feed.poll(context.Background())

	require.Len(t, session.embeds, 2)
	// ascending timestamp order: the reply first
	assert.Equal(t, "reply-channel", session.embeds[0].channelID)
	assert.Equal(t, "thread-channel", session.embeds[1].channelID)
}

func TestForumFeedRepliesFallBackToThreadChannel(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, _ *http.Request) {
				_, _ = fmt.Fprint(
					w, atomFeedBody(
						feedEntry(12, "• Re: existing thread", base.Add(time.Minute), "a reply"),
					),
				)
			},
		),
	)
	defer server.Close()

	feed, session := newTestForumFeed(server.URL)
	feed.config.ReplyChannelID = ""
	feed.SetWatermark(base)

	feed.poll(context.Background())

	// with no reply channel configured, replies still emit
	require.Len(t, session.embeds, 1)
	assert.Equal(t, "thread-channel", session.embeds[0].channelID)
	assert.Equal(t, "• Re: existing thread", session.embeds[0].embed.Title)
}

func TestForumFeedSkipsFailedFetch(t *testing.T) {
	server := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		),
	)
	defer server.Close()

	feed, session := newTestForumFeed(server.URL)
	watermark := feed.Watermark()

	feed.poll(context.Background())

	assert.Empty(t, session.embeds)
	assert.Equal(t, watermark, feed.Watermark())
	assert.Equal(t, int64(1), feed.metricTicks.Load())
	assert.Equal(t, int64(0), feed.metricEmitted.Load())
}

func TestForumFeedStripsStatisticsTrailer(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, _ *http.Request) {
				_, _ = fmt.Fprint(
					w, atomFeedBody(
						feedEntry(
							20,
							"thread with stats",
							base.Add(time.Minute),
							"the post body Statistics: posted by someuser",
						),
					),
				)
			},
		),
	)
	defer server.Close()

	feed, session := newTestForumFeed(server.URL)
	feed.SetWatermark(base)

	feed.poll(context.Background())

	require.Len(t, session.embeds, 1)
	assert.Equal(t, "the post body", session.embeds[0].embed.Description)
	assert.NotContains(t, session.embeds[0].embed.Description, "Statistics:")
}
