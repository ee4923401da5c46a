package acebot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testReleaseJSON = `{
	"name": "v1.1.37.02",
	"tag_name": "v1.1.37.02",
	"html_url": "https://github.com/AutoHotkey/AutoHotkey/releases/tag/v1.1.37.02",
	"body": "Fixed a crash in the parser.",
	"author": {
		"login": "lexikos",
		"avatar_url": "https://avatars.example/u/1",
		"html_url": "https://github.com/lexikos"
	},
	"assets": [
		{
			"name": "AutoHotkey_1.1.37.02_setup.exe",
			"browser_download_url": "https://github.com/AutoHotkey/AutoHotkey/releases/download/v1.1.37.02/AutoHotkey_1.1.37.02_setup.exe",
			"download_count": 12345
		}
	]
}`

func TestCommandVersion(t *testing.T) {
	ctx := context.Background()
	server := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(
					t, "application/vnd.github+json", r.Header.Get("Accept"),
				)
				_, _ = w.Write([]byte(testReleaseJSON))
			},
		),
	)
	defer server.Close()

	bot, session := newTestBot(t)
	bot.config.Docs.ReleasesURL = server.URL

	bot.commands.HandleMessage(ctx, testMessage(".version"))

	require.Len(t, session.embeds, 1)
	embed := session.embeds[0].embed
	assert.Equal(t, "v1.1.37.02", embed.Title)
	require.NotNil(t, embed.Author)
	assert.Equal(t, "lexikos", embed.Author.Name)
	assert.Contains(t, embed.Description, "Fixed a crash in the parser.")

	require.Len(t, embed.Fields, 3)
	assert.Equal(t, "Installer download", embed.Fields[1].Name)
	assert.Equal(t, "12345", embed.Fields[2].Value)
}

func TestCommandVersionUpstreamFailure(t *testing.T) {
	ctx := context.Background()
	server := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
		),
	)
	defer server.Close()

	bot, session := newTestBot(t)
	bot.config.Docs.ReleasesURL = server.URL

	bot.commands.HandleMessage(ctx, testMessage(".version"))

	assert.Empty(t, session.embeds)
	require.Len(t, session.messages, 1)
	assert.Equal(t, "Query failed.", session.messages[0].content)
}
