package acebot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// gitHubRelease is the subset of the GitHub release payload the version
// command renders.
type gitHubRelease struct {
	Name    string `json:"name"`
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
	Body    string `json:"body"`
	Author  struct {
		Login     string `json:"login"`
		AvatarURL string `json:"avatar_url"`
		HTMLURL   string `json:"html_url"`
	} `json:"author"`
	Assets []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
		DownloadCount      int    `json:"download_count"`
	} `json:"assets"`
}

// fetchLatestRelease queries the configured releases endpoint.
func (b *AceBot) fetchLatestRelease(ctx context.Context) (*gitHubRelease, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, b.config.Docs.ReleasesURL, nil,
	)
	if err != nil {
		return nil, fmt.Errorf("error creating releases request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, upstreamError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(
			fmt.Errorf("releases endpoint returned status %d", resp.StatusCode),
		)
	}

	var release gitHubRelease
	if err = json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, upstreamError(fmt.Errorf("error decoding release: %w", err))
	}
	return &release, nil
}

// commandVersion implements the version command: the latest upstream
// release, with its notes and download links.
func (b *AceBot) commandVersion() *Command {
	return &Command{
		Name:              "version",
		Aliases:           []string{"ver"},
		Usage:             "",
		Description:       "Show the latest AutoHotkey release",
		RequireEmbedLinks: true,
		Cooldown:          5 * time.Second,
		Run: func(ctx context.Context, cc *CommandContext) error {
			release, err := b.fetchLatestRelease(ctx)
			if err != nil {
				return err
			}

			title := release.Name
			if title == "" {
				title = release.TagName
			}
			embed := newEmbed()
			embed.Title = truncate(title, discordEmbedTitleMaxLength)
			embed.URL = release.HTMLURL
			embed.Author = &discordgo.MessageEmbedAuthor{
				Name:    release.Author.Login,
				URL:     release.Author.HTMLURL,
				IconURL: release.Author.AvatarURL,
			}
			if notes := strings.TrimSpace(release.Body); notes != "" {
				embed.Description = truncateContent(
					fmt.Sprintf("Update notes:\n```\n%s\n```", notes),
					feedDescriptionMaxLength,
				)
			}

			embed.Fields = append(
				embed.Fields, &discordgo.MessageEmbedField{
					Name:   "Release page",
					Value:  release.HTMLURL,
					Inline: false,
				},
			)
			if len(release.Assets) > 0 {
				asset := release.Assets[0]
				embed.Fields = append(
					embed.Fields,
					&discordgo.MessageEmbedField{
						Name:   "Installer download",
						Value:  asset.BrowserDownloadURL,
						Inline: false,
					},
					&discordgo.MessageEmbedField{
						Name:   "Downloads",
						Value:  fmt.Sprintf("%d", asset.DownloadCount),
						Inline: true,
					},
				)
			}
			return cc.SendEmbed(ctx, embed)
		},
	}
}
