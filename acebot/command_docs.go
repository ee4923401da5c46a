package acebot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	docsListResultCount = 7

	noPageDescription = "No description for this page."
)

// docsURL joins a docs-relative link onto the configured docs base URL.
func (b *AceBot) docsURL(link *string) string {
	if link == nil {
		return ""
	}
	return b.config.Docs.BaseURL + strings.TrimPrefix(*link, "/")
}

// renderDocsEntry builds the embed for a single resolved docs entry:
// title is the matched name, description is the entry content with the
// syntax block (if any) appended as a code fence.
func (b *AceBot) renderDocsEntry(
	match DocsMatch,
	entry *DocsEntry,
	syntax *DocsSyntax,
) *discordgo.MessageEmbed {
	embed := newDocsEmbed()
	embed.Title = truncate(match.Name.Name, discordEmbedTitleMaxLength)
	embed.URL = b.docsURL(entry.Link)

	description := entry.Content
	if description == "" {
		description = noPageDescription
	}
	if syntax != nil {
		description += fmt.Sprintf("\n```autoit\n%s\n```", syntax.Syntax)
	}
	embed.Description = truncateContent(description, feedDescriptionMaxLength)
	if b.config.Docs.FooterText != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text:    b.config.Docs.FooterText,
			IconURL: b.config.Docs.FooterIconURL,
		}
	}
	return embed
}

// commandDocs implements the docs lookup command: each comma-separated
// subquery resolves to its best match and gets its own embed.
func (b *AceBot) commandDocs() *Command {
	return &Command{
		Name:              "docs",
		Aliases:           []string{"d", "doc", "rtfm"},
		Usage:             "<query>[, <query>...]",
		Description:       "Look up documentation entries",
		RequireEmbedLinks: true,
		Cooldown:          2 * time.Second,
		Run: func(ctx context.Context, cc *CommandContext) error {
			if cc.Args == "" {
				return malformedArgumentError(
					fmt.Errorf("docs command requires a query"),
				)
			}
			matches, err := b.resolver.ResolveEach(cc.Args)
			if err != nil {
				return err
			}
			for _, match := range matches {
				entry, entryErr := b.store.GetEntry(match.Name.DocsID)
				if entryErr != nil {
					return entryErr
				}
				if entry == nil {
					cc.Logger.Warn(
						"name row points at missing entry", "match", match.Name.Name,
					)
					return ErrNoMatch
				}
				syntax, syntaxErr := b.store.GetSyntax(entry.ID)
				if syntaxErr != nil {
					return syntaxErr
				}
				if sendErr := cc.SendEmbed(
					ctx, b.renderDocsEntry(match, entry, syntax),
				); sendErr != nil {
					return sendErr
				}
			}
			return nil
		},
	}
}

// commandDocsList implements the multi-result lookup command: the top
// matches for one query, rendered as a linked list in a single embed.
func (b *AceBot) commandDocsList() *Command {
	return &Command{
		Name:              "docslist",
		Aliases:           []string{"dl"},
		Usage:             "<query>",
		Description:       "List the closest documentation matches for a query",
		RequireEmbedLinks: true,
		Cooldown:          2 * time.Second,
		Run: func(ctx context.Context, cc *CommandContext) error {
			if cc.Args == "" {
				return malformedArgumentError(
					fmt.Errorf("docslist command requires a query"),
				)
			}
			matches, err := b.resolver.Resolve(cc.Args, docsListResultCount)
			if err != nil {
				return err
			}

			lines := make([]string, 0, len(matches))
			for _, match := range matches {
				entry, entryErr := b.store.GetEntry(match.Name.DocsID)
				if entryErr != nil {
					return entryErr
				}
				if entry == nil {
					continue
				}
				if url := b.docsURL(entry.Link); url != "" {
					lines = append(
						lines,
						fmt.Sprintf("[`%s`](%s)", match.Name.Name, url),
					)
				} else {
					lines = append(lines, fmt.Sprintf("`%s`", match.Name.Name))
				}
			}
			if len(lines) == 0 {
				return ErrNoMatch
			}

			embed := newDocsEmbed()
			embed.Title = fmt.Sprintf(
				"Results for %q", truncate(cc.Args, 64),
			)
			embed.Description = strings.Join(lines, "\n")
			return cc.SendEmbed(ctx, embed)
		},
	}
}

// DocsPageRenderer renders pager pages for a docs page listing: the page
// header's description followed by one link line per sub-entry.
type DocsPageRenderer struct {
	bot    *AceBot
	header DocsEntry
}

func (r DocsPageRenderer) CraftPage(
	pageIndex int,
	entries []DocsEntry,
) *discordgo.MessageEmbed {
	embed := newDocsEmbed()
	embed.Title = truncate(
		stringPointerValue(r.header.Page), discordEmbedTitleMaxLength,
	)
	embed.URL = r.bot.docsURL(r.header.Link)

	description := r.header.Content
	if description == "" {
		description = noPageDescription
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		label := stringPointerValue(entry.Fragment)
		if url := r.bot.docsURL(entry.Link); url != "" {
			lines = append(lines, fmt.Sprintf("[`%s`](%s)", label, url))
		} else {
			lines = append(lines, fmt.Sprintf("`%s`", label))
		}
	}
	if len(lines) > 0 {
		description += "\n\n" + strings.Join(lines, "\n")
	}
	embed.Description = truncateContent(description, feedDescriptionMaxLength)
	embed.Footer = &discordgo.MessageEmbedFooter{
		Text: fmt.Sprintf("Page %d", pageIndex+1),
	}
	return embed
}

// commandDocsPage implements the page-listing command: the closest page
// header for the query, with its sub-entries paged through button
// navigation.
func (b *AceBot) commandDocsPage() *Command {
	return &Command{
		Name:              "docspage",
		Aliases:           []string{"dp"},
		Usage:             "<page>",
		Description:       "Browse all entries on a documentation page",
		RequireEmbedLinks: true,
		Cooldown:          2 * time.Second,
		Run: func(ctx context.Context, cc *CommandContext) error {
			if cc.Args == "" {
				return malformedArgumentError(
					fmt.Errorf("docspage command requires a page name"),
				)
			}
			header, err := b.store.FindPageHeader(cc.Args)
			if err != nil {
				return err
			}
			if header == nil {
				return ErrNoMatch
			}
			entries, err := b.store.FindEntriesOnPage(*header.Page)
			if err != nil {
				return err
			}

			pager, err := NewPager(
				cc.Session,
				DocsPageRenderer{bot: b, header: *header},
				cc.User.ID,
				cc.Message.ChannelID,
				entries,
				b.config.Docs.PageSize,
				b.config.Docs.PagerIdleTimeout,
				cc.Logger,
			)
			if err != nil {
				return err
			}
			if err = pager.Start(ctx); err != nil {
				return err
			}
			b.pagers.Add(pager)
			return nil
		},
	}
}

// commandBuild implements the owner-only corpus rebuild command, with
// progress messages around the slow parts.
func (b *AceBot) commandBuild() *Command {
	return &Command{
		Name:        "build",
		Usage:       "",
		Description: "Rebuild the documentation corpus from the docs index",
		OwnerOnly:   true,
		Run: func(ctx context.Context, cc *CommandContext) error {
			if err := cc.Reply(ctx, "Fetching documentation index..."); err != nil {
				cc.Logger.Warn("error sending progress message", tint.Err(err))
			}
			entries, err := b.corpusSource.Entries(ctx)
			if err != nil {
				return err
			}

			if err = cc.Reply(
				ctx,
				fmt.Sprintf("Parsed %d entries, rebuilding corpus...", len(entries)),
			); err != nil {
				cc.Logger.Warn("error sending progress message", tint.Err(err))
			}
			if err = b.store.Rebuild(ctx, entries); err != nil {
				return err
			}

			counts, err := b.store.Counts()
			if err != nil {
				return err
			}
			return cc.Reply(
				ctx,
				fmt.Sprintf(
					"Corpus rebuilt: %d entries, %d names, %d syntax blocks.",
					counts.Entries, counts.Names, counts.Syntaxes,
				),
			)
		},
	}
}
