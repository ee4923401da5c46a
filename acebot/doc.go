// Package acebot implements a Discord bot for AutoHotkey communities:
// fast documentation lookup backed by a rebuildable corpus, paged page
// listings, and a forum feed relay.
//
// Key components of the package include:
//
//   - AceBot: The main struct that encapsulates the bot's core functionality.
//   - Discord: Handles Discord integration and gateway events.
//   - DocsStore: The documentation corpus, backed by the database plus an
//     in-memory name index.
//   - DocsResolver: Resolves free-text queries against the corpus, in
//     exact/similarity/fuzzy tiers.
//   - PagerRegistry: Tracks button-navigated pager sessions.
//   - ForumFeed: Polls the forum Atom feed and relays new entries.
//   - API: Provides a backend API for monitoring and corpus rebuilds.
//
// The bot supports prefix commands:
//
//   - .docs: Look up documentation entries by name, comma-separated for
//     multiple queries.
//   - .docslist: List the closest matches for one query.
//   - .docspage: Browse every entry on a documentation page.
//   - .build: Rebuild the corpus from the docs index (owner only).
//   - .version: Show the latest AutoHotkey release.
//
// The package also includes per-user command cooldowns, a user blacklist,
// and extensive logging to ensure smooth operation and easy
// troubleshooting.
package acebot
