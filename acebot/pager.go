package acebot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	// DefaultPagerPageSize is the number of entries rendered per page.
	DefaultPagerPageSize = 12

	// DefaultPagerIdleTimeout is how long a pager session survives
	// without navigation input before its controls are detached.
	DefaultPagerIdleTimeout = 4 * time.Minute

	// pagerReapInterval is how often expired pager sessions are swept.
	pagerReapInterval = 30 * time.Second

	pagerCustomIDPrefix = "pager"
	pagerDirectionPrev  = "prev"
	pagerDirectionNext  = "next"
	pagerIDLength       = 16
)

// PageRenderer crafts the embed for a single page. The generic [Pager]
// owns pagination and navigation mechanics; renderers own only content
// formatting. entries is never longer than the configured page size, and
// pageIndex is zero-based.
type PageRenderer interface {
	CraftPage(pageIndex int, entries []DocsEntry) *discordgo.MessageEmbed
}

// Pager renders an ordered set of entries as fixed-size pages with
// prev/next button components. Navigation is restricted to the invoking
// user, serialized per session, and the session expires after an idle
// window, at which point the buttons are detached and further input is
// ignored.
type Pager struct {
	id          string
	ownerID     string
	channelID   string
	messageID   string
	entries     []DocsEntry
	pageSize    int
	idleTimeout time.Duration
	renderer    PageRenderer
	session     DiscordSessionHandler
	logger      *slog.Logger

	mu        sync.Mutex
	page      int
	lastInput time.Time
	expired   bool
}

func NewPager(
	session DiscordSessionHandler,
	renderer PageRenderer,
	ownerID string,
	channelID string,
	entries []DocsEntry,
	pageSize int,
	idleTimeout time.Duration,
	logger *slog.Logger,
) (*Pager, error) {
	if pageSize <= 0 {
		pageSize = DefaultPagerPageSize
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultPagerIdleTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	id, err := generateRandomHexString(pagerIDLength)
	if err != nil {
		return nil, fmt.Errorf("error generating pager id: %w", err)
	}
	return &Pager{
		id:          id,
		ownerID:     ownerID,
		channelID:   channelID,
		entries:     entries,
		pageSize:    pageSize,
		idleTimeout: idleTimeout,
		renderer:    renderer,
		session:     session,
		lastInput:   time.Now(),
		logger: logger.With(
			loggerNameKey, "pager",
			"pager_id", id,
			"owner_id", ownerID,
		),
	}, nil
}

// TotalPages returns the page count: ceil(len(entries) / pageSize), with
// a minimum of one page.
func (p *Pager) TotalPages() int {
	if len(p.entries) == 0 {
		return 1
	}
	return (len(p.entries) + p.pageSize - 1) / p.pageSize
}

func (p *Pager) pageEntries(page int) []DocsEntry {
	chunks := chunkItems(p.pageSize, p.entries...)
	if page < 0 || page >= len(chunks) {
		return nil
	}
	return chunks[page]
}

func (p *Pager) components() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "◀",
					Style:    discordgo.SecondaryButton,
					CustomID: p.customID(pagerDirectionPrev),
				},
				discordgo.Button{
					Label:    "▶",
					Style:    discordgo.SecondaryButton,
					CustomID: p.customID(pagerDirectionNext),
				},
			},
		},
	}
}

func (p *Pager) customID(direction string) string {
	return fmt.Sprintf(
		"%s:%s:%s", pagerCustomIDPrefix, p.id, direction,
	)
}

// Start renders page zero and sends it. Navigation buttons are only
// attached when there's more than one page.
func (p *Pager) Start(ctx context.Context) error {
	embed := p.renderer.CraftPage(0, p.pageEntries(0))
	send := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
	if p.TotalPages() > 1 {
		send.Components = p.components()
	}
	msg, err := p.session.ChannelMessageSendComplex(
		p.channelID, send, discordgo.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("error sending pager message: %w", err)
	}
	p.messageID = msg.ID
	return nil
}

// Navigate processes one navigation input. Input from anyone but the
// owner is ignored, as is any input after expiry. The page index is
// clamped to [0, TotalPages-1]; navigating past either end is a no-op.
// The session mutex serializes concurrent clicks.
func (p *Pager) Navigate(ctx context.Context, userID string, direction string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.expired {
		return
	}
	if userID != p.ownerID {
		p.logger.Debug("ignoring navigation from non-owner", "user_id", userID)
		return
	}
	p.lastInput = time.Now()

	newPage := p.page
	switch direction {
	case pagerDirectionPrev:
		newPage--
	case pagerDirectionNext:
		newPage++
	default:
		return
	}
	if newPage < 0 || newPage >= p.TotalPages() {
		return
	}
	p.page = newPage

	embed := p.renderer.CraftPage(newPage, p.pageEntries(newPage))
	edit := discordgo.NewMessageEdit(p.channelID, p.messageID)
	edit.Embeds = &[]*discordgo.MessageEmbed{embed}
	if _, err := p.session.ChannelMessageEditComplex(
		edit, discordgo.WithContext(ctx),
	); err != nil {
		p.logger.Error("error editing pager message", tint.Err(err))
	}
}

// CurrentPage returns the zero-based current page index.
func (p *Pager) CurrentPage() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page
}

// Expired reports whether the session has expired.
func (p *Pager) Expired() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.expired
}

// expireIfIdle expires the session if no input has arrived within the
// idle window, detaching the navigation components. Returns true when the
// session is expired (whether by this call or earlier).
func (p *Pager) expireIfIdle(ctx context.Context, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.expired {
		return true
	}
	if now.Sub(p.lastInput) < p.idleTimeout {
		return false
	}
	p.expired = true

	if p.messageID != "" && p.TotalPages() > 1 {
		edit := discordgo.NewMessageEdit(p.channelID, p.messageID)
		edit.Components = &[]discordgo.MessageComponent{}
		if _, err := p.session.ChannelMessageEditComplex(
			edit, discordgo.WithContext(ctx),
		); err != nil {
			p.logger.Error(
				"error detaching pager components", tint.Err(err),
			)
		}
	}
	p.logger.Info("pager session expired")
	return true
}

// PagerRegistry tracks live pager sessions and routes message component
// interactions to them.
type PagerRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Pager
	logger   *slog.Logger
}

func NewPagerRegistry(logger *slog.Logger) *PagerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &PagerRegistry{
		sessions: map[string]*Pager{},
		logger:   logger.With(loggerNameKey, "pager_registry"),
	}
}

func (r *PagerRegistry) Add(p *Pager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[p.id] = p
}

func (r *PagerRegistry) Get(id string) *Pager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

func (r *PagerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// HandleComponent routes a button interaction to its pager session.
// Returns false when the custom ID isn't a pager ID or the session no
// longer exists.
func (r *PagerRegistry) HandleComponent(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) bool {
	if i.Type != discordgo.InteractionMessageComponent {
		return false
	}
	pagerID, direction, ok := decodePagerCustomID(i.MessageComponentData().CustomID)
	if !ok {
		return false
	}
	pager := r.Get(pagerID)
	if pager == nil {
		return false
	}

	// ack first so discord doesn't show the interaction as failed
	if err := pager.session.InteractionRespond(
		i.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredMessageUpdate,
		},
		discordgo.WithContext(ctx),
	); err != nil {
		r.logger.Error("error acknowledging pager interaction", tint.Err(err))
	}

	user := getDiscordUser(i)
	if user == nil {
		return true
	}
	pager.Navigate(ctx, user.ID, direction)
	return true
}

// Reap expires idle sessions and drops expired ones from the registry.
// Returns the number of sessions removed.
func (r *PagerRegistry) Reap(ctx context.Context, now time.Time) int {
	r.mu.Lock()
	pagers := make([]*Pager, 0, len(r.sessions))
	for _, p := range r.sessions {
		pagers = append(pagers, p)
	}
	r.mu.Unlock()

	removed := 0
	for _, p := range pagers {
		if p.expireIfIdle(ctx, now) {
			r.mu.Lock()
			delete(r.sessions, p.id)
			r.mu.Unlock()
			removed++
		}
	}
	return removed
}

// RunReaper sweeps idle sessions until the context is cancelled.
func (r *PagerRegistry) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(pagerReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := r.Reap(ctx, now); removed > 0 {
				r.logger.Debug("reaped pager sessions", "removed", removed)
			}
		}
	}
}

func decodePagerCustomID(customID string) (id string, direction string, ok bool) {
	parts := strings.Split(customID, ":")
	if len(parts) != 3 || parts[0] != pagerCustomIDPrefix {
		return "", "", false
	}
	return parts[1], parts[2], true
}
