package acebot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"gorm.io/gorm/clause"
)

var (
	columnUserID         = "id"
	columnUserIgnored    = "ignored"
	columnUserUsername   = "username"
	columnUserGlobalName = "global_name"
	columnUserLastSeen   = "last_seen"
)

// User is a record of a Discord user, and their current state.
// See: https://discord.com/developers/docs/resources/user
type User struct {
	// ID is the Discord user ID
	ID string `json:"id" gorm:"primaryKey;unique;type:string"`

	// Username, not unique
	Username string `json:"username" gorm:"type:string"`

	// User's display name - for bots, the application name
	GlobalName string `json:"global_name" gorm:"type:string"`

	// Indicates this user is a Discord bot user. Bots are always ignored.
	Bot bool `json:"bot" gorm:"type:bool"`

	// JSON content of the discord user object
	Content string `json:"content" gorm:"type:string"`

	// If true, commands from this user are silently dropped
	Ignored bool `json:"ignored" gorm:"type:bool;default:false"`

	// LastSeen is the last time this user sent a command or clicked a
	// pager button
	LastSeen int64 `json:"last_seen" gorm:"column:last_seen"`

	ModelUnixTime
}

func NewUser(u discordgo.User) (*User, error) {
	content, err := json.Marshal(u)
	user := User{
		ID:         u.ID,
		Username:   u.Username,
		Ignored:    u.Bot,
		Content:    string(content),
		GlobalName: u.GlobalName,
		Bot:        u.Bot,
		LastSeen:   time.Now().UTC().UnixMilli(),
	}
	return &user, err
}

func (u *User) String() string {
	return fmt.Sprintf("%s [%s]", u.Username, u.ID)
}

func (u *User) LogValue() slog.Value {
	if u == nil {
		return slog.Value{}
	}
	return slog.GroupValue(
		slog.String(columnUserID, u.ID),
		slog.String(columnUserUsername, u.Username),
		slog.String(columnUserGlobalName, u.GlobalName),
		slog.Bool(columnUserIgnored, u.Ignored),
	)
}

// userChangedDiscordUsername compares [User.Username] and [User.GlobalName]
// with the given discordgo.User, and returns a bool indicating whether
// either field has changed (true) or not (false). This helps avoid 'drift'
// if the user updates their Discord profile.
func (u *User) userChangedDiscordUsername(d discordgo.User) bool {
	return (d.Username != u.Username) || (d.GlobalName != u.GlobalName)
}

// UserCache caches known users by ID, so the database is only hit the
// first time a user is seen (or when their profile changes).
type UserCache struct {
	db     DBI
	logger *slog.Logger

	mu    sync.Mutex
	users map[string]*User
}

func NewUserCache(db DBI, logger *slog.Logger) *UserCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserCache{
		db:     db,
		logger: logger.With(loggerNameKey, "user_cache"),
		users:  map[string]*User{},
	}
}

// GetOrCreateUser returns the cached User for the given discord user,
// loading or creating the database record on first sight. Username and
// global name changes are written back on the fly.
func (c *UserCache) GetOrCreateUser(u discordgo.User) (*User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	user, ok := c.users[u.ID]
	if ok {
		if user.userChangedDiscordUsername(u) {
			user.Username = u.Username
			user.GlobalName = u.GlobalName
			if _, err := c.db.Updates(
				user, map[string]any{
					columnUserUsername:   u.Username,
					columnUserGlobalName: u.GlobalName,
				},
			); err != nil {
				return nil, fmt.Errorf("error updating user: %w", err)
			}
		}
		return user, nil
	}

	user, err := NewUser(u)
	if err != nil {
		return nil, fmt.Errorf("error serializing user: %w", err)
	}
	if err = c.db.DB().Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: columnUserID}},
			DoNothing: true,
		},
	).Create(user).Error; err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	// reload so an existing row (ignored flag included) wins over the
	// freshly constructed one
	var existing User
	if err = c.db.DB().Where("id = ?", u.ID).First(&existing).Error; err == nil {
		user = &existing
	}
	c.users[u.ID] = user
	c.logger.Debug("cached user", "user", user)
	return user, nil
}

// SetIgnored flips the user's ignored flag and updates the cache.
func (c *UserCache) SetIgnored(userID string, ignored bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Update(
		&User{ID: userID}, columnUserIgnored, ignored,
	); err != nil {
		return err
	}
	if user, ok := c.users[userID]; ok {
		user.Ignored = ignored
	}
	return nil
}

// TouchLastSeen updates the user's last-seen timestamp, in cache and
// database. Failures are logged, not returned; last-seen is advisory.
func (c *UserCache) TouchLastSeen(user *User) {
	now := time.Now().UTC().UnixMilli()
	user.LastSeen = now
	if _, err := c.db.Update(
		&User{ID: user.ID}, columnUserLastSeen, now,
	); err != nil {
		c.logger.Warn("error updating user last_seen", "user", user)
	}
}

// Count returns the number of user records.
func (c *UserCache) Count() (int64, error) {
	var count int64
	err := c.db.DB().Model(&User{}).Count(&count).Error
	return count, err
}
