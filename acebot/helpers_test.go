package acebot

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDiscordSession implements DiscordSessionHandler, recording
// everything sent through it.
type mockDiscordSession struct {
	mu sync.Mutex

	messages     []mockSentMessage
	embeds       []mockSentEmbed
	complexSends []mockComplexSend
	edits        []*discordgo.MessageEdit
	replies      []mockSentMessage
	ackTypes     []discordgo.InteractionResponseType

	channelType    discordgo.ChannelType
	permissions    int64
	permissionsErr error
	nextMessageID  int
}

type mockSentMessage struct {
	channelID string
	content   string
}

type mockSentEmbed struct {
	channelID string
	embed     *discordgo.MessageEmbed
}

type mockComplexSend struct {
	channelID string
	data      *discordgo.MessageSend
}

func newMockDiscordSession() *mockDiscordSession {
	return &mockDiscordSession{
		channelType: discordgo.ChannelTypeGuildText,
		permissions: discordgo.PermissionEmbedLinks,
	}
}

func (m *mockDiscordSession) messageID() string {
	m.nextMessageID++
	return fmt.Sprintf("message-%d", m.nextMessageID)
}

func (m *mockDiscordSession) Open() error  { return nil }
func (m *mockDiscordSession) Close() error { return nil }

func (m *mockDiscordSession) AddHandler(any) func() {
	return func() {}
}

func (m *mockDiscordSession) ChannelMessageSend(
	channelID string,
	content string,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(
		m.messages, mockSentMessage{channelID: channelID, content: content},
	)
	return &discordgo.Message{ID: m.messageID()}, nil
}

func (m *mockDiscordSession) ChannelMessageSendEmbed(
	channelID string,
	embed *discordgo.MessageEmbed,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embeds = append(
		m.embeds, mockSentEmbed{channelID: channelID, embed: embed},
	)
	return &discordgo.Message{ID: m.messageID()}, nil
}

func (m *mockDiscordSession) ChannelMessageSendComplex(
	channelID string,
	data *discordgo.MessageSend,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.complexSends = append(
		m.complexSends, mockComplexSend{channelID: channelID, data: data},
	)
	return &discordgo.Message{ID: m.messageID()}, nil
}

func (m *mockDiscordSession) ChannelMessageSendReply(
	channelID string,
	content string,
	_ *discordgo.MessageReference,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(
		m.replies, mockSentMessage{channelID: channelID, content: content},
	)
	return &discordgo.Message{ID: m.messageID()}, nil
}

func (m *mockDiscordSession) ChannelMessageEditComplex(
	edit *discordgo.MessageEdit,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, edit)
	return &discordgo.Message{ID: edit.ID}, nil
}

func (m *mockDiscordSession) InteractionRespond(
	_ *discordgo.Interaction,
	resp *discordgo.InteractionResponse,
	_ ...discordgo.RequestOption,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ackTypes = append(m.ackTypes, resp.Type)
	return nil
}

func (m *mockDiscordSession) Channel(
	channelID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Channel, error) {
	return &discordgo.Channel{ID: channelID, Type: m.channelType}, nil
}

func (m *mockDiscordSession) UserChannelPermissions(
	string, string, ...discordgo.RequestOption,
) (int64, error) {
	return m.permissions, m.permissionsErr
}

func (m *mockDiscordSession) UpdateCustomStatus(string) error { return nil }

func (m *mockDiscordSession) SetLogLevel(slog.Level) error { return nil }

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	assert.Equal(t, "héll", truncate("héllo", 4))
}

func TestChunkItems(t *testing.T) {
	chunks := chunkItems(2, 1, 2, 3, 4, 5)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{1, 2}, chunks[0])
	assert.Equal(t, []int{3, 4}, chunks[1])
	assert.Equal(t, []int{5}, chunks[2])

	assert.Nil(t, chunkItems[int](3))
}

func TestGenerateRandomHexString(t *testing.T) {
	first, err := generateRandomHexString(16)
	require.NoError(t, err)
	assert.Len(t, first, 16)

	second, err := generateRandomHexString(16)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestStringPointerValue(t *testing.T) {
	assert.Equal(t, "", stringPointerValue(nil))
	s := "value"
	assert.Equal(t, "value", stringPointerValue(&s))
}
