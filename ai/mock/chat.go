package mock

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// ErrNoResponse is returned by MockChatModel when its scripted responses run out.
var ErrNoResponse = errors.New("mock chat model: no scripted response left")

// ChatReply is one scripted MockChatModel answer.
type ChatReply struct {
	Content string
	Err     error
}

// MockChatModel is a test double for llms.Model that replays scripted
// replies in order and records the messages of every call.
type MockChatModel struct {
	// GenerateFunc replaces the scripted replies when set.
	GenerateFunc func(ctx context.Context, messages []llms.MessageContent) (string, error)

	mu      sync.Mutex
	replies []ChatReply
	calls   [][]llms.MessageContent
}

var _ llms.Model = (*MockChatModel)(nil)

// NewMockChatModel creates a chat model that answers with replies in order.
func NewMockChatModel(replies ...ChatReply) *MockChatModel {
	return &MockChatModel{replies: replies}
}

// Respond appends successful replies to the script.
func (m *MockChatModel) Respond(contents ...string) *MockChatModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range contents {
		m.replies = append(m.replies, ChatReply{Content: c})
	}
	return m
}

// Fail appends a failing reply to the script.
func (m *MockChatModel) Fail(err error) *MockChatModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, ChatReply{Err: err})
	return m
}

// GenerateContent returns the next scripted reply.
func (m *MockChatModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]llms.MessageContent(nil), messages...))
	generate := m.GenerateFunc
	var (
		reply ChatReply
		ok    bool
	)
	if generate == nil && len(m.replies) > 0 {
		reply, ok = m.replies[0], true
		m.replies = m.replies[1:]
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if generate != nil {
		content, err := generate(ctx, messages)
		if err != nil {
			return nil, err
		}
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: content}}}, nil
	}
	if !ok {
		return nil, ErrNoResponse
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply.Content}}}, nil
}

// Call implements the text-only llms.Model entry point.
func (m *MockChatModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// CallCount returns the number of GenerateContent calls made.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// SystemPrompts returns the joined system text of call i.
func (m *MockChatModel) SystemPrompts(i int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.calls) {
		return ""
	}
	var parts []string
	for _, msg := range m.calls[i] {
		if msg.Role != llms.ChatMessageTypeSystem {
			continue
		}
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				parts = append(parts, text.Text)
			}
		}
	}
	return strings.Join(parts, "\n")
}
