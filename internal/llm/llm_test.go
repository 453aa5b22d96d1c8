package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

type fakeModel struct {
	got  []llms.MessageContent
	opts llms.CallOptions
	resp *llms.ContentResponse
	err  error
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.got = messages
	for _, o := range options {
		o(&f.opts)
	}
	return f.resp, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestChatModel_Complete(t *testing.T) {
	fake := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "Twenty days."}}}}
	m := NewWithModel(fake, Config{Model: "test", Temperature: 0.2, MaxTokens: 100}, nil)

	answer, err := m.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "how many vacation days?"},
		{Role: RoleAssistant, Content: "which company?"},
		{Role: RoleUser, Content: "acme"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Twenty days.", answer)

	require.Len(t, fake.got, 4)
	assert.Equal(t, schema.ChatMessageTypeSystem, fake.got[0].Role)
	assert.Equal(t, schema.ChatMessageTypeHuman, fake.got[1].Role)
	assert.Equal(t, schema.ChatMessageTypeAI, fake.got[2].Role)
	assert.Equal(t, llms.TextContent{Text: "acme"}, fake.got[3].Parts[0])
	assert.InDelta(t, 0.2, fake.opts.Temperature, 1e-9)
	assert.Equal(t, 100, fake.opts.MaxTokens)
}

func TestChatModel_Errors(t *testing.T) {
	m := NewWithModel(&fakeModel{err: errors.New("quota exceeded")}, Config{}, nil)
	_, err := m.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	m = NewWithModel(&fakeModel{resp: &llms.ContentResponse{}}, Config{}, nil)
	_, err = m.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestChatModel_RateLimitHonorsContext(t *testing.T) {
	fake := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "ok"}}}}
	m := NewWithModel(fake, Config{RateLimit: 0.001, Burst: 1}, nil)

	_, err := m.Complete(context.Background(), []Message{{Role: RoleUser, Content: "first"}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Complete(ctx, []Message{{Role: RoleUser, Content: "second"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "gpt-4o-mini", cfg.Model)

	cfg.Temperature = 3
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	_, err := New(Config{Model: "m", Temperature: -1}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
