package einollm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChatModel struct {
	response *schema.Message
	chunks   []*schema.Message
	err      error
	input    []*schema.Message
}

func (m *mockChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.input = input
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *mockChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.input = input
	if m.err != nil {
		return nil, m.err
	}
	return schema.StreamReaderFromArray(m.chunks), nil
}

func TestGenerate(t *testing.T) {
	m := &mockChatModel{response: &schema.Message{Role: schema.Assistant, Content: "答案"}}
	c := NewWithModel(m)

	out, err := c.Generate(context.Background(), "system", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "答案", out)

	require.Len(t, m.input, 2)
	assert.Equal(t, schema.System, m.input[0].Role)
	assert.Equal(t, schema.User, m.input[1].Role)
	assert.Equal(t, "prompt", m.input[1].Content)
}

func TestGenerateWithoutSystem(t *testing.T) {
	m := &mockChatModel{response: &schema.Message{Content: "x"}}
	_, err := NewWithModel(m).Generate(context.Background(), " ", "prompt")
	require.NoError(t, err)
	assert.Len(t, m.input, 1)
}

func TestGenerateError(t *testing.T) {
	m := &mockChatModel{err: errors.New("rate limited")}
	_, err := NewWithModel(m).Generate(context.Background(), "", "prompt")
	assert.ErrorContains(t, err, "rate limited")
}

func TestGenerateStream(t *testing.T) {
	m := &mockChatModel{chunks: []*schema.Message{
		{Content: "动态"}, {Content: ""}, {Content: "规划"},
	}}

	var chunks []string
	for chunk, err := range NewWithModel(m).GenerateStream(context.Background(), "", "p") {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	assert.Equal(t, []string{"动态", "规划"}, chunks)
}

func TestNewChatModelValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"openai without key", Config{Provider: ProviderOpenAI, Model: "gpt-4o-mini"}},
		{"anthropic without key", Config{Provider: ProviderAnthropic, Model: "claude"}},
		{"unknown provider", Config{Provider: "bedrock", APIKey: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChatModel(context.Background(), tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestAnthropicRequestCarriesMaxTokens(t *testing.T) {
	tests := []struct {
		name      string
		maxTokens int
		want      float64
	}{
		{"default", 0, DefaultMaxTokens},
		{"configured", 512, 512},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				raw, _ := io.ReadAll(r.Body)
				_ = json.Unmarshal(raw, &body)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-x",` +
					`"content":[{"type":"text","text":"好的"}],"stop_reason":"end_turn",` +
					`"usage":{"input_tokens":3,"output_tokens":2}}`))
			}))
			defer srv.Close()

			c, err := New(context.Background(), Config{
				Provider:  ProviderAnthropic,
				Model:     "claude-x",
				APIKey:    "test-key",
				BaseURL:   srv.URL,
				MaxTokens: tt.maxTokens,
			})
			require.NoError(t, err)

			out, err := c.Generate(context.Background(), "system", "prompt")
			require.NoError(t, err)
			assert.Equal(t, "好的", out)

			require.NotNil(t, body)
			assert.Equal(t, tt.want, body["max_tokens"])
			assert.Equal(t, "claude-x", body["model"])
		})
	}
}
