package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api", "test-model", srv.Client())
}

func TestGenerate(t *testing.T) {
	var got GenerateRequest
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"model":"test-model","response":"动态","done":false}` + "\n"))
		w.Write([]byte(`{"model":"test-model","response":"规划","done":false}` + "\n"))
		w.Write([]byte(`{"model":"test-model","response":"","done":true}` + "\n"))
	})

	out, err := c.Generate(context.Background(), "system", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "动态规划", out)
	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, "system", got.System)
	assert.True(t, got.Stream)
}

func TestGenerateSendsOptions(t *testing.T) {
	var got GenerateRequest
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"response":"ok","done":true}`))
	})

	tuned := c.WithOptions(map[string]interface{}{"temperature": 0.2, "num_predict": 512})
	_, err := tuned.Generate(context.Background(), "", "prompt")
	require.NoError(t, err)
	assert.Equal(t, 0.2, got.Options["temperature"])
	assert.Equal(t, float64(512), got.Options["num_predict"])

	got = GenerateRequest{}
	_, err = c.Generate(context.Background(), "", "prompt")
	require.NoError(t, err)
	assert.Nil(t, got.Options)
}

func TestGenerateStreamYieldsChunks(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		for _, chunk := range []string{"a", "b", "c"} {
			w.Write([]byte(`{"response":"` + chunk + `","done":false}` + "\n"))
		}
		w.Write([]byte(`{"response":"","done":true}`))
	})

	var chunks []string
	for chunk, err := range c.GenerateStream(context.Background(), "", "p") {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	assert.Equal(t, []string{"a", "b", "c"}, chunks)
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "http status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model not found", http.StatusNotFound)
			},
		},
		{
			name: "error line",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"error":"out of memory"}` + "\n"))
			},
		},
		{
			name: "truncated",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"response":"x","truncated":true}` + "\n"))
			},
			check: func(t *testing.T, err error) {
				var truncated *ErrTruncated
				assert.True(t, errors.As(err, &truncated))
			},
		},
		{
			name: "stream cut short",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"response":"x","done":false}` + "\n"))
			},
		},
		{
			name: "garbage",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json\n"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServer(t, tt.handler)
			_, err := c.Generate(context.Background(), "", "p")
			require.Error(t, err)
			if tt.check != nil {
				tt.check(t, err)
			}
		})
	}
}

func TestGenerateHonorsDeadline(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Generate(ctx, "", "p")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPing(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(`{"models":[]}`))
	})
	assert.NoError(t, c.Ping(context.Background()))
}
