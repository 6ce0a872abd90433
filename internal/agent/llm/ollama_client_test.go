package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaClient_ListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3:8b"},{"model":"gpt-oss:20b"}]}`))
	}))
	defer srv.Close()

	client := NewOllamaClient(Config{Endpoint: srv.URL})
	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3:8b", "gpt-oss:20b"}, models)
}

func TestOllamaClient_Generate(t *testing.T) {
	var got GenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"response":"[]","done":true}`))
	}))
	defer srv.Close()

	client := NewOllamaClient(Config{Endpoint: srv.URL, Temperature: 0.1}).WithModel("llama3.1:8b")
	out, err := client.Generate(context.Background(), "list products")
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
	assert.Equal(t, "llama3.1:8b", got.Model)
	assert.False(t, got.Stream)
	assert.InDelta(t, 0.1, got.Options.Temperature, 1e-9)
}

func TestOllamaClient_GenerateWithoutModel(t *testing.T) {
	client := NewOllamaClient(Config{Endpoint: "http://127.0.0.1:1"})
	_, err := client.Generate(context.Background(), "x")
	assert.Error(t, err)
}

func TestOllamaClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewOllamaClient(Config{Endpoint: srv.URL, Model: "missing"})
	_, err := client.Generate(context.Background(), "x")
	assert.ErrorContains(t, err, "404")
}
