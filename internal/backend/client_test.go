// ABOUTME: Tests for the agent-query backend client
// ABOUTME: Uses httptest servers to exercise status, body, and chain_meta handling

package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Query(t *testing.T) {
	var gotBody queryRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]string{"reply": "hello back"})
	}))
	defer srv.Close()

	client := New(srv.URL, 0, nil)
	reply, err := client.Query(context.Background(), "agent-1", "hello", "")
	require.NoError(t, err)

	assert.Equal(t, "hello back", reply.Text)
	assert.Nil(t, reply.ChainMeta)
	assert.Equal(t, "agent-1", gotBody.AgentID)
	assert.Equal(t, "hello", gotBody.UserMessage)
	assert.Empty(t, gotBody.File)
}

func TestClient_QueryWithFile(t *testing.T) {
	var gotBody queryRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]string{"reply": "got it"})
	}))
	defer srv.Close()

	client := New(srv.URL, 0, nil)
	_, err := client.Query(context.Background(), "agent-1", "see attached", "data:text/plain;base64,aGk=")
	require.NoError(t, err)
	assert.Equal(t, "data:text/plain;base64,aGk=", gotBody.File)
}

func TestClient_QueryChain(t *testing.T) {
	var gotBody chainRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query-chain", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"reply":      "combined take",
			"chain_meta": map[string]string{"primary": "Finance", "secondary": "Legal"},
		})
	}))
	defer srv.Close()

	client := New(srv.URL, 0, nil)
	reply, err := client.QueryChain(context.Background(), "finance", "legal", "tax question")
	require.NoError(t, err)

	assert.True(t, gotBody.Chain)
	assert.Equal(t, "finance", gotBody.PrimaryAgentID)
	assert.Equal(t, "legal", gotBody.SecondaryAgentID)
	require.NotNil(t, reply.ChainMeta)
	assert.Equal(t, "Finance", reply.ChainMeta.Primary)
	assert.Equal(t, "Legal", reply.ChainMeta.Secondary)
}

func TestClient_QueryChainFillsMissingMeta(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"reply": "combined take"})
	}))
	defer srv.Close()

	client := New(srv.URL, 0, nil)
	reply, err := client.QueryChain(context.Background(), "finance", "legal", "question")
	require.NoError(t, err)

	require.NotNil(t, reply.ChainMeta)
	assert.Equal(t, "finance", reply.ChainMeta.Primary)
	assert.Equal(t, "legal", reply.ChainMeta.Secondary)
}

func TestClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(srv.URL, 0, nil)
	_, err := client.Query(context.Background(), "agent-1", "hello", "")
	assert.ErrorIs(t, err, ErrDispatch)
}

func TestClient_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := New(srv.URL, 0, nil)
	_, err := client.Query(context.Background(), "agent-1", "hello", "")
	assert.ErrorIs(t, err, ErrDispatch)
}

func TestClient_EmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"reply": ""})
	}))
	defer srv.Close()

	client := New(srv.URL, 0, nil)
	_, err := client.Query(context.Background(), "agent-1", "hello", "")
	assert.ErrorIs(t, err, ErrEmptyReply)
	assert.ErrorIs(t, err, ErrDispatch)
}

func TestClient_UnreachableBackend(t *testing.T) {
	// Closed server: connection refused
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := New(srv.URL, time.Second, nil)
	_, err := client.Query(context.Background(), "agent-1", "hello", "")
	assert.ErrorIs(t, err, ErrDispatch)
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := New(srv.URL, 0, nil)
	_, err := client.Query(ctx, "agent-1", "hello", "")
	assert.ErrorIs(t, err, ErrDispatch)
}
