package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/00-167cm/RAG-chatbot/internal/core/answer"
	"github.com/00-167cm/RAG-chatbot/internal/core/conversation"
	"github.com/00-167cm/RAG-chatbot/internal/platform/config"
	"github.com/00-167cm/RAG-chatbot/internal/platform/container"
)

type stubEmbedder struct{}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (s *stubEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

func (s *stubEmbedder) ModelName() string { return "stub-embedding" }
func (s *stubEmbedder) MaxBatchSize() int { return 100 }

// scriptedChatClient は決まったトークン列を流すChatClient
type scriptedChatClient struct {
	tokens []string
}

func (s *scriptedChatClient) StreamChat(ctx context.Context, messages []answer.ChatMessage, onToken func(token string) error) (string, error) {
	var full strings.Builder
	for _, token := range s.tokens {
		if err := onToken(token); err != nil {
			return full.String(), err
		}
		full.WriteString(token)
	}
	return full.String(), nil
}

type stubTitleClient struct{}

func (s *stubTitleClient) GenerateTitle(ctx context.Context, messages []*conversation.Message) (string, error) {
	return "テスト会話", nil
}

type runeTokenCounter struct{}

func (runeTokenCounter) CountTokens(text string) int { return len([]rune(text)) }

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cont, err := container.NewMemoryContainer(cfg,
		container.WithContainerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		container.WithContainerEmbedder(&stubEmbedder{}),
		container.WithContainerChatClient(&scriptedChatClient{tokens: []string{"回答", "です"}}),
		container.WithContainerTitleClient(&stubTitleClient{}),
		container.WithContainerTokenCounter(runeTokenCounter{}),
	)
	require.NoError(t, err)

	return NewServer(cont, cfg)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		RAG: config.RAGConfig{
			Threshold:          1.2,
			TopK:               3,
			ChunkSize:          400,
			ChunkOverlap:       80,
			ContextTokenBudget: 3000,
		},
		Chat: config.ChatConfig{
			TitleMaxLength: 15,
		},
		Ingest: config.IngestConfig{
			CloneDir: t.TempDir(),
		},
	}
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t, testConfig(t))

	w := doRequest(t, srv, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","store":"memory"}`, w.Body.String())
}

func TestServer_IngestEndpoint(t *testing.T) {
	srv := newTestServer(t, testConfig(t))

	docsDir := t.TempDir()
	path := filepath.Join(docsDir, "keihi.txt")
	require.NoError(t, os.WriteFile(path, []byte("経費精算の締め切りは毎月25日です。"), 0o644))

	w := doRequest(t, srv, http.MethodPost, "/api/v1/ingest", `{"source":"`+docsDir+`"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp ingestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.ProcessedDocuments)
	assert.Equal(t, 1, resp.TotalChunks)
}

func TestServer_IngestEndpointRejectsEmptySource(t *testing.T) {
	srv := newTestServer(t, testConfig(t))

	w := doRequest(t, srv, http.MethodPost, "/api/v1/ingest", `{"source":""}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_ConversationLifecycle(t *testing.T) {
	srv := newTestServer(t, testConfig(t))

	// 作成
	w := doRequest(t, srv, http.MethodPost, "/api/v1/conversations", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var conv conversation.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))
	assert.Equal(t, conversation.DefaultTitle, conv.Title)

	// 一覧
	w = doRequest(t, srv, http.MethodGet, "/api/v1/conversations", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []conversation.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, conv.ID, list[0].ID)

	// 詳細（メッセージなし）
	w = doRequest(t, srv, http.MethodGet, "/api/v1/conversations/"+conv.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	var detail conversationDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Empty(t, detail.Messages)

	// 削除
	w = doRequest(t, srv, http.MethodDelete, "/api/v1/conversations/"+conv.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(t, srv, http.MethodGet, "/api/v1/conversations/"+conv.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_PostMessageStreamsTokensAndDone(t *testing.T) {
	srv := newTestServer(t, testConfig(t))

	w := doRequest(t, srv, http.MethodPost, "/api/v1/conversations", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var conv conversation.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))

	w = doRequest(t, srv, http.MethodPost,
		"/api/v1/conversations/"+conv.ID.String()+"/messages",
		`{"query":"こんにちは"}`)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "event:token")
	assert.Contains(t, body, "data:回答")
	assert.Contains(t, body, "event:done")
	assert.Contains(t, body, `"text":"回答です"`)
	// インデックスが空なので通常モード
	assert.Contains(t, body, `"isRAG":false`)

	// 往復が履歴に保存されている
	w = doRequest(t, srv, http.MethodGet, "/api/v1/conversations/"+conv.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	var detail conversationDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, "こんにちは", detail.Messages[0].Content)
	assert.Equal(t, "回答です", detail.Messages[1].Content)
}

func TestServer_PostMessageAnnotatesProvenanceWithSourceLinks(t *testing.T) {
	cfg := testConfig(t)

	// ソースリンク対応表を用意する
	linksPath := filepath.Join(t.TempDir(), "links.json")
	require.NoError(t, os.WriteFile(linksPath,
		[]byte(`{"keihi.txt":"https://drive.example.com/keihi"}`), 0o644))
	cfg.Ingest.SourceLinksFile = linksPath

	srv := newTestServer(t, cfg)

	docsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docsDir, "keihi.txt"),
		[]byte("経費精算の締め切りは毎月25日です。"), 0o644))
	w := doRequest(t, srv, http.MethodPost, "/api/v1/ingest", `{"source":"`+docsDir+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, srv, http.MethodPost, "/api/v1/conversations", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var conv conversation.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))

	// スタブのEmbeddingは全て同一ベクトルなので距離0でRAGモードになる
	w = doRequest(t, srv, http.MethodPost,
		"/api/v1/conversations/"+conv.ID.String()+"/messages",
		`{"query":"経費精算の締め切りは？"}`)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"isRAG":true`)
	assert.Contains(t, body, "keihi.txt_1_1")
	assert.Contains(t, body, "https://drive.example.com/keihi")
}

func TestServer_PostMessageValidation(t *testing.T) {
	srv := newTestServer(t, testConfig(t))

	// 不正なUUID
	w := doRequest(t, srv, http.MethodPost, "/api/v1/conversations/not-a-uuid/messages", `{"query":"q"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 存在しない会話
	w = doRequest(t, srv, http.MethodPost,
		"/api/v1/conversations/00000000-0000-0000-0000-000000000001/messages",
		`{"query":"q"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 空の質問
	w = doRequest(t, srv, http.MethodPost, "/api/v1/conversations", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var conv conversation.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))

	w = doRequest(t, srv, http.MethodPost,
		"/api/v1/conversations/"+conv.ID.String()+"/messages",
		`{"query":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
