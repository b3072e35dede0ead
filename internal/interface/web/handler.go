package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/00-167cm/RAG-chatbot/internal/core/answer"
	"github.com/00-167cm/RAG-chatbot/internal/core/conversation"
	"github.com/00-167cm/RAG-chatbot/internal/core/ingestion"
	"github.com/00-167cm/RAG-chatbot/internal/platform/container"
)

// handler はHTTP APIのエンドポイント群を提供する
type handler struct {
	container   *container.ServiceContainer
	sourceLinks map[string]string
	logger      *slog.Logger
}

type ingestRequest struct {
	Source string `json:"source"`
}

type ingestResponse struct {
	ProcessedDocuments int     `json:"processedDocuments"`
	TotalChunks        int     `json:"totalChunks"`
	DurationSeconds    float64 `json:"durationSeconds"`
}

type messageRequest struct {
	Query string `json:"query"`
}

// provenanceRef は参照チャンクに外部ドキュメントURLを付与したもの
type provenanceRef struct {
	conversation.ChunkRef
	URL string `json:"url,omitempty"`
}

// answerEvent はSSEの done イベントで送る最終結果
type answerEvent struct {
	Text       string          `json:"text"`
	IsRAG      bool            `json:"isRAG"`
	Degraded   bool            `json:"degraded,omitempty"`
	Provenance []provenanceRef `json:"provenance,omitempty"`
}

type conversationDetail struct {
	Conversation *conversation.Conversation `json:"conversation"`
	Messages     []*conversation.Message    `json:"messages"`
}

func (h *handler) health(c *gin.Context) {
	store := "memory"
	if pool := h.container.Pool(); pool != nil {
		store = "pg"
		if err := pool.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "ng", "store": store, "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": store})
}

func (h *handler) ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディが不正です: " + err.Error()})
		return
	}
	if req.Source == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "取り込み対象を指定してください"})
		return
	}

	svc := h.container.IngestServiceFor(req.Source)
	result, err := svc.Ingest(c.Request.Context(), ingestion.IngestParams{
		Identifier: req.Source,
		Replace:    true,
	})
	if err != nil {
		h.logger.Error("取り込みに失敗しました", "source", req.Source, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "取り込みに失敗しました"})
		return
	}

	c.JSON(http.StatusOK, ingestResponse{
		ProcessedDocuments: result.ProcessedDocuments,
		TotalChunks:        result.TotalChunks,
		DurationSeconds:    result.Duration.Seconds(),
	})
}

func (h *handler) listConversations(c *gin.Context) {
	conversations, err := h.container.ConversationService.List(c.Request.Context())
	if err != nil {
		h.logger.Error("会話一覧の取得に失敗しました", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "会話一覧の取得に失敗しました"})
		return
	}
	if conversations == nil {
		conversations = []*conversation.Conversation{}
	}
	c.JSON(http.StatusOK, conversations)
}

func (h *handler) createConversation(c *gin.Context) {
	conv, err := h.container.ConversationService.Create(c.Request.Context())
	if err != nil {
		h.logger.Error("会話の作成に失敗しました", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "会話の作成に失敗しました"})
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *handler) showConversation(c *gin.Context) {
	id, ok := parseConversationID(c)
	if !ok {
		return
	}

	conv, err := h.container.ConversationService.Get(c.Request.Context(), id)
	if err != nil {
		h.respondConversationError(c, err)
		return
	}
	messages, err := h.container.ConversationService.History(c.Request.Context(), id)
	if err != nil {
		h.respondConversationError(c, err)
		return
	}
	if messages == nil {
		messages = []*conversation.Message{}
	}

	c.JSON(http.StatusOK, conversationDetail{
		Conversation: conv,
		Messages:     messages,
	})
}

func (h *handler) deleteConversation(c *gin.Context) {
	id, ok := parseConversationID(c)
	if !ok {
		return
	}

	if err := h.container.ConversationService.Delete(c.Request.Context(), id); err != nil {
		h.respondConversationError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// postMessage は質問を受け付け、回答をSSEでストリーミングする
//
// イベントの流れ:
//   - token: 生成された回答の断片
//   - done:  回答全文と参照情報
//   - error: 生成途中の失敗
//
// クライアントの切断は生成のキャンセルとして扱い、回答は履歴に保存されない
func (h *handler) postMessage(c *gin.Context) {
	id, ok := parseConversationID(c)
	if !ok {
		return
	}

	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディが不正です: " + err.Error()})
		return
	}
	if req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "質問文を指定してください"})
		return
	}

	// ストリーミング開始前に会話の存在を確認する
	if _, err := h.container.ConversationService.Get(c.Request.Context(), id); err != nil {
		h.respondConversationError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	result, err := h.container.AnswerService.Answer(c.Request.Context(),
		answer.Request{ConversationID: id, Query: req.Query},
		func(token string) error {
			c.SSEvent("token", token)
			c.Writer.Flush()
			return nil
		},
	)
	if err != nil {
		// 切断済みのクライアントには何も書けない
		if errors.Is(err, context.Canceled) {
			h.logger.Info("クライアント切断により生成を中断", "conversationID", id)
			return
		}
		h.logger.Error("回答の生成に失敗しました", "conversationID", id, "error", err)
		c.SSEvent("error", gin.H{"message": "回答の生成に失敗しました"})
		c.Writer.Flush()
		return
	}

	c.SSEvent("done", answerEvent{
		Text:       result.Text,
		IsRAG:      result.IsRAG,
		Degraded:   result.Degraded,
		Provenance: h.annotateProvenance(result.Provenance),
	})
	c.Writer.Flush()
}

// annotateProvenance は参照チャンクにソースリンク対応表のURLを付与する
func (h *handler) annotateProvenance(refs []conversation.ChunkRef) []provenanceRef {
	if len(refs) == 0 {
		return nil
	}
	annotated := make([]provenanceRef, 0, len(refs))
	for _, ref := range refs {
		annotated = append(annotated, provenanceRef{
			ChunkRef: ref,
			URL:      h.sourceLinks[ref.Source],
		})
	}
	return annotated
}

func parseConversationID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "会話IDの形式が不正です"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *handler) respondConversationError(c *gin.Context, err error) {
	if errors.Is(err, conversation.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "会話が見つかりません"})
		return
	}
	h.logger.Error("会話操作に失敗しました", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "内部エラーが発生しました"})
}
