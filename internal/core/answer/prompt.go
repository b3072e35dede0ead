package answer

import (
	"fmt"
	"strings"

	"github.com/00-167cm/RAG-chatbot/internal/core/search"
)

// SystemPromptNormal は通常モードのシステムプロンプト
const SystemPromptNormal = `あなたはフレンドリーで親切なAIアシスタントです。ユーザーの質問に対して、明るくわかりやすく丁寧に答えてください。`

// SystemPromptRAG はRAGモードのシステムプロンプト
const SystemPromptRAG = `あなたは会社での業務サポートAIです。

【重要なルール】
1. 回答の冒頭に「NSC業務フローに基づき」または「横浜センターのローカルルールによると」という接頭語を付けてください
2. 参照資料に書かれている情報のみを使用してください
3. 具体的なコード名やルール名（NSCコード、NG理由コード表など）がある場合は、それを明記してください
4. 分かりやすく、丁寧に回答してください

参照資料がある場合は、それに基づいて回答します。`

// BuildContext は検索結果をAIが読みやすい参照資料テキストにまとめる
//
// フォーマット:
//
//	【参照資料1】(ファイル名 / ページ番号)
//	テキスト内容...
//
//	【参照資料2】(ファイル名 / ページ番号)
//	テキスト内容...
func BuildContext(hits []*search.Hit) string {
	if len(hits) == 0 {
		return ""
	}

	parts := make([]string, 0, len(hits))
	for i, hit := range hits {
		parts = append(parts, FormatContextEntry(i+1, hit))
	}

	return strings.Join(parts, "\n\n")
}

// FormatContextEntry は参照資料1件分のテキストを整形する
func FormatContextEntry(no int, hit *search.Hit) string {
	return fmt.Sprintf("【参照資料%d】(%s / ページ%d)\n%s", no, hit.Source, hit.Page, hit.Content)
}

// BuildRAGPrompt は参照資料と質問を組み合わせたRAG用プロンプトを構築する
// AIの振る舞いルールは SystemPromptRAG で定義する
func BuildRAGPrompt(query string, context string) string {
	return fmt.Sprintf(`===== 参照資料 =====
%s
====================

ユーザーの質問: %s`, context, query)
}
