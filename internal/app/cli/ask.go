package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/00-167cm/RAG-chatbot/internal/core/answer"
	"github.com/00-167cm/RAG-chatbot/internal/core/conversation"
)

// AskAction は単発の質問応答コマンドのアクション
// 回答はトークンが届くたびに標準出力へ流す
func AskAction(ctx context.Context, cmd *cli.Command) error {
	showSources := cmd.Bool("show-sources")
	envFile := cmd.String("env")
	store := cmd.String("store")

	question := cmd.Args().First()
	if question == "" {
		return fmt.Errorf("質問文を指定してください")
	}

	appCtx, err := NewAppContext(ctx, envFile, store)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	appCtx.Container.ConversationService.StartRetryWorker(ctx)
	defer appCtx.Container.ConversationService.Wait()

	convID, created, err := resolveConversation(ctx, appCtx, cmd.String("conversation"))
	if err != nil {
		return err
	}

	result, err := appCtx.Container.AnswerService.Answer(ctx,
		answer.Request{ConversationID: convID, Query: question},
		printToken,
	)
	fmt.Println()
	if err != nil {
		slog.Error("回答の生成に失敗しました", "conversationID", convID, "error", err)
		return err
	}

	if showSources && result.IsRAG {
		printSources(appCtx, result.Provenance)
	}
	if created {
		fmt.Printf("\n会話ID: %s（--conversation で続きから質問できます）\n", convID)
	}
	return nil
}

// resolveConversation は --conversation 指定の会話を検証し、未指定なら新規作成する
func resolveConversation(ctx context.Context, appCtx *AppContext, flag string) (uuid.UUID, bool, error) {
	if flag == "" {
		conv, err := appCtx.Container.ConversationService.Create(ctx)
		if err != nil {
			return uuid.Nil, false, err
		}
		return conv.ID, true, nil
	}

	id, err := uuid.Parse(flag)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("会話IDの形式が不正です: %s", flag)
	}
	if _, err := appCtx.Container.ConversationService.Get(ctx, id); err != nil {
		return uuid.Nil, false, err
	}
	return id, false, nil
}

func printToken(token string) error {
	fmt.Print(token)
	return nil
}

// printSources は参照ソースの一覧を表示する
// SOURCE_LINKS_FILE に対応表があれば外部ドキュメントURLを併記する
func printSources(appCtx *AppContext, refs []conversation.ChunkRef) {
	if len(refs) == 0 {
		return
	}

	links, err := appCtx.Config.SourceLinks()
	if err != nil {
		slog.Warn("ソースリンク定義の読み込みに失敗", "error", err)
		links = map[string]string{}
	}

	fmt.Println("\n--- 参照ソース ---")
	for i, ref := range refs {
		line := fmt.Sprintf("[%d] %s (チャンク: %s, 距離: %.4f)", i+1, ref.Source, ref.ChunkID, ref.Distance)
		if url := links[ref.Source]; url != "" {
			line += " " + url
		}
		fmt.Println(line)
	}
}
