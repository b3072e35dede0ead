package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/00-167cm/RAG-chatbot/internal/core/answer"
)

// ChatAction は対話モードコマンドのアクション
// 1つの会話の中で質問と回答を繰り返す
func ChatAction(ctx context.Context, cmd *cli.Command) error {
	showSources := cmd.Bool("show-sources")
	envFile := cmd.String("env")
	store := cmd.String("store")

	appCtx, err := NewAppContext(ctx, envFile, store)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	appCtx.Container.ConversationService.StartRetryWorker(ctx)
	defer appCtx.Container.ConversationService.Wait()

	convID, _, err := resolveConversation(ctx, appCtx, cmd.String("conversation"))
	if err != nil {
		return err
	}

	fmt.Printf("会話ID: %s\n", convID)
	fmt.Println("質問を入力してください（exit で終了）")

	// 標準入力の読み取りはゴルーチンに分離し、シグナルでの終了と競合させる
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")

		var query string
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Println()
				return nil
			}
			query = strings.TrimSpace(line)
		}

		if query == "" {
			continue
		}
		if query == "exit" || query == "quit" {
			return nil
		}

		result, err := appCtx.Container.AnswerService.Answer(ctx,
			answer.Request{ConversationID: convID, Query: query},
			printToken,
		)
		fmt.Println()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			// 1往復の失敗で対話モード自体は終了しない
			slog.Error("回答の生成に失敗しました", "conversationID", convID, "error", err)
			continue
		}

		if showSources && result.IsRAG {
			printSources(appCtx, result.Provenance)
		}
	}
}
