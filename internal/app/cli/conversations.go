package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/00-167cm/RAG-chatbot/internal/core/conversation"
)

// ConversationListAction は会話一覧を表示するコマンドのアクション
func ConversationListAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"), cmd.String("store"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	conversations, err := appCtx.Container.ConversationService.List(ctx)
	if err != nil {
		return err
	}

	if len(conversations) == 0 {
		fmt.Println("会話はまだありません")
		return nil
	}

	for _, conv := range conversations {
		fmt.Printf("%s  %s  (%d件)  更新: %s\n",
			conv.ID,
			conv.Title,
			conv.MessageCount,
			conv.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	return nil
}

// ConversationShowAction は会話の内容を表示するコマンドのアクション
func ConversationShowAction(ctx context.Context, cmd *cli.Command) error {
	idArg := cmd.Args().First()
	if idArg == "" {
		return fmt.Errorf("会話IDを指定してください")
	}
	id, err := uuid.Parse(idArg)
	if err != nil {
		return fmt.Errorf("会話IDの形式が不正です: %s", idArg)
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"), cmd.String("store"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	conv, err := appCtx.Container.ConversationService.Get(ctx, id)
	if err != nil {
		return err
	}
	messages, err := appCtx.Container.ConversationService.History(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s)\n", conv.Title, conv.ID)

	for _, msg := range messages {
		role := "あなた"
		if msg.Role == conversation.RoleAssistant {
			role = "AI"
		}
		fmt.Printf("\n[%s] %s\n%s\n", role, msg.CreatedAt.Format("2006-01-02 15:04:05"), msg.Content)

		if msg.IsRAG && len(msg.Chunks) > 0 {
			fmt.Print("参照: ")
			for i, ref := range msg.Chunks {
				if i > 0 {
					fmt.Print(", ")
				}
				fmt.Print(ref.Source)
			}
			fmt.Println()
		}
	}
	return nil
}
