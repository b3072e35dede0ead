package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
)

// ResetAction はインデックスと会話履歴を全削除するコマンドのアクション
// --yes を指定しない場合は実行前に確認する
func ResetAction(ctx context.Context, cmd *cli.Command) error {
	yes := cmd.Bool("yes")
	seedDemo := cmd.Bool("seed-demo")

	appCtx, err := NewAppContext(ctx, cmd.String("env"), cmd.String("store"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if !yes {
		fmt.Print("インデックスと会話履歴を全て削除します。よろしいですか? [y/N]: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("確認入力の読み取りに失敗: %w", err)
		}
		if strings.ToLower(strings.TrimSpace(line)) != "y" {
			fmt.Println("中止しました")
			return nil
		}
	}

	if err := appCtx.Container.LocalIngestService.Clear(ctx); err != nil {
		slog.Error("インデックスの削除に失敗しました", "error", err)
		return err
	}
	if err := appCtx.Container.ConversationService.DeleteAll(ctx); err != nil {
		slog.Error("会話履歴の削除に失敗しました", "error", err)
		return err
	}
	fmt.Println("全データを削除しました")

	if seedDemo {
		if err := appCtx.Container.ConversationService.SeedDemo(ctx); err != nil {
			slog.Error("デモ会話の投入に失敗しました", "error", err)
			return err
		}
		fmt.Println("デモ会話を投入しました")
	}
	return nil
}
