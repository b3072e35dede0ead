package cli

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/00-167cm/RAG-chatbot/internal/interface/web"
)

// ServeAction はHTTP APIサーバを起動するコマンドのアクション
// ctx のキャンセル（シグナル受信）でグレースフルに停止する
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	addr := cmd.String("addr")

	appCtx, err := NewAppContext(ctx, cmd.String("env"), cmd.String("store"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	appCtx.Container.ConversationService.StartRetryWorker(ctx)
	defer appCtx.Container.ConversationService.Wait()

	if addr == "" {
		addr = appCtx.Config.Server.Addr
	}

	server := web.NewServer(appCtx.Container, appCtx.Config)
	return server.Run(ctx, addr)
}
