package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	appcli "github.com/00-167cm/RAG-chatbot/internal/app/cli"
	"github.com/00-167cm/RAG-chatbot/internal/platform/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 設定読み込み前のログはデフォルト設定で出力する
	logger.New(logger.DefaultConfig())

	app := &cli.Command{
		Name:  "rag-chatbot",
		Usage: "社内ドキュメントに基づいて回答するRAGチャットボット",
		Commands: []*cli.Command{
			{
				Name:  "ingest",
				Usage: "ドキュメントをインデックスへ取り込み",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:  "store",
						Usage: "ストア種別 (pg/memory)",
						Value: "pg",
					},
					&cli.StringFlag{
						Name:  "source",
						Usage: "取り込み対象（ディレクトリ・ファイル・Git URL、省略時は DOCUMENTS_DIR）",
					},
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "取り込み後にファイル変更を監視して自動で再取り込み",
					},
				},
				Action: appcli.IngestAction,
			},
			{
				Name:  "reload",
				Usage: "インデックスを空にしてから取り込み直す",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:  "store",
						Usage: "ストア種別 (pg/memory)",
						Value: "pg",
					},
					&cli.StringFlag{
						Name:  "source",
						Usage: "取り込み対象（省略時は DOCUMENTS_DIR）",
					},
				},
				Action: appcli.ReloadAction,
			},
			{
				Name:      "ask",
				Usage:     "単発の質問に回答",
				ArgsUsage: "\"質問文\"",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:  "store",
						Usage: "ストア種別 (pg/memory)",
						Value: "pg",
					},
					&cli.StringFlag{
						Name:  "conversation",
						Usage: "続きから質問する会話ID（省略時は新規作成）",
					},
					&cli.BoolFlag{
						Name:  "show-sources",
						Usage: "回答の参照ソースを表示",
					},
				},
				Action: appcli.AskAction,
			},
			{
				Name:  "chat",
				Usage: "対話モードで質問",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:  "store",
						Usage: "ストア種別 (pg/memory)",
						Value: "pg",
					},
					&cli.StringFlag{
						Name:  "conversation",
						Usage: "続きから質問する会話ID（省略時は新規作成）",
					},
					&cli.BoolFlag{
						Name:  "show-sources",
						Usage: "回答の参照ソースを表示",
					},
				},
				Action: appcli.ChatAction,
			},
			{
				Name:  "conversations",
				Usage: "会話管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "会話一覧を表示",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:  "store",
								Usage: "ストア種別 (pg/memory)",
								Value: "pg",
							},
						},
						Action: appcli.ConversationListAction,
					},
					{
						Name:      "show",
						Usage:     "会話の内容を表示",
						ArgsUsage: "会話ID",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:  "store",
								Usage: "ストア種別 (pg/memory)",
								Value: "pg",
							},
						},
						Action: appcli.ConversationShowAction,
					},
				},
			},
			{
				Name:  "serve",
				Usage: "HTTP APIサーバを起動",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:  "store",
						Usage: "ストア種別 (pg/memory)",
						Value: "pg",
					},
					&cli.StringFlag{
						Name:  "addr",
						Usage: "リッスンアドレス（省略時は SERVER_ADDR）",
					},
				},
				Action: appcli.ServeAction,
			},
			{
				Name:  "reset",
				Usage: "インデックスと会話履歴を全削除",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:  "store",
						Usage: "ストア種別 (pg/memory)",
						Value: "pg",
					},
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "確認をスキップして削除を実行",
					},
					&cli.BoolFlag{
						Name:  "seed-demo",
						Usage: "削除後に動作確認用の会話を作成",
					},
				},
				Action: appcli.ResetAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
