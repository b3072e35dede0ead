package conversation

import (
	"context"
	"fmt"
)

// demoConversation はデモ投入用の会話データ
type demoConversation struct {
	title    string
	messages []AppendInput
}

// demoConversations はリセット時に投入するデモ会話
var demoConversations = []demoConversation{
	{
		title: "本人確認書類の質問",
		messages: []AppendInput{
			{
				Role:    RoleUser,
				Content: "運転免許証の住所が古い場合、本人確認書類として使えますか？",
			},
			{
				Role:    RoleAssistant,
				Content: "NSC業務フローに基づき、住所変更が裏面に記載されている運転免許証は現住所の確認書類として利用できます。裏面の記載がない場合は、補完書類（公共料金の領収書など）の提出を依頼してください。",
				IsRAG:   true,
				Chunks: []ChunkRef{
					{ChunkID: "本人確認書類確認・登録ルール集.pdf_3_2", Distance: 0.42, Source: "本人確認書類確認・登録ルール集.pdf"},
					{ChunkID: "本人確認書類確認・登録ルール集.pdf_4_1", Distance: 0.58, Source: "本人確認書類確認・登録ルール集.pdf"},
				},
			},
		},
	},
	{
		title: "あいさつ",
		messages: []AppendInput{
			{
				Role:    RoleUser,
				Content: "こんにちは！",
			},
			{
				Role:    RoleAssistant,
				Content: "こんにちは！今日はどんなお手伝いをしましょうか？業務の質問でも雑談でも、お気軽にどうぞ。",
			},
		},
	},
}

// SeedDemo はデモ会話データを投入する
func (s *Service) SeedDemo(ctx context.Context) error {
	for _, demo := range demoConversations {
		conv, err := s.repo.CreateConversation(ctx, demo.title)
		if err != nil {
			return fmt.Errorf("デモ会話の作成に失敗: %w", err)
		}
		for _, input := range demo.messages {
			if _, err := s.repo.AppendMessage(ctx, conv.ID, input); err != nil {
				return fmt.Errorf("デモメッセージの保存に失敗: %w", err)
			}
		}
	}
	s.logger.Info("デモ会話データを投入", "conversations", len(demoConversations))
	return nil
}
