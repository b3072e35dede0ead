package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrPersistence は会話ストアへの保存失敗を表す
	ErrPersistence = errors.New("conversation persistence failed")
	// ErrNotFound は会話が存在しない場合のエラー
	ErrNotFound = errors.New("conversation not found")
)

const (
	// retryQueueSize は保存再試行キューの容量
	retryQueueSize = 64
	// maxRetryAttempts は保存再試行の上限回数
	maxRetryAttempts = 5
)

// retryAppend は保存に失敗したメッセージの再試行タスク
type retryAppend struct {
	conversationID uuid.UUID
	input          AppendInput
	attempt        int
}

// Service は会話状態管理のユースケースを提供する
type Service struct {
	repo           Repository
	titleClient    TitleClient
	titleMaxLength int
	logger         *slog.Logger

	retryCh        chan retryAppend
	retryBaseDelay time.Duration
	startOnce      sync.Once
	wg             sync.WaitGroup
}

type serviceOptions struct {
	titleMaxLength int
	logger         *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*serviceOptions)

// WithConversationLogger は Service にロガーを設定する
func WithConversationLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithTitleMaxLength はタイトルの最大文字数を上書きする
func WithTitleMaxLength(n int) ServiceOption {
	return func(o *serviceOptions) {
		o.titleMaxLength = n
	}
}

// NewService は新しいServiceを作成する
func NewService(repo Repository, titleClient TitleClient, opts ...ServiceOption) *Service {
	options := serviceOptions{
		titleMaxLength: DefaultTitleMaxLength,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.titleMaxLength <= 0 {
		options.titleMaxLength = DefaultTitleMaxLength
	}

	return &Service{
		repo:           repo,
		titleClient:    titleClient,
		titleMaxLength: options.titleMaxLength,
		logger:         options.logger,
		retryCh:        make(chan retryAppend, retryQueueSize),
		retryBaseDelay: time.Second,
	}
}

// Create は新しい会話をプレースホルダタイトルで作成する
func (s *Service) Create(ctx context.Context) (*Conversation, error) {
	conv, err := s.repo.CreateConversation(ctx, DefaultTitle)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.logger.Info("会話を作成", "conversationID", conv.ID)
	return conv, nil
}

// Get は会話を取得する
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	opt, err := s.repo.GetConversation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("会話の取得に失敗: %w", err)
	}
	conv, ok := opt.Get()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return conv, nil
}

// List は会話一覧を更新日時の降順で返す
func (s *Service) List(ctx context.Context) ([]*Conversation, error) {
	conversations, err := s.repo.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("会話一覧の取得に失敗: %w", err)
	}
	return conversations, nil
}

// Delete は会話とそのメッセージを削除する
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteConversation(ctx, id); err != nil {
		return fmt.Errorf("会話の削除に失敗: %w", err)
	}
	s.logger.Info("会話を削除", "conversationID", id)
	return nil
}

// DeleteAll は全会話を削除する
func (s *Service) DeleteAll(ctx context.Context) error {
	if err := s.repo.DeleteAllConversations(ctx); err != nil {
		return fmt.Errorf("会話の全削除に失敗: %w", err)
	}
	s.logger.Info("全会話を削除しました")
	return nil
}

// History は会話のメッセージを保存時刻の昇順で返す
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]*Message, error) {
	messages, err := s.repo.ListMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("履歴の取得に失敗: %w", err)
	}
	return messages, nil
}

// AppendUserMessage はユーザーメッセージを履歴の末尾に追加する
// 保存に失敗した場合は再試行せずにエラーを返す（回答生成前に打ち切るため）
func (s *Service) AppendUserMessage(ctx context.Context, conversationID uuid.UUID, content string) (*Message, error) {
	return s.append(ctx, conversationID, AppendInput{Role: RoleUser, Content: content}, false)
}

// AppendAssistantMessage はAI回答を履歴の末尾に追加する
// 保存に失敗した場合はバックグラウンドで再試行する（回答自体は既に返却済みのため）
func (s *Service) AppendAssistantMessage(ctx context.Context, conversationID uuid.UUID, content string, isRAG bool, chunks []ChunkRef) (*Message, error) {
	return s.append(ctx, conversationID, AppendInput{
		Role:    RoleAssistant,
		Content: content,
		IsRAG:   isRAG,
		Chunks:  chunks,
	}, true)
}

func (s *Service) append(ctx context.Context, conversationID uuid.UUID, input AppendInput, retryOnFailure bool) (*Message, error) {
	msg, err := s.repo.AppendMessage(ctx, conversationID, input)
	if err != nil {
		if retryOnFailure {
			s.enqueueRetry(retryAppend{conversationID: conversationID, input: input, attempt: 1})
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return msg, nil
}

// StartRetryWorker は保存再試行ワーカーを起動する
// ctx のキャンセルで停止する
func (s *Service) StartRetryWorker(ctx context.Context) {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.retryLoop(ctx)
		}()
	})
}

// Wait は起動済みのバックグラウンド処理（タイトル生成など）の完了を待つ
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) retryLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-s.retryCh:
			// 指数バックオフ: 1s, 2s, 4s, 8s, 16s
			backoff := s.retryBaseDelay * time.Duration(1<<(item.attempt-1))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}

			if _, err := s.repo.AppendMessage(ctx, item.conversationID, item.input); err != nil {
				if item.attempt >= maxRetryAttempts {
					s.logger.Error("メッセージ保存の再試行が上限に達しました",
						"conversationID", item.conversationID,
						"attempts", item.attempt,
						"error", err,
					)
					continue
				}
				item.attempt++
				s.enqueueRetry(item)
				continue
			}

			s.logger.Info("メッセージ保存の再試行に成功",
				"conversationID", item.conversationID,
				"attempt", item.attempt,
			)
		}
	}
}

func (s *Service) enqueueRetry(item retryAppend) {
	select {
	case s.retryCh <- item:
	default:
		s.logger.Error("保存再試行キューが満杯のため破棄", "conversationID", item.conversationID)
	}
}

// GenerateTitleIfNeeded はタイトルが未生成で最初の往復が揃った場合にタイトルを生成する
// タイトルを更新できた場合に true を返す
// 更新はプレースホルダのままの場合だけ成功するため、並行して呼ばれても一度しか置き換わらない
func (s *Service) GenerateTitleIfNeeded(ctx context.Context, conversationID uuid.UUID) (bool, error) {
	conv, err := s.Get(ctx, conversationID)
	if err != nil {
		return false, err
	}
	if !conv.HasPlaceholderTitle() {
		return false, nil
	}

	messages, err := s.History(ctx, conversationID)
	if err != nil {
		return false, err
	}
	if len(messages) < titleSourceCount {
		return false, nil
	}

	title, err := s.titleClient.GenerateTitle(ctx, messages[:titleSourceCount])
	if err != nil {
		return false, fmt.Errorf("タイトル生成に失敗: %w", err)
	}

	title = NormalizeTitle(title, s.titleMaxLength)
	if title == "" {
		return false, nil
	}

	updated, err := s.repo.UpdateTitleIfPlaceholder(ctx, conversationID, title)
	if err != nil {
		return false, fmt.Errorf("タイトルの更新に失敗: %w", err)
	}
	if updated {
		s.logger.Info("タイトルを生成", "conversationID", conversationID, "title", title)
	}
	return updated, nil
}

// GenerateTitleAsync はタイトル生成をバックグラウンドで実行する
// 呼び出し元のリクエスト完了後も生成を続けられるようにキャンセルを切り離す
func (s *Service) GenerateTitleAsync(ctx context.Context, conversationID uuid.UUID) {
	bgCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		genCtx, cancel := context.WithTimeout(bgCtx, 30*time.Second)
		defer cancel()
		if _, err := s.GenerateTitleIfNeeded(genCtx, conversationID); err != nil {
			s.logger.Warn("バックグラウンドのタイトル生成に失敗", "conversationID", conversationID, "error", err)
		}
	}()
}
