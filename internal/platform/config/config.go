package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// ErrInvalidConfig は設定値がドメイン外の場合のエラー
// 起動時の検証で検出され、丸め込みは行わない
var ErrInvalidConfig = errors.New("不正な設定値")

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// OpenAI設定（Embeddings + Chat）
	OpenAI OpenAIConfig

	// RAG設定（ルーティング閾値とチャンク分割）
	RAG RAGConfig

	// 会話設定
	Chat ChatConfig

	// ドキュメント取り込み設定
	Ingest IngestConfig

	// HTTPサーバ設定
	Server ServerConfig

	// ログ設定
	Log LogConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI API設定（Embeddings + Chat Completions）
type OpenAIConfig struct {
	APIKey             string
	ChatModel          string
	EmbeddingModel     string
	EmbeddingDimension int
	Temperature        float64
}

// RAGConfig は検索ルーティングとチャンク分割の設定
type RAGConfig struct {
	// Threshold はRAG使用判定の閾値（L2距離、0.0〜2.0）
	// 最良チャンクの距離がこの値以下ならRAGモード
	Threshold float64

	// TopK は類似度検索で取得する関連チャンク数
	TopK int

	// ChunkSize は1チャンクの文字数（rune単位）
	ChunkSize int

	// ChunkOverlap はチャンク間のオーバーラップ文字数
	ChunkOverlap int

	// ContextTokenBudget は参照資料としてLLMに渡す最大トークン数
	ContextTokenBudget int
}

// ChatConfig は会話まわりの設定
type ChatConfig struct {
	// TitleMaxLength はチャットタイトルの最大文字数
	TitleMaxLength int
}

// IngestConfig はドキュメント取り込み設定
type IngestConfig struct {
	// DocumentsDir はローカルドキュメントの格納ディレクトリ
	DocumentsDir string

	// SourceLinksFile はソース名→外部ドキュメントURLの対応表（JSON、省略可）
	SourceLinksFile string

	// CloneDir はGitソースのclone先ディレクトリ
	CloneDir string

	// SSHKeyPath はGitソース取得に使うSSH秘密鍵のパス（省略可）
	SSHKeyPath string

	// SSHKeyPassword はSSH秘密鍵のパスフレーズ（省略可）
	SSHKeyPassword string

	// UnidocLicenseKey はPDF抽出(UniDoc)のメータードライセンスキー（省略可）
	UnidocLicenseKey string
}

// ServerConfig はHTTPサーバ設定
type ServerConfig struct {
	Addr string
}

// LogConfig はログ出力設定
type LogConfig struct {
	Level  string // "debug" / "info" / "warn" / "error"
	Format string // "json" or "text"
}

// Load は環境変数または.envファイルから設定を読み込み、検証します
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "ragchat"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "ragchat"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			ChatModel:          getEnv("CHAT_MODEL", "gpt-4o-mini"),
			EmbeddingModel:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("EMBEDDING_DIMENSION", 1536),
			Temperature:        getEnvAsFloat("TEMPERATURE", 0.1),
		},
		RAG: RAGConfig{
			Threshold:          getEnvAsFloat("RAG_THRESHOLD", 1.2),
			TopK:               getEnvAsInt("TOP_K_RESULTS", 3),
			ChunkSize:          getEnvAsInt("CHUNK_SIZE", 500),
			ChunkOverlap:       getEnvAsInt("CHUNK_OVERLAP", 100),
			ContextTokenBudget: getEnvAsInt("CONTEXT_TOKEN_BUDGET", 3000),
		},
		Chat: ChatConfig{
			TitleMaxLength: getEnvAsInt("TITLE_MAX_LENGTH", 15),
		},
		Ingest: IngestConfig{
			DocumentsDir:     getEnv("DOCUMENTS_DIR", "data/documents"),
			SourceLinksFile:  getEnv("SOURCE_LINKS_FILE", ""),
			CloneDir:         getEnv("CLONE_DIR", "data/repos"),
			SSHKeyPath:       getEnv("GIT_SSH_KEY_PATH", ""),
			SSHKeyPassword:   getEnv("GIT_SSH_KEY_PASSWORD", ""),
			UnidocLicenseKey: getEnv("UNIDOC_LICENSE_KEY", ""),
		},
		Server: ServerConfig{
			Addr: getEnv("SERVER_ADDR", ":8080"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate は設定値のドメインを検証します
// 不正な値は起動を中断させる（補正して続行しない）
func (c *Config) Validate() error {
	if c.RAG.Threshold < 0.0 || c.RAG.Threshold > 2.0 {
		return fmt.Errorf("%w: RAG_THRESHOLD は 0.0〜2.0 の範囲で指定してください (値: %g)", ErrInvalidConfig, c.RAG.Threshold)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("%w: TOP_K_RESULTS は正の整数で指定してください (値: %d)", ErrInvalidConfig, c.RAG.TopK)
	}
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE は正の整数で指定してください (値: %d)", ErrInvalidConfig, c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 {
		return fmt.Errorf("%w: CHUNK_OVERLAP は0以上で指定してください (値: %d)", ErrInvalidConfig, c.RAG.ChunkOverlap)
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP は CHUNK_SIZE より小さくしてください (overlap=%d, size=%d)", ErrInvalidConfig, c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	if c.RAG.ContextTokenBudget <= 0 {
		return fmt.Errorf("%w: CONTEXT_TOKEN_BUDGET は正の整数で指定してください (値: %d)", ErrInvalidConfig, c.RAG.ContextTokenBudget)
	}
	if c.Chat.TitleMaxLength <= 0 {
		return fmt.Errorf("%w: TITLE_MAX_LENGTH は正の整数で指定してください (値: %d)", ErrInvalidConfig, c.Chat.TitleMaxLength)
	}
	if c.OpenAI.EmbeddingDimension <= 0 {
		return fmt.Errorf("%w: EMBEDDING_DIMENSION は正の整数で指定してください (値: %d)", ErrInvalidConfig, c.OpenAI.EmbeddingDimension)
	}
	if c.OpenAI.Temperature < 0.0 || c.OpenAI.Temperature > 2.0 {
		return fmt.Errorf("%w: TEMPERATURE は 0.0〜2.0 の範囲で指定してください (値: %g)", ErrInvalidConfig, c.OpenAI.Temperature)
	}
	return nil
}

// SourceLinks はソース名→外部ドキュメントURLの対応表を読み込みます
// ファイル未指定の場合は空のマップを返す
func (c *Config) SourceLinks() (map[string]string, error) {
	if c.Ingest.SourceLinksFile == "" {
		return map[string]string{}, nil
	}

	data, err := os.ReadFile(c.Ingest.SourceLinksFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read source links file: %w", err)
	}

	links := map[string]string{}
	if err := json.Unmarshal(data, &links); err != nil {
		return nil, fmt.Errorf("failed to parse source links file: %w", err)
	}

	return links, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
