package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/00-167cm/RAG-chatbot/internal/core/conversation"
	"github.com/00-167cm/RAG-chatbot/internal/shared/clock"
)

// UUIDToPgtype converts uuid.UUID to pgtype.UUID
func UUIDToPgtype(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// PgtypeToUUID converts pgtype.UUID to uuid.UUID
func PgtypeToUUID(id pgtype.UUID) uuid.UUID {
	return id.Bytes
}

// TimeToPgtype converts time.Time to pgtype.Timestamptz
// タイムゾーン付きで保存し、読み出し時にJSTへ戻す
func TimeToPgtype(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

// PgtypeToTime converts pgtype.Timestamptz to time.Time (JST)
func PgtypeToTime(t pgtype.Timestamptz) time.Time {
	return t.Time.In(clock.JST)
}

// JSONBFromChunkRefs converts []conversation.ChunkRef to []byte (JSONB)
func JSONBFromChunkRefs(refs []conversation.ChunkRef) ([]byte, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(refs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chunk refs: %w", err)
	}
	return b, nil
}

// ChunkRefsFromJSONB converts []byte (JSONB) to []conversation.ChunkRef
func ChunkRefsFromJSONB(b []byte) ([]conversation.ChunkRef, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var refs []conversation.ChunkRef
	if err := json.Unmarshal(b, &refs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chunk refs: %w", err)
	}
	return refs, nil
}
