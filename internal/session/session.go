// Package session owns the client's conversation identifier.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Key is the local store key holding the identifier.
const Key = "chat_id"

// KV is the slice of the local store the identifier needs.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// NewID returns "<unix millis>-<8 random chars>". Unique enough to correlate a
// conversation upstream; not meant to be globally unique.
func NewID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), randomSuffix(8))
}

// LoadOrCreate returns the persisted identifier, creating and saving one on first use.
// If the store is nil or fails, a fresh identifier is returned for this process only.
func LoadOrCreate(ctx context.Context, kv KV) string {
	if kv == nil {
		return NewID()
	}

	id, ok, err := kv.Get(ctx, Key)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load chat id, using a temporary one")
		return NewID()
	}
	if ok && id != "" {
		return id
	}

	id = NewID()
	if err := kv.Set(ctx, Key, id); err != nil {
		log.Warn().Err(err).Msg("failed to persist chat id")
	}
	return id
}

func randomSuffix(n int) string {
	s := strings.ReplaceAll(uuid.New().String(), "-", "")
	return s[:n]
}
