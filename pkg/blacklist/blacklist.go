package blacklist

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix は失効エントリのRedisキー接頭辞。
// 認証サービスと同じキー形式（blacklist:<jti>）を共有する。
const keyPrefix = "blacklist:"

// entryValue は失効エントリの値。存在確認のみに使うため内容に意味はない。
const entryValue = "blacklisted"

// Store はRedisを使ったトークン失効ストア。
// 内部のRedisクライアントは並行利用に対して安全であり、
// Store自体も複数のリクエストから同時に使用できる。
type Store struct {
	client *redis.Client
}

// New は失効ストアを生成する。
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Revoke はjtiを失効登録する。ttlにはトークンの残り有効期間を指定し、
// その時間が経過するとエントリは自動削除される。
// ttlが0以下（トークンがすでに期限切れ）の場合は登録せずに成功を返す。
// すでに登録済みのjtiを再登録しても同じ結果になる（冪等）。
func (s *Store) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, keyPrefix+jti, entryValue, ttl).Err(); err != nil {
		return fmt.Errorf("失効エントリの登録に失敗: %w", err)
	}
	return nil
}

// IsRevoked はjtiが失効済みかどうかを返す。
// エントリが存在しない場合は未失効とみなす（TTL切れで消えた場合、
// トークン自体も期限切れのため問題にならない）。
// ストア障害時はエラーを返す。フェイルオープンにするかフェイル
// クローズにするかの判断は呼び出し側（認証ミドルウェア）に委ねる。
func (s *Store) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, keyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("失効エントリの確認に失敗: %w", err)
	}
	return n > 0, nil
}
