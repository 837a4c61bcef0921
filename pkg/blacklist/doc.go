// Package blacklist はログアウト済みアクセストークンの失効ストアを提供する。
//
// 失効エントリはトークンの一意識別子（jti）をキーとしてRedisに保持し、
// TTLにはトークンの残り有効期間を設定する。自然に期限切れとなるトークンの
// エントリはRedisのTTLで自動削除されるため、ストアが無限に成長することはない。
package blacklist
