package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/conan-ai/gateway/pkg/token"
)

// headerKeyUserID はサービス間でユーザーIDを伝播するためのHTTPヘッダーキー。
const headerKeyUserID = "X-User-ID"

// cookieKeyAccessToken はヘッダーの代替として参照するアクセストークンクッキー名。
const cookieKeyAccessToken = "access_token"

// RevocationChecker はトークンの失効状態を確認する。
// 本番実装は pkg/blacklist のStoreが提供する。
type RevocationChecker interface {
	// IsRevoked はjtiが失効済みかどうかを返す。ストア障害時はエラーを返す。
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// AuthConfig は認証ミドルウェアの設定。
type AuthConfig struct {
	// Codec はトークンの検証に使用するコーデック。
	Codec *token.Codec
	// Revocations は失効ストア。nilの場合は失効確認を行わない。
	Revocations RevocationChecker
	// ExemptPaths は認証を免除する完全一致パスの集合。
	ExemptPaths map[string]struct{}
	// ExemptPrefixes は認証を免除するパスの接頭辞。
	ExemptPrefixes []string
	// FailClosed がtrueの場合、失効ストア障害時にリクエストを拒否する。
	// 既定はfalse（障害をログに残して通過させるフェイルオープン）。
	FailClosed bool
}

// isExempt はパスが認証免除対象かどうかを返す。
// 完全一致を先に確認し、次に接頭辞一致を確認する。
func (cfg AuthConfig) isExempt(path string) bool {
	if _, ok := cfg.ExemptPaths[path]; ok {
		return true
	}
	for _, prefix := range cfg.ExemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Auth は全リクエストに対してトークン認証を行うGinミドルウェアを返す。
//
// 免除パスとCORSプリフライト（OPTIONS）はそのまま通過させる。
// それ以外のリクエストはAuthorizationヘッダー（優先）または
// access_tokenクッキーからトークンを抽出し、署名・有効期限・失効状態を
// 検証する。検証に成功した場合、受信リクエストにX-User-IDヘッダーを
// 付与して後段のプロキシおよびバックエンドへ伝播する。
//
// ステータスコードの契約: トークン不在=401、署名・期限不正=403、失効済み=401。
func Auth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		if cfg.isExempt(c.Request.URL.Path) {
			c.Next()
			return
		}

		tokenString := ExtractToken(c.Request)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"detail": "認証情報がありません",
			})
			return
		}

		claims, err := cfg.Codec.Decode(tokenString)
		if err != nil {
			// 失敗理由の詳細はログにのみ残し、クライアントには区別を漏らさない
			log.Printf("トークン検証に失敗: %v", err)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"detail": "無効または期限切れのトークンです",
			})
			return
		}

		if jti := claims.ID; jti != "" && cfg.Revocations != nil {
			revoked, err := cfg.Revocations.IsRevoked(c.Request.Context(), jti)
			switch {
			case err != nil:
				// 失効ストア障害。既定はフェイルオープン
				log.Printf("失効ストアへの問い合わせに失敗: jti=%s error=%v", jti, err)
				if cfg.FailClosed {
					c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
						"detail": "認証状態を確認できません",
					})
					return
				}
			case revoked:
				log.Printf("失効済みトークンの使用を検出: jti=%s user_id=%s", jti, claims.UserID)
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"detail": "無効化されたトークンです。再度ログインしてください",
				})
				return
			}
		}

		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)
		// 後段のプロキシが受信ヘッダーをそのまま転送するだけで
		// バックエンドに検証済みユーザーIDが届くよう、リクエストに付与する
		c.Request.Header.Set(headerKeyUserID, claims.UserID)
		c.Next()
	}
}

// ExtractToken はリクエストからアクセストークンを取り出す。
// Authorizationヘッダーのbearerスキーム（大文字小文字は区別しない）を優先し、
// ヘッダーから取得できない場合はaccess_tokenクッキーを参照する。
// どちらにも無い場合は空文字列を返す。
func ExtractToken(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); authz != "" {
		parts := strings.Fields(authz)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		// ヘッダー形式が不正な場合は無視してクッキーの確認に進む
	}

	if cookie, err := r.Cookie(cookieKeyAccessToken); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// GetUserID はGinコンテキストから認証済みユーザーIDを取得する。
// Authミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}
