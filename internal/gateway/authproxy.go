package gateway

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/conan-ai/gateway/pkg/middleware"
)

// handleGoogleLoginProxy はGoogle OAuth開始リクエストを認証サービスに中継する。
// 認証サービスが返すGoogleへのリダイレクトをそのままクライアントに返す。
func (s *Server) handleGoogleLoginProxy() gin.HandlerFunc {
	return func(c *gin.Context) {
		status, header, body, err := s.relayAuthRequest(c, http.MethodGet, "/auth/google/login")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"detail": fmt.Sprintf("Gateway error: %s", err.Error()),
			})
			return
		}
		s.relayAuthResponse(c, status, header, body, false)
	}
}

// handleGoogleCallbackProxy はGoogle OAuthコールバックを認証サービスに中継する。
//
// 認証サービスはトークンをクッキーに載せてフロントエンドへリダイレクトするため、
// Set-Cookieヘッダーを含めて中継する。認証サービスに到達できない場合は
// エラー付きでフロントエンドのログイン画面にリダイレクトする。
func (s *Server) handleGoogleCallbackProxy() gin.HandlerFunc {
	return func(c *gin.Context) {
		status, header, body, err := s.relayAuthRequest(c, http.MethodGet, "/auth/google/callback")
		if err != nil {
			log.Printf("認証コールバックの中継に失敗: %v", err)
			c.Redirect(http.StatusTemporaryRedirect,
				fmt.Sprintf("%s/login?error=gateway_error", s.frontendURL))
			return
		}
		s.relayAuthResponse(c, status, header, body, true)
	}
}

// handleMeProxy は現在のユーザー情報の取得を認証サービスに中継する。
func (s *Server) handleMeProxy() gin.HandlerFunc {
	return func(c *gin.Context) {
		status, header, body, err := s.relayAuthRequest(c, http.MethodGet, "/auth/me")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"detail": fmt.Sprintf("Gateway error: %s", err.Error()),
			})
			return
		}
		s.relayAuthResponse(c, status, header, body, false)
	}
}

// handleLogoutProxy はログアウトを処理する。
//
// トークンの失効登録はゲートウェイ自身が行う。リクエストからトークンを
// 取り出し、jtiを残り有効期間ぶんだけ失効ストアに登録したうえで、
// クッキー削除のために認証サービスへログアウトを中継する。
// トークンが不正な場合でも中継は行う（クッキー削除を妨げない）。
func (s *Server) handleLogoutProxy() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString := middleware.ExtractToken(c.Request); tokenString != "" {
			claims, err := s.codec.Decode(tokenString)
			if err != nil {
				log.Printf("ログアウト時のトークン検証に失敗: %v", err)
			} else if claims.ID != "" {
				ttl := claims.RemainingValidity(time.Now())
				if err := s.blacklist.Revoke(c.Request.Context(), claims.ID, ttl); err != nil {
					log.Printf("トークンの失効登録に失敗: jti=%s error=%v", claims.ID, err)
				}
			}
		}

		status, header, body, err := s.relayAuthRequest(c, http.MethodPost, "/auth/logout")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"detail": fmt.Sprintf("Gateway error: %s", err.Error()),
			})
			return
		}
		s.relayAuthResponse(c, status, header, body, true)
	}
}

// relayAuthRequest は認証サービスへリクエストを中継する。
// クエリパラメータとクッキーを含む受信ヘッダーをそのまま引き継ぐ。
func (s *Server) relayAuthRequest(c *gin.Context, method, path string) (int, http.Header, []byte, error) {
	proxy, err := s.resolve(ServiceAuth)
	if err != nil {
		return 0, nil, nil, err
	}
	return proxy.Request(
		c.Request.Context(),
		method,
		path,
		c.Request.Header,
		nil,
		nil,
		c.Request.URL.Query(),
	)
}

// relayAuthResponse は認証サービスのレスポンスをクライアントに中継する。
//
// リダイレクト（3xx）の場合はLocationを維持し、withCookiesが指定されて
// いればSet-Cookieも引き継ぐ。Locationの無い3xxは異常なレスポンスと
// みなして500を返す。それ以外はJSONボディを中継し、ボディが空の場合は
// {"detail": "No content"} を返す。
func (s *Server) relayAuthResponse(c *gin.Context, status int, header http.Header, body []byte, withCookies bool) {
	if withCookies {
		for _, cookie := range header.Values("Set-Cookie") {
			c.Writer.Header().Add("Set-Cookie", cookie)
		}
	}

	if status >= http.StatusMultipleChoices && status < http.StatusBadRequest {
		location := header.Get("Location")
		if location == "" {
			c.JSON(http.StatusInternalServerError, gin.H{
				"detail": "Locationヘッダーが欠落したリダイレクトレスポンスです",
			})
			return
		}
		c.Redirect(status, location)
		return
	}

	if len(body) == 0 {
		c.JSON(status, gin.H{"detail": "No content"})
		return
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"detail": "Invalid JSON response from service",
		})
		return
	}
	c.JSON(status, payload)
}
