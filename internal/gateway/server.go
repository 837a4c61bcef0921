package gateway

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/conan-ai/gateway/pkg/blacklist"
	"github.com/conan-ai/gateway/pkg/middleware"
	"github.com/conan-ai/gateway/pkg/token"
)

// Server はAPI Gatewayサービスの HTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// codec はアクセストークンの発行・検証コーデック。
	codec *token.Codec
	// blacklist はトークン失効ストア。
	blacklist *blacklist.Store
	// serviceURLs はバックエンドサービスのURL。
	serviceURLs map[ServiceType]string
	// frontendURL は認証エラー時のリダイレクト先フロントエンドURL。
	frontendURL string
}

// NewServer は新しいGatewayサーバーを生成する。
// JWT_SECRET_KEYが未設定の場合はエラーを返す。
func NewServer(port string) (*Server, error) {
	secret := os.Getenv("JWT_SECRET_KEY")
	if secret == "" {
		return nil, fmt.Errorf("環境変数JWT_SECRET_KEYが設定されていません")
	}

	algorithm := getEnvOr("JWT_ALGORITHM", "HS256")
	expireMinutes, err := strconv.Atoi(getEnvOr("JWT_EXPIRE_MINUTES", "1440"))
	if err != nil || expireMinutes <= 0 {
		return nil, fmt.Errorf("環境変数JWT_EXPIRE_MINUTESが不正です: %q", os.Getenv("JWT_EXPIRE_MINUTES"))
	}

	codec, err := token.NewCodec(secret, algorithm, time.Duration(expireMinutes)*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("トークンコーデックの生成に失敗: %w", err)
	}

	redisAddr := fmt.Sprintf("%s:%s",
		getEnvOr("REDIS_HOST", "redis"),
		getEnvOr("REDIS_PORT", "6379"))
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	store := blacklist.New(redisClient)

	frontendURL := getEnvOr("FRONTEND_URL", "http://localhost:3000")

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{"*"}))
	router.Use(middleware.Auth(middleware.AuthConfig{
		Codec:          codec,
		Revocations:    store,
		ExemptPaths:    exemptPaths(),
		ExemptPrefixes: exemptPrefixes(),
		FailClosed:     os.Getenv("BLACKLIST_FAIL_CLOSED") == "true",
	}))

	s := &Server{
		router:      router,
		port:        port,
		codec:       codec,
		blacklist:   store,
		serviceURLs: loadServiceURLs(),
		frontendURL: frontendURL,
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// exemptPaths は認証を免除する完全一致パスの集合を返す。
func exemptPaths() map[string]struct{} {
	return map[string]struct{}{
		"/":                     {},
		"/docs":                 {},
		"/redoc":                {},
		"/openapi.json":         {},
		"/auth/google/login":    {},
		"/auth/google/callback": {},
		"/api/health":           {},
		"/api/health/":          {},
		"/api/disclosure/health":                           {},
		"/api/disclosure/health/":                          {},
		"/api/disclosure/disclosure-data/concepts":        {},
		"/api/disclosure/disclosure-data/adoption-status": {},
		"/api/disclosure/disclosure-data/disclosures":     {},
		"/api/disclosure/disclosure-data/requirements":    {},
		"/api/disclosure/disclosure-data/terms":           {},
	}
}

// exemptPrefixes は認証を免除するパスの接頭辞を返す。
// 開示情報の個別参照（/terms/123 など）を公開するために使用する。
func exemptPrefixes() []string {
	return []string{
		"/api/disclosure/disclosure-data/",
	}
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// 認証サービスへの中継エンドポイント
	auth := s.router.Group("/auth")
	{
		auth.GET("/google/login", s.handleGoogleLoginProxy())
		auth.GET("/google/callback", s.handleGoogleCallbackProxy())
		auth.GET("/me", s.handleMeProxy())
		auth.POST("/logout", s.handleLogoutProxy())
	}

	// バックエンドサービスへの汎用振り分けエンドポイント
	api := s.router.Group("/api")
	{
		api.GET("/:service/*path", s.handleDispatch())
		api.POST("/:service/*path", s.handleDispatch())
		api.PUT("/:service/*path", s.handleDispatch())
		api.PATCH("/:service/*path", s.handleDispatch())
		api.DELETE("/:service/*path", s.handleDispatch())
	}

	s.router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "API Gateway is running"})
	})
	s.router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"detail": "要求されたリソースが見つかりません",
		})
	})
}

// resolve はサービス種別から転送用プロキシを生成する。
func (s *Server) resolve(service ServiceType) (*ServiceProxy, error) {
	baseURL, ok := s.serviceURLs[service]
	if !ok || baseURL == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
	return NewServiceProxy(baseURL), nil
}

// handleDispatch は/api/:service/*pathへのリクエストをバックエンドに転送する。
//
// サービス名が未知の場合は404を返す。ファイル転送が必要なサービスでは
// マルチパートフォームを読み取って再構成し、それ以外はボディをそのまま
// 転送する。バックエンドへの到達に失敗した場合は500と統一エンベロープを返す。
func (s *Server) handleDispatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		service, err := ParseServiceType(c.Param("service"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"detail": fmt.Sprintf("Unknown service: %s", c.Param("service")),
			})
			return
		}

		proxy, err := s.resolve(service)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"detail": fmt.Sprintf("Unknown service: %s", c.Param("service")),
			})
			return
		}

		var (
			body  []byte
			files []FormFile
		)
		if service.RequiresFileUpload() && isMultipart(c.Request) {
			files, err = readUploadFiles(c)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"detail": "アップロードファイルの読み取りに失敗しました",
				})
				return
			}
		}
		if service.RequiresFileUpload() &&
			strings.Contains(c.Param("path"), "upload") && len(files) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"detail": fmt.Sprintf("サービス%sにはファイルアップロードが必要です", service),
			})
			return
		}
		if len(files) == 0 && c.Request.Body != nil {
			body, err = io.ReadAll(c.Request.Body)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"detail": "リクエストボディの読み取りに失敗しました",
				})
				return
			}
		}

		// サービス名より後ろの残りパスをそのままバックエンドに引き渡す
		status, _, respBody, err := proxy.Request(
			c.Request.Context(),
			c.Request.Method,
			c.Param("path"),
			c.Request.Header,
			body,
			files,
			c.Request.URL.Query(),
		)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"detail": fmt.Sprintf("Gateway error: %s", err.Error()),
			})
			return
		}

		relayResponse(c, status, respBody)
	}
}

// isMultipart はリクエストがマルチパートフォームかどうかを返す。
func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// readUploadFiles はマルチパートフォームからアップロードファイルを読み取る。
func readUploadFiles(c *gin.Context) ([]FormFile, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("マルチパートフォームの解析に失敗: %w", err)
	}

	var files []FormFile
	for fieldName, headers := range form.File {
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				return nil, fmt.Errorf("アップロードファイルのオープンに失敗: %w", err)
			}
			content, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("アップロードファイルの読み取りに失敗: %w", err)
			}
			files = append(files, FormFile{
				FieldName:   fieldName,
				FileName:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Content:     content,
			})
		}
	}
	return files, nil
}
