package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// proxyTimeout はバックエンドへのリクエスト全体のタイムアウト。
const proxyTimeout = 30 * time.Second

// proxyClient はバックエンド転送用の共有HTTPクライアント。
// リダイレクトは追跡せず、バックエンドが返した3xxをそのまま扱う。
var proxyClient = &http.Client{
	Timeout: proxyTimeout,
	CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
		return http.ErrUseLastResponse
	},
}

// FormFile はバックエンドへマルチパート転送するアップロードファイル。
type FormFile struct {
	// FieldName はマルチパートのフィールド名。
	FieldName string
	// FileName は元のファイル名。
	FileName string
	// ContentType はファイルのContent-Type。空の場合はapplication/octet-stream。
	ContentType string
	// Content はファイルの内容。
	Content []byte
}

// ServiceProxy は単一バックエンドサービスへのリクエスト転送を担う。
type ServiceProxy struct {
	// baseURL はバックエンドのベースURL（例: http://report:8082）。
	baseURL string
	// client は転送に使用するHTTPクライアント。
	client *http.Client
}

// NewServiceProxy はbaseURLを転送先とするプロキシを生成する。
func NewServiceProxy(baseURL string) *ServiceProxy {
	return &ServiceProxy{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  proxyClient,
	}
}

// Request はバックエンドへリクエストを転送し、レスポンスを返す。
//
// filesが指定された場合はマルチパートボディを組み立てて転送し、
// それ以外はbodyをそのまま転送する。headerのHostとContent-Lengthは
// 転送時に除外し、クエリパラメータはそのまま引き継ぐ。
// レスポンスボディはクローズ済みの状態で返す。
func (p *ServiceProxy) Request(
	ctx context.Context,
	method, path string,
	header http.Header,
	body []byte,
	files []FormFile,
	params url.Values,
) (int, http.Header, []byte, error) {
	targetURL := p.baseURL + path
	if len(params) > 0 {
		targetURL += "?" + params.Encode()
	}

	var (
		reqBody     io.Reader
		contentType string
	)
	if len(files) > 0 {
		buf, ct, err := buildMultipartBody(files)
		if err != nil {
			return 0, nil, nil, err
		}
		reqBody = buf
		contentType = ct
	} else if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, targetURL, reqBody)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("転送リクエストの作成に失敗: %w", err)
	}

	copyProxyHeader(req.Header, header)
	if contentType != "" {
		// マルチパート組み立て時はboundary付きContent-Typeで上書きする
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("バックエンドへの転送に失敗: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("バックエンドレスポンスの読み取りに失敗: %w", err)
	}
	return resp.StatusCode, resp.Header, respBody, nil
}

// buildMultipartBody はアップロードファイルからマルチパートボディを組み立てる。
// 戻り値の2番目はboundaryを含むContent-Type。
func buildMultipartBody(files []FormFile) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	for _, f := range files {
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		partHeader := textproto.MIMEHeader{}
		partHeader.Set("Content-Disposition", fmt.Sprintf(
			`form-data; name=%q; filename=%q`, f.FieldName, f.FileName))
		partHeader.Set("Content-Type", contentType)

		part, err := writer.CreatePart(partHeader)
		if err != nil {
			return nil, "", fmt.Errorf("マルチパートの組み立てに失敗: %w", err)
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, "", fmt.Errorf("マルチパートの書き込みに失敗: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("マルチパートの終端書き込みに失敗: %w", err)
	}
	return buf, writer.FormDataContentType(), nil
}

// copyProxyHeader は受信ヘッダーを転送用ヘッダーにコピーする。
// HostとContent-Lengthは転送先に合わせて再計算されるため除外する。
func copyProxyHeader(dst, src http.Header) {
	for key, values := range src {
		if http.CanonicalHeaderKey(key) == "Host" ||
			http.CanonicalHeaderKey(key) == "Content-Length" {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

// relayResponse はバックエンドのレスポンスをクライアント向けに変換して書き込む。
//
// 変換規約:
//   - 200かつ有効なJSON: ボディをそのまま返す
//   - 200かつ不正なJSON: 500と統一エンベロープを返す
//   - 200以外: ステータスコードを維持し、ボディを {"detail": <text>} に包む
func relayResponse(c *gin.Context, status int, body []byte) {
	if status == http.StatusOK {
		var payload any
		if err := json.Unmarshal(body, &payload); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"detail": "Invalid JSON response from service",
			})
			return
		}
		c.JSON(http.StatusOK, payload)
		return
	}

	c.JSON(status, gin.H{
		"detail": fmt.Sprintf("Service error: %s", strings.TrimSpace(string(body))),
	})
}
