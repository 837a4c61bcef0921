package gateway

import (
	"errors"
	"fmt"
	"os"
)

// ServiceType はゲートウェイが振り分け先として認識するバックエンドサービスの種別。
type ServiceType string

const (
	// ServiceAuth は認証サービス。
	ServiceAuth ServiceType = "auth"
	// ServiceChatbot はチャットボットサービス。
	ServiceChatbot ServiceType = "chatbot"
	// ServiceReport はレポート管理サービス。
	ServiceReport ServiceType = "report"
	// ServiceDisclosure は開示情報サービス。
	ServiceDisclosure ServiceType = "disclosure"
	// ServiceClimate は気候変動分析サービス。
	ServiceClimate ServiceType = "climate-service"
	// ServiceDsdgen はDSD生成サービス。
	ServiceDsdgen ServiceType = "dsdgen"
	// ServiceDsdcheck はDSD検証サービス。
	ServiceDsdcheck ServiceType = "dsdcheck"
	// ServiceN8n はワークフロー自動化サービス。
	ServiceN8n ServiceType = "n8n"
)

// ErrUnknownService は振り分け先として認識できないサービス名を表す。
var ErrUnknownService = errors.New("未知のサービスです")

// serviceURLEnv はサービスごとの接続先URL環境変数と既定値の対応。
var serviceURLEnv = map[ServiceType]struct {
	envKey     string
	defaultURL string
}{
	ServiceAuth:       {"AUTH_SERVICE_URL", "http://auth:8084"},
	ServiceChatbot:    {"CHATBOT_SERVICE_URL", "http://chatbot:8081"},
	ServiceReport:     {"REPORT_SERVICE_URL", "http://report:8082"},
	ServiceDisclosure: {"DISCLOSURE_SERVICE_URL", "http://disclosure:8083"},
	ServiceClimate:    {"CLIMATE_SERVICE_URL", "http://climate-service:8087"},
	ServiceDsdgen:     {"DSDGEN_SERVICE_URL", "http://dsdgen:8085"},
	ServiceDsdcheck:   {"DSDCHECK_SERVICE_URL", "http://dsdcheck:8086"},
	ServiceN8n:        {"N8N_SERVICE_URL", "http://n8n:5678"},
}

// fileRequiredServices はマルチパート形式でのファイル転送を必要とするサービスの集合。
var fileRequiredServices = map[ServiceType]struct{}{
	ServiceClimate:  {},
	ServiceDsdcheck: {},
}

// ParseServiceType はリクエストパスのサービス名をServiceTypeに変換する。
// 認識できない名前の場合はErrUnknownServiceを返す。
func ParseServiceType(name string) (ServiceType, error) {
	st := ServiceType(name)
	if _, ok := serviceURLEnv[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownService, name)
	}
	return st, nil
}

// RequiresFileUpload はサービスがマルチパートでのファイル転送を必要とするかを返す。
func (s ServiceType) RequiresFileUpload() bool {
	_, ok := fileRequiredServices[s]
	return ok
}

// loadServiceURLs は環境変数からサービスごとの接続先URLを読み込む。
// 未設定のサービスにはDocker Compose上のサービス名を使った既定値を適用する。
func loadServiceURLs() map[ServiceType]string {
	urls := make(map[ServiceType]string, len(serviceURLEnv))
	for st, cfg := range serviceURLEnv {
		urls[st] = getEnvOr(cfg.envKey, cfg.defaultURL)
	}
	return urls
}

// getEnvOr は環境変数の値を返す。未設定または空の場合はfallbackを返す。
func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
