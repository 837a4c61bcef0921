// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// アクセストークンの認証（免除パス判定・失効確認・ユーザーID伝播）、
// パニックリカバリ、CORS設定など、gatewayサービスのリクエスト
// パイプラインを構成するミドルウェアを含む。
package middleware
