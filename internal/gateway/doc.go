// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// 受信リクエストのトークン認証、パスに基づくバックエンドサービスへの
// 振り分け、認証サービスへのOAuthフロー中継を担当する。外部から
// アクセス可能な唯一のサービスであり、セキュリティの境界線として
// 機能する。検証済みユーザーIDをX-User-IDヘッダーとして内部サービスに
// 伝播する。
package gateway
