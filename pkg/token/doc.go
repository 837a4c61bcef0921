// Package token はアクセストークンの発行と検証を提供する。
//
// トークンはHMAC署名付きのコンパクトな文字列で、ユーザーID・メール
// アドレス・有効期限・一意識別子（jti）をクレームとして持つ。
// jtiはログアウト時の失効管理（pkg/blacklist）のキーとして使用する。
// コーデック自身は失効状態を確認しない。失効確認は認証ミドルウェアが
// 別ステップとして合成する。
package token
