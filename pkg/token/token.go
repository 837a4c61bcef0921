package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims はアクセストークンのクレーム（ペイロード）を表す。
// ユーザーID等の情報をサービス間で伝播するために使用する。
// 一意識別子jtiはRegisteredClaims.IDとして保持する。
type Claims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。
	UserID string `json:"user_id"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email,omitempty"`
}

// RemainingValidity はnow時点でのトークンの残り有効期間を返す。
// すでに期限切れの場合は0以下の値を返す。失効登録時のTTL計算に使用する。
func (c *Claims) RemainingValidity(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Time.Sub(now)
}

// Codec はアクセストークンの発行と検証を行う。
// 署名鍵とアルゴリズムはプロセス起動時に一度だけ設定し、以降は変更しない。
// 全メソッドは共有状態を変更しないため並行呼び出しに対して安全。
type Codec struct {
	// secret はHMAC署名の秘密鍵。
	secret []byte
	// method は署名アルゴリズム。検証時も同じアルゴリズムに限定する。
	method jwt.SigningMethod
	// issuer はトークンのiss（発行者）クレーム。
	issuer string
	// ttl は発行時の既定の有効期間。
	ttl time.Duration
}

// NewCodec はトークンコーデックを生成する。
// secretが空、またはalgorithmがHMAC系（HS256/HS384/HS512）以外の場合は
// エラーを返す。構成不備は起動時に失敗させる。
func NewCodec(secret, algorithm string, ttl time.Duration) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("署名秘密鍵が設定されていません")
	}

	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return nil, fmt.Errorf("未対応の署名アルゴリズム: %q", algorithm)
	}
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("未対応の署名アルゴリズム: %q", algorithm)
	}

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Codec{
		secret: []byte(secret),
		method: method,
		issuer: "esg-gateway",
		ttl:    ttl,
	}, nil
}

// Issue はユーザー情報から署名付きアクセストークンを発行する。
// jtiには毎回新しいUUIDを採番する。ttlが0以下の場合は既定値を使用する。
func (c *Codec) Issue(userID, email string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    c.issuer,
		},
		UserID: userID,
		Email:  email,
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Decode はトークンの署名と有効期限を検証し、クレームを返す。
// 署名アルゴリズムはコーデックに設定されたものだけを受け入れる。
// 検証失敗の理由（署名不正・期限切れ・形式不正）は区別せず一律エラーとする。
func (c *Codec) Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{c.method.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("トークンの検証に失敗: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("トークンが無効です")
	}
	return claims, nil
}
