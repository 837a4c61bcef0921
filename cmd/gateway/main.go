// API Gatewayサービスのエントリポイント。
// トークン認証、バックエンドサービスへの振り分け、OAuthフローの中継を
// 担当する。外部からアクセス可能な唯一のサービスであり、セキュリティの
// 境界線となる。
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/conan-ai/gateway/internal/gateway"
)

func main() {
	// .envはローカル開発用。無くてもエラーにしない
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server, err := gateway.NewServer(port)
	if err != nil {
		log.Fatalf("Gatewayサーバーの初期化に失敗: %v", err)
	}

	log.Printf("Gatewayサービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("Gatewayサービスの起動に失敗: %v", err)
	}
}
