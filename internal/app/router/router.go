package router

import (
	"github.com/gin-gonic/gin"

	deckshandler "cube_wizard/internal/feature/decks/transport/handler"
	ingesthandler "cube_wizard/internal/feature/ingest/transport/handler"
	healthhandler "cube_wizard/internal/platform/http/handler"
	jwtmw "cube_wizard/internal/platform/jwt"
)

func NewRouter(health *healthhandler.HealthHandler, decks *deckshandler.DecksHandler,
	ingest *ingesthandler.IngestHandler) *gin.Engine {
	r := gin.Default()
	// multipart の画像はメモリ上に保持する
	r.MaxMultipartMemory = ingesthandler.MaxImageBytes

	// 認証不要
	// 導通確認用
	r.Match([]string{"GET", "HEAD", "OPTIONS"}, "/healthz", health.Health)

	v1 := r.Group("/v1")
	// 参照系
	v1.GET("/decks/:id", decks.GetDeck)
	v1.GET("/cubes/:cube_id/decks", decks.ListCubeDecks)

	// 認証必須のルート
	// jwtmw.AuthRequired() ミドルウェアを適用
	// → リクエストヘッダーに JWT が必要になる
	auth := v1.Group("/")
	auth.Use(jwtmw.AuthRequired())
	{
		auth.POST("/decks/process", ingest.ProcessDeck)
		auth.POST("/decks/:id/resolve", decks.ResolveCard)
		auth.DELETE("/decks/:id", decks.DeleteDeck)
	}

	return r
}
