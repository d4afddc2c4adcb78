// Package router 提供 HTTP 路由配置
package router

import (
	"needle-api/internal/interfaces/http/handler"

	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(
	v1 *gin.RouterGroup,
	searchHandler *handler.SearchHandler,
	kbHandler *handler.KBHandler,
	chatHandler *handler.ChatHandler,
	citationHandler *handler.CitationHandler,
) {
	// 语义检索
	search := v1.Group("/search")
	{
		search.POST("/prompt", searchHandler.SearchByPrompt)
		search.POST("/pdf", searchHandler.SearchByPDF)
	}

	// 知识库管理
	kb := v1.Group("/kb")
	{
		kb.POST("/papers", kbHandler.AddArxivPaper)
		kb.POST("/uploads", kbHandler.AddUpload)
		kb.GET("/documents", kbHandler.ListDocuments)
		kb.DELETE("/documents/:did", kbHandler.DeleteDocument)
		kb.GET("/description", kbHandler.GetDescription)
		kb.PUT("/description", kbHandler.PutDescription)
	}
	v1.DELETE("/kb", kbHandler.Clear)

	// 对话会话
	sessions := v1.Group("/sessions")
	{
		sessions.POST("", chatHandler.CreateSession)
		sessions.GET("", chatHandler.ListSessions)
		sessions.GET("/:sid", chatHandler.GetSession)
		sessions.DELETE("/:sid", chatHandler.DeleteSession)
		sessions.GET("/:sid/turns", chatHandler.ListTurns)
		sessions.POST("/:sid/messages", chatHandler.SendMessage)
		sessions.POST("/:sid/messages/stream", chatHandler.StreamMessage) // SSE
	}

	// 引用数查询，DOI 含斜杠所以用通配参数
	v1.GET("/citations/*doi", citationHandler.GetCitations)
}
