package api

import (
	"github.com/gin-gonic/gin"

	"dexhub/metrics"
)

// RegisterRoutes 註冊所有HTTP路由
func (impl *ServerImpl) RegisterRoutes(router *gin.Engine) {
	router.Use(metrics.GinMiddleware())
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// 登入流程需要session來保存一次性的驗證參數
	auth := router.Group("/auth", impl.SessionMiddleware())
	{
		auth.GET("/sso/:provider/login", impl.GetAuthSsoProviderLogin)
		auth.GET("/sso/:provider/callback", impl.GetAuthSsoProviderCallback)
		auth.GET("/logout", impl.GetAuthLogout)
	}

	auction := router.Group("/auction")
	{
		auction.POST("/item", impl.PostAuctionItem)
		auction.GET("/items", impl.GetAuctionItems)
		auction.GET("/item/:itemID", impl.GetAuctionItemItemID)
		auction.POST("/item/:itemID/bids", impl.PostAuctionItemItemIDBids)
		auction.POST("/item/:itemID/close", impl.PostAuctionItemItemIDClose)
		auction.GET("/item/:itemID/live", impl.GetAuctionItemItemIDLive)
		auction.GET("/item/:itemID/comments", impl.GetAuctionItemItemIDComments)
		auction.POST("/item/:itemID/comments", impl.PostAuctionItemItemIDComments)
	}

	dex := router.Group("/dex")
	{
		dex.GET("", impl.GetDex)
		dex.POST("/:cardID/checkin", impl.PostDexCardIDCheckin)
	}

	users := router.Group("/users")
	{
		users.GET("/:userID", impl.GetUsersUserID)
		users.POST("/:userID/follow", impl.PostUsersUserIDFollow)
		users.DELETE("/:userID/follow", impl.DeleteUsersUserIDFollow)
	}

	events := router.Group("/events")
	{
		events.GET("", impl.GetEvents)
		events.POST("/:eventID/registration", impl.PostEventsEventIDRegistration)
		events.DELETE("/:eventID/registration", impl.DeleteEventsEventIDRegistration)
	}

	router.GET("/user/info", impl.GetUserInfo)
	router.PATCH("/user/info", impl.PatchUserInfo)
	router.POST("/image", impl.PostImage)
	router.DELETE("/image/:imageID", impl.DeleteImageImageID)
}
