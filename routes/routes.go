package routes

import (
	"github.com/gin-gonic/gin"

	"momali-api/handlers"
)

// SetupAuthRoutes sets up public OTP authentication routes.
func SetupAuthRoutes(rg *gin.RouterGroup, authHandler *handlers.AuthHandler) {
	rg.POST("/auth/send-verification-code", authHandler.SendVerificationCode)
	rg.POST("/auth/verify-code", authHandler.VerifyCode)
}

// SetupCallbackRoutes sets up the provider-facing callback endpoints. They
// stay public: the bank redirects the user here without any bearer token.
func SetupCallbackRoutes(rg *gin.RouterGroup, h *handlers.OpenBankingHandler) {
	rg.POST("/open-banking/authorize/callback", h.AuthorizeCallback)
	rg.GET("/open-banking/authorize/callback", h.CallbackPage)
}

// SetupOpenBankingRoutes sets up the protected consent/token/sync routes.
func SetupOpenBankingRoutes(rg *gin.RouterGroup, h *handlers.OpenBankingHandler) {
	rg.POST("/open-banking/consents", h.CreateConsent)
	rg.GET("/open-banking/consents/:consent_id", h.GetConsent)

	rg.POST("/open-banking/tokens/refresh", h.RefreshToken)

	rg.POST("/open-banking/sync/accounts", h.SyncAccounts)
	rg.POST("/open-banking/sync/balances", h.SyncBalances)
	rg.POST("/open-banking/sync/transactions", h.SyncTransactions)
}

// SetupWSRoutes sets up the websocket alert channel.
func SetupWSRoutes(rg *gin.RouterGroup, wsHandler *handlers.WSHandler) {
	rg.GET("/ws/alerts/:user_id", wsHandler.HandleAlerts)
}
