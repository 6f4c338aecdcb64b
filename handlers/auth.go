package handlers

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"momali-api/config"
	"momali-api/models"
	"momali-api/services"
	"momali-api/store"
	"momali-api/utils"
)

type AuthHandler struct {
	store    store.Store
	consents *services.ConsentService
	email    *services.EmailService
	settings *config.Settings
}

func NewAuthHandler(st store.Store, consents *services.ConsentService, email *services.EmailService, settings *config.Settings) *AuthHandler {
	return &AuthHandler{store: st, consents: consents, email: email, settings: settings}
}

// SendVerificationCode génère et envoie un code OTP à 6 chiffres.
// Deux garde-fous : délai minimal entre deux envois, plafond horaire.
func (h *AuthHandler) SendVerificationCode(c *gin.Context) {
	var req models.SendVerificationCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	now := time.Now().UTC()
	if latest, err := h.store.LatestCode(c.Request.Context(), email); err == nil {
		gap := time.Duration(h.settings.OTPResendMinSeconds) * time.Second
		if now.Sub(latest.LastSentAt) < gap {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "a code was sent recently, please wait before requesting another"})
			return
		}
	} else if err != store.ErrNotFound {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	sentLastHour, err := h.store.CountCodesSince(c.Request.Context(), email, now.Add(-time.Hour))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if sentLastHour >= h.settings.OTPMaxPerHour {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many codes requested, try again later"})
		return
	}

	user, err := h.consents.GetOrCreateUser(c.Request.Context(), "", "", email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	code, err := generateOTP()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	record := &models.EmailVerificationCode{
		UserID:      user.ID,
		Email:       email,
		CodeHash:    utils.HashOTP(h.settings.JWTSecret, email, code),
		ExpiresAt:   now.Add(time.Duration(h.settings.OTPExpiryMinutes) * time.Minute),
		MaxAttempts: h.settings.OTPMaxAttempts,
		LastSentAt:  now,
	}
	if err := h.store.CreateCode(c.Request.Context(), record); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if err := h.email.SendVerificationCode(email, code, h.settings.OTPExpiryMinutes); err != nil {
		utils.SafeLog("❌ [Auth] failed to send verification code to %s: %v", utils.MaskEmail(email), err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to send verification email"})
		return
	}

	utils.SafeLog("📧 [Auth] verification code sent to %s", utils.MaskEmail(email))
	c.JSON(http.StatusOK, models.SendVerificationCodeResponse{
		MaskedEmail:      maskEmailAddress(email),
		ExpiresInSeconds: h.settings.OTPExpiryMinutes * 60,
	})
}

// VerifyCode valide le code, marque l'email vérifié et émet un JWT.
func (h *AuthHandler) VerifyCode(c *gin.Context) {
	var req models.VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	record, err := h.store.LatestCode(c.Request.Context(), email)
	if err == store.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pending verification code for this email"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	now := time.Now().UTC()
	if now.After(record.ExpiresAt) {
		c.JSON(http.StatusGone, gin.H{"error": "verification code has expired"})
		return
	}
	if record.Attempts >= record.MaxAttempts {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts, request a new code"})
		return
	}

	if !utils.VerifyOTPHash(h.settings.JWTSecret, email, req.Code, record.CodeHash) {
		if err := h.store.IncrementAttempts(c.Request.Context(), record.ID); err != nil {
			utils.SafeLog("⚠️ [Auth] failed to record attempt: %v", err)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid verification code"})
		return
	}

	if err := h.store.ConsumeCode(c.Request.Context(), record.ID, now); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if err := h.store.MarkEmailVerified(c.Request.Context(), record.UserID, now); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	accessToken, err := utils.GenerateAccessToken(h.settings.JWTSecret, record.UserID, email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	utils.SafeLog("✅ [Auth] email verified for %s", utils.MaskEmail(email))
	c.JSON(http.StatusOK, models.VerifyCodeResponse{Verified: true, AccessToken: accessToken})
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// maskEmailAddress garde la première lettre du local-part : j***@example.com
func maskEmailAddress(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
