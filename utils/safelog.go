// utils/safelog.go
// ============================================================================
// SAFE LOGGING - Masque les données sensibles en production
// ============================================================================

package utils

import (
	"fmt"
	"log"
	"os"
	"regexp"
)

var (
	// IsProduction détermine si on est en mode production
	IsProduction = os.Getenv("GIN_MODE") == "release" ||
		os.Getenv("ENVIRONMENT") == "production" ||
		os.Getenv("ENV") == "production"
)

var (
	emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	ibanRegex  = regexp.MustCompile(`[A-Z]{2}\d{2}[A-Z0-9]{10,30}`)
	uuidRegex  = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	// Bearer tokens must never reach the logs, even in development.
	bearerRegex = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/-]+=*`)
)

// MaskString masque les données sensibles dans une chaîne
func MaskString(input string) string {
	result := bearerRegex.ReplaceAllString(input, "Bearer ***")
	if !IsProduction {
		return result
	}

	result = emailRegex.ReplaceAllString(result, "***@***.***")
	result = ibanRegex.ReplaceAllString(result, "****IBAN****")
	result = uuidRegex.ReplaceAllStringFunc(result, func(id string) string {
		return id[:8] + "..."
	})

	return result
}

// MaskID masque partiellement un ID (garde les 8 premiers caractères)
func MaskID(id string) string {
	if !IsProduction {
		return id
	}
	if len(id) <= 8 {
		return "***"
	}
	return id[:8] + "..."
}

// MaskEmail masque un email
func MaskEmail(email string) string {
	if !IsProduction {
		return email
	}
	return "***@***.***"
}

// SafeLog log un message en masquant les données sensibles
func SafeLog(format string, args ...interface{}) {
	log.Print(MaskString(fmt.Sprintf(format, args...)))
}

// LogConsentAction log une action sur un consentement sans exposer les IDs complets
func LogConsentAction(action string, consentID string, userID string) {
	log.Printf("[Consent] %s - Consent: %s User: %s", action, MaskID(consentID), MaskID(userID))
}

// LogSweep log le résultat d'un job planifié
func LogSweep(job string, processed int, failed int) {
	log.Printf("[Sweep] %s - Processed: %d Failed: %d", job, processed, failed)
}
