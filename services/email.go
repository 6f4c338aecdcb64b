package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

type EmailService struct {
	apiKey    string
	fromEmail string
	endpoint  string
}

func NewEmailService(apiKey, fromEmail string) *EmailService {
	return &EmailService{
		apiKey:    apiKey,
		fromEmail: fromEmail,
		endpoint:  "https://api.sendgrid.com/v3/mail/send",
	}
}

func (s *EmailService) SendVerificationCode(to, code string, expiryMinutes int) error {
	if s.apiKey == "" {
		return fmt.Errorf("SENDGRID_API_KEY not configured")
	}

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: sans-serif; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: linear-gradient(135deg, #2d6a4f 0%%, #40916c 100%%); color: white; padding: 30px; border-radius: 10px 10px 0 0; }
        .content { background: #f8f9fa; padding: 30px; }
        .code { font-size: 32px; letter-spacing: 8px; font-weight: bold; color: #2d6a4f; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>🔐 Code de vérification MoMali</h1>
        </div>
        <div class="content">
            <p>Bonjour,</p>
            <p>Votre code de vérification est :</p>
            <p class="code">%s</p>
            <p style="color: #e74c3c; margin-top: 30px;">⚠️ Ce code expire dans %d minutes.</p>
        </div>
    </div>
</body>
</html>
	`, code, expiryMinutes)

	payload := map[string]interface{}{
		"personalizations": []map[string]interface{}{
			{"to": []map[string]string{{"email": to}}},
		},
		"from":    map[string]string{"email": s.fromEmail, "name": "MoMali"},
		"subject": "Votre code de vérification MoMali",
		"content": []map[string]string{
			{"type": "text/html", "value": htmlBody},
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", s.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.apiKey))
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("failed to send email: status %d", resp.StatusCode)
	}

	return nil
}
