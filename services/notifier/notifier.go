package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"transitions-api-go/logcolors"

	log "github.com/sirupsen/logrus"
)

const (
	defaultTelegramAPI = "https://api.telegram.org"
	defaultNtfyServer  = "https://ntfy.sh"
	sendTimeout        = 10 * time.Second
)

// Notifier delivers an alert to one channel
type Notifier interface {
	Name() string
	Send(subject, message string) error
}

var httpClient = &http.Client{Timeout: sendTimeout}

// EmailNotifier sends alerts through an SMTP relay with PLAIN auth
type EmailNotifier struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	ToEmail      string
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Send(subject, message string) error {
	auth := smtp.PlainAuth("", e.SMTPUsername, e.SMTPPassword, e.SMTPHost)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", e.FromEmail)
	fmt.Fprintf(&msg, "To: %s\r\n", e.ToEmail)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(strings.ReplaceAll(message, "\n", "\r\n"))
	msg.WriteString("\r\n")

	addr := e.SMTPHost + ":" + e.SMTPPort
	if err := smtp.SendMail(addr, auth, e.FromEmail, []string{e.ToEmail}, []byte(msg.String())); err != nil {
		return fmt.Errorf("email to %s: %w", e.ToEmail, err)
	}

	log.Infof("%s Email alert sent to %s", logcolors.LogNotifier, e.ToEmail)
	return nil
}

// TelegramNotifier posts alerts to a chat through the Bot API
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	APIBase  string // defaults to https://api.telegram.org
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) Send(subject, message string) error {
	base := t.APIBase
	if base == "" {
		base = defaultTelegramAPI
	}

	payload, err := json.Marshal(map[string]interface{}{
		"chat_id":    t.ChatID,
		"text":       fmt.Sprintf("*%s*\n\n%s", subject, message),
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(base, "/"), t.BotToken)
	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		// the URL embeds the bot token, keep it out of the error
		return fmt.Errorf("telegram: request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: API returned status %d", resp.StatusCode)
	}

	log.Infof("%s Telegram alert sent to chat %s", logcolors.LogNotifier, t.ChatID)
	return nil
}

// NtfyNotifier publishes alerts to an ntfy topic
type NtfyNotifier struct {
	Topic  string
	Server string // defaults to https://ntfy.sh
}

func (n *NtfyNotifier) Name() string { return "ntfy" }

func (n *NtfyNotifier) Send(subject, message string) error {
	server := n.Server
	if server == "" {
		server = defaultNtfyServer
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(server, "/")+"/"+n.Topic, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("ntfy request: %w", err)
	}
	req.Header.Set("Title", subject)
	req.Header.Set("Priority", "high")
	req.Header.Set("Tags", "musical_note,warning")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ntfy: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ntfy: server returned status %d", resp.StatusCode)
	}

	log.Infof("%s Ntfy alert sent to topic %s", logcolors.LogNotifier, n.Topic)
	return nil
}
