package notifier

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"transitions-api-go/logcolors"

	log "github.com/sirupsen/logrus"
)

const (
	// Default cooldown between alerts of the same type
	DefaultAlertCooldown = 15 * time.Minute
)

// AlertHandler handles events and sends notifications
type AlertHandler struct {
	notifiers        []Notifier
	cooldowns        map[EventType]time.Time // last alert time per event type
	cooldownDuration time.Duration
	mu               sync.RWMutex
}

// AlertConfig holds configuration for the alert handler
type AlertConfig struct {
	Notifiers        []Notifier
	CooldownDuration time.Duration
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(config AlertConfig) *AlertHandler {
	cooldown := config.CooldownDuration
	if cooldown == 0 {
		cooldown = DefaultAlertCooldown
	}

	handler := &AlertHandler{
		notifiers:        config.Notifiers,
		cooldowns:        make(map[EventType]time.Time),
		cooldownDuration: cooldown,
	}

	return handler
}

// Start subscribes the handler to the global event bus
func (h *AlertHandler) Start() {
	h.StartOn(GetEventBus())
}

// StartOn subscribes the handler to the given bus
func (h *AlertHandler) StartOn(bus *EventBus) {
	bus.SubscribeAll(h.handleEvent)
	log.Infof("%s Alert handler started (cooldown: %v, notifiers: %d)",
		logcolors.LogNotifier, h.cooldownDuration, len(h.notifiers))
}

// handleEvent processes incoming events
func (h *AlertHandler) handleEvent(event *Event) {
	// Check cooldown
	if !h.shouldAlert(event.Type) {
		log.Debugf("%s Skipping alert for %s (cooldown active)", logcolors.LogNotifier, event.Type)
		return
	}

	// Format and send the alert
	subject, message := h.formatAlert(event)
	if subject == "" {
		return // Unknown event type
	}

	h.sendAlert(subject, message)
}

// shouldAlert checks if we should send an alert based on cooldown
func (h *AlertHandler) shouldAlert(eventType EventType) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	lastAlert, exists := h.cooldowns[eventType]
	if !exists || time.Since(lastAlert) >= h.cooldownDuration {
		h.cooldowns[eventType] = time.Now()
		return true
	}
	return false
}

// formatAlert formats an event into a notification message
func (h *AlertHandler) formatAlert(event *Event) (subject, message string) {
	switch event.Type {
	// Critical events
	case EventCircuitBreakerOpen:
		name := getString(event.Data, "name")
		failures := getInt(event.Data, "failures")
		cooldown := getString(event.Data, "cooldown")
		subject = "Circuit Breaker OPEN"
		message = fmt.Sprintf(
			"The %s circuit breaker has tripped after %d consecutive failures.\n\n"+
				"Requests to this provider will be skipped for %s.\n\n"+
				"Action: Check the provider's status page and credentials.",
			name, failures, cooldown)

	case EventProviderAuthFailure:
		provider := getString(event.Data, "provider")
		statusCode := getInt(event.Data, "status_code")
		subject = "Provider Auth Failure"
		message = fmt.Sprintf(
			"Provider '%s' received HTTP %d (authentication failed).\n\n"+
				"Its API key may be expired or revoked.\n\n"+
				"Action: Rotate the key and reload the configuration.",
			provider, statusCode)

	case EventServerStartupFailed:
		component := getString(event.Data, "component")
		errMsg := getString(event.Data, "error")
		subject = "Server Startup FAILED"
		message = fmt.Sprintf(
			"The server failed to start.\n\n"+
				"Component: %s\n"+
				"Error: %s\n\n"+
				"Action: Check logs and fix the issue immediately.",
			component, errMsg)

	// Warning events
	case EventHighFailureRate:
		name := getString(event.Data, "name")
		failures := getInt(event.Data, "failures")
		threshold := getInt(event.Data, "threshold")
		subject = "High Failure Rate Warning"
		message = fmt.Sprintf(
			"The %s circuit breaker has recorded %d/%d failures.\n\n"+
				"If failures continue, the circuit will open and the provider will be skipped.\n\n"+
				"Action: Monitor the situation closely.",
			name, failures, threshold)

	case EventGenerationFailed:
		id := getString(event.Data, "transition_id")
		kind := getString(event.Data, "kind")
		provider := getString(event.Data, "provider")
		if provider == "" {
			provider = "n/a"
		}
		subject = "Transition Generation Failed"
		message = fmt.Sprintf(
			"Transition %s failed.\n\n"+
				"  • Kind: %s\n"+
				"  • Provider: %s",
			id, kind, provider)

	case EventProviderFallback:
		from := getString(event.Data, "from")
		to := getString(event.Data, "to")
		reason := getString(event.Data, "reason")
		subject = "Provider Fallback"
		message = fmt.Sprintf("Generation moved from '%s' to '%s' (%s).", from, to, reason)

	// Info events
	case EventCircuitBreakerRecovered:
		name := getString(event.Data, "name")
		subject = "Circuit Breaker Recovered"
		message = fmt.Sprintf("The %s circuit breaker has recovered and is now operational.", name)

	case EventServerStarted:
		port := getString(event.Data, "port")
		provider := getString(event.Data, "provider")
		fallbacks := getStringSlice(event.Data, "fallbacks")
		subject = "Server Started"
		if len(fallbacks) > 0 {
			message = fmt.Sprintf(
				"Server started successfully on port %s.\n\n"+
					"Providers:\n"+
					"  • Primary: %s\n"+
					"  • Fallbacks: %s",
				port, provider, strings.Join(fallbacks, ", "))
		} else {
			message = fmt.Sprintf("Server started successfully on port %s with provider %s.", port, provider)
		}

	case EventCacheCleared:
		entries := getInt(event.Data, "entries")
		subject = "Cache Cleared"
		message = fmt.Sprintf("Result cache has been cleared (%d entries dropped).\n\nStored transitions were kept.", entries)

	default:
		return "", ""
	}

	// Add severity emoji prefix
	switch event.Severity {
	case SeverityCritical:
		subject = "🚨 " + subject
	case SeverityWarning:
		subject = "⚠️ " + subject
	case SeverityInfo:
		subject = "ℹ️ " + subject
	}

	return subject, message
}

// sendAlert sends the alert through all configured notifiers
func (h *AlertHandler) sendAlert(subject, message string) {
	if len(h.notifiers) == 0 {
		log.Warnf("%s No notifiers configured, skipping alert: %s", logcolors.LogNotifier, subject)
		return
	}

	log.Infof("%s Sending alert: %s", logcolors.LogNotifier, subject)

	successCount := 0
	for _, n := range h.notifiers {
		if err := n.Send(subject, message); err != nil {
			log.Errorf("%s Failed to send alert via notifier: %v", logcolors.LogNotifier, err)
		} else {
			successCount++
		}
	}

	if successCount > 0 {
		log.Infof("%s Alert sent successfully via %d/%d notifiers", logcolors.LogNotifier, successCount, len(h.notifiers))
	}
}

// ResetCooldown manually resets the cooldown for a specific event type
// Useful for testing or when you want to force an alert
func (h *AlertHandler) ResetCooldown(eventType EventType) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.cooldowns, eventType)
}

// ResetAllCooldowns resets all cooldowns
func (h *AlertHandler) ResetAllCooldowns() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cooldowns = make(map[EventType]time.Time)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key].(string); ok {
		return val
	}
	return ""
}

func getInt(data map[string]interface{}, key string) int {
	if val, ok := data[key].(int); ok {
		return val
	}
	return 0
}

// getStringSlice safely gets a string slice from event data, returning empty slice if missing
func getStringSlice(data map[string]interface{}, key string) []string {
	if val, ok := data[key].([]string); ok {
		return val
	}
	return nil
}
