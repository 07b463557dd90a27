package logcolors

// ANSI color codes for log prefixes
const (
	Reset  = "\033[0m"
	Green  = "\033[32m"
	Blue   = "\033[34m"
	Purple = "\033[35m"
	Cyan   = "\033[36m"

	// Bright variants for more color variety
	BrightGreen   = "\033[92m"
	BrightBlue    = "\033[94m"
	BrightMagenta = "\033[95m"
	BrightCyan    = "\033[96m"

	Red       = "\033[31m"
	Yellow    = "\033[33m"
	BrightRed = "\033[91m"
)

// Cache and storage log prefixes
const (
	LogCache      = Blue + "[Cache]" + Reset
	LogCacheClear = Blue + "[Cache:Clear]" + Reset
	LogStatus     = Cyan + "[Status]" + Reset
	LogStatusGC   = Cyan + "[Status:Cleanup]" + Reset
	LogStorage    = Blue + "[Storage]" + Reset
)

// Rate limiting log prefixes
const (
	LogRateLimit = Purple + "[RateLimit]" + Reset
	LogAPIKey    = Purple + "[APIKey]" + Reset
)

// CircuitBreakerPrefix returns a colored circuit breaker prefix with the given name
func CircuitBreakerPrefix(name string) string {
	return Purple + "[CircuitBreaker:" + name + "]" + Reset
}

// providerColors rotate so each backend keeps a stable color across log lines
var providerColors = []string{
	Green, Blue, Purple, Cyan,
	BrightGreen, BrightBlue, BrightMagenta, BrightCyan,
}

// ProviderPrefix returns a colored provider prefix.
// Same provider name always gets the same color.
func ProviderPrefix(name string) string {
	hash := 0
	for _, c := range name {
		hash += int(c)
	}
	color := providerColors[hash%len(providerColors)]
	return color + "[Provider:" + name + "]" + Reset
}

// Test/debug log prefixes
const (
	LogTestNotifications = Cyan + "[Test Notifications]" + Reset
)

// Server/Init log prefixes
const (
	LogServer = Green + "[Server]" + Reset
	LogConfig = Cyan + "[Config]" + Reset
	LogStats  = Blue + "[Stats]" + Reset
)

// Notification log prefixes
const (
	LogNotifier = Cyan + "[Notifier]" + Reset
)

// Generation pipeline log prefixes
const (
	LogTransitions = Green + "[Transitions]" + Reset
	LogRequest     = Purple + "[Request]" + Reset
	LogHTTP        = Cyan + "[HTTP]" + Reset
	LogPrompt      = Blue + "[Prompt]" + Reset
	LogAudio       = Cyan + "[Audio]" + Reset
	LogFallback    = Cyan + "[Fallback]" + Reset
	LogAuthError   = Purple + "[Auth Error]" + Reset
	LogWarning     = Red + "[Warning]" + Reset
)

// Health check log prefixes
const (
	LogHealthCheck = Cyan + "[Health Check]" + Reset
)
