package simulator

import "math/rand/v2"

var successMessages = []string{
	"Data synced successfully",
	"Email delivered",
	"Report generated",
	"Payload processed",
	"Webhook triggered",
	"Database record updated",
	"Cache invalidated",
	"Notification pushed",
}

var failureMessages = []string{
	"Timeout waiting for API",
	"Rate limit exceeded",
	"Connection refused",
	"Invalid JSON payload",
	"Authentication failed",
	"Dependency service unavailable",
}

func pick(pool []string) string {
	return pool[rand.IntN(len(pool))]
}
