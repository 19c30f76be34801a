package instance

import (
	"os"
	"strings"
)

const fallbackID = "local"

// GetID identifies this process in logs and lock ownership. Explicit
// configuration wins over the platform dyno name and the hostname.
func GetID() string {
	for _, key := range []string{"ORDERFLOW_INSTANCE_ID", "DYNO"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
