package instance

import (
	"os"
	"strings"
)

// GetID identifies this process in logs and lock values. It prefers an
// explicit STOREFRONT_INSTANCE_ID, then the platform dyno name, then the
// hostname.
func GetID() string {
	for _, key := range []string{"STOREFRONT_INSTANCE_ID", "DYNO"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
