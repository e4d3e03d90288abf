package instance

import "os"

// GetID returns the identifier logged by worker processes so overlapping
// runs can be told apart. It prefers the explicit TRACKBEAM_WORKER_ID,
// then the container hostname.
func GetID() string {
	if id := os.Getenv("TRACKBEAM_WORKER_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
