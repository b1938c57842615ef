package lease

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// NewHolderID returns an id unique to this process: hostname, pid and a random
// suffix, so two processes on one host never share an id.
func NewHolderID() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.NewString()[:8])
}
