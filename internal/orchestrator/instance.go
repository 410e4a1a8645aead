package orchestrator

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// InstanceID builds the identity a scheduler instance signs its leases
// with. Hostname and PID make collisions across hosts unlikely, the
// random suffix makes them unlikely within one host's PID reuse.
func InstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "railhead"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}
