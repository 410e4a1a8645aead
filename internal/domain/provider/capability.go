// Package provider defines the external-system capabilities pipeline
// tasks call out to, and the registry that resolves a tenant's
// configured provider for each capability.
package provider

import (
	"fmt"
	"strings"
)

// Capability names one kind of external integration a provider can serve.
type Capability string

// Capabilities.
const (
	CapabilitySCM               Capability = "SCM"
	CapabilityCICDWorkflow      Capability = "CICD_WORKFLOW"
	CapabilityPMTicket          Capability = "PM_TICKET"
	CapabilityTestManagementRun Capability = "TEST_MANAGEMENT_RUN"
	CapabilityMessaging         Capability = "MESSAGING"
	CapabilityWorkflowPolling   Capability = "WORKFLOW_POLLING"
)

// AllCapabilities returns every capability.
func AllCapabilities() []Capability {
	return []Capability{
		CapabilitySCM,
		CapabilityCICDWorkflow,
		CapabilityPMTicket,
		CapabilityTestManagementRun,
		CapabilityMessaging,
		CapabilityWorkflowPolling,
	}
}

// String returns the string representation.
func (c Capability) String() string { return string(c) }

// IsValid checks if the capability is valid.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilitySCM, CapabilityCICDWorkflow, CapabilityPMTicket,
		CapabilityTestManagementRun, CapabilityMessaging, CapabilityWorkflowPolling:
		return true
	}
	return false
}

// ParseCapability parses a capability from a string.
func ParseCapability(raw string) (Capability, error) {
	c := Capability(strings.ToUpper(strings.TrimSpace(raw)))
	if !c.IsValid() {
		return "", fmt.Errorf("invalid capability: %q", raw)
	}
	return c, nil
}
