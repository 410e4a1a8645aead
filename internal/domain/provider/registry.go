package provider

import (
	"fmt"
	"sync"
)

// Registry resolves the provider serving each capability by registered
// provider type. Providers are constructed once at startup and
// registered explicitly; resolution never builds anything.
type Registry struct {
	mu        sync.RWMutex
	scm       map[string]SCM
	cicd      map[string]CICDWorkflow
	pm        map[string]PMTicket
	testMgmt  map[string]TestManagementRun
	messaging map[string]Messaging
	pollers   map[string]WorkflowPoller
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		scm:       make(map[string]SCM),
		cicd:      make(map[string]CICDWorkflow),
		pm:        make(map[string]PMTicket),
		testMgmt:  make(map[string]TestManagementRun),
		messaging: make(map[string]Messaging),
		pollers:   make(map[string]WorkflowPoller),
	}
}

// RegisterSCM registers an SCM provider under a provider type.
func (r *Registry) RegisterSCM(providerType string, p SCM) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := checkRegistration(providerType, p == nil, r.scm); err != nil {
		return err
	}
	r.scm[providerType] = p
	return nil
}

// RegisterCICD registers a CI/CD workflow provider under a provider type.
func (r *Registry) RegisterCICD(providerType string, p CICDWorkflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := checkRegistration(providerType, p == nil, r.cicd); err != nil {
		return err
	}
	r.cicd[providerType] = p
	return nil
}

// RegisterPM registers a project management provider under a provider type.
func (r *Registry) RegisterPM(providerType string, p PMTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := checkRegistration(providerType, p == nil, r.pm); err != nil {
		return err
	}
	r.pm[providerType] = p
	return nil
}

// RegisterTestManagement registers a test management provider under a
// provider type.
func (r *Registry) RegisterTestManagement(providerType string, p TestManagementRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := checkRegistration(providerType, p == nil, r.testMgmt); err != nil {
		return err
	}
	r.testMgmt[providerType] = p
	return nil
}

// RegisterMessaging registers a messaging provider under a provider type.
func (r *Registry) RegisterMessaging(providerType string, p Messaging) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := checkRegistration(providerType, p == nil, r.messaging); err != nil {
		return err
	}
	r.messaging[providerType] = p
	return nil
}

// RegisterWorkflowPoller registers a workflow poller under a provider type.
func (r *Registry) RegisterWorkflowPoller(providerType string, p WorkflowPoller) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := checkRegistration(providerType, p == nil, r.pollers); err != nil {
		return err
	}
	r.pollers[providerType] = p
	return nil
}

func checkRegistration[T any](providerType string, nilProvider bool, existing map[string]T) error {
	if providerType == "" {
		return fmt.Errorf("provider type cannot be empty")
	}
	if nilProvider {
		return fmt.Errorf("provider cannot be nil")
	}
	if _, ok := existing[providerType]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, providerType)
	}
	return nil
}

// SCM resolves the SCM provider registered under a provider type.
func (r *Registry) SCM(providerType string) (SCM, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.scm[providerType]
	if !ok {
		return nil, notFound(CapabilitySCM, providerType)
	}
	return p, nil
}

// CICD resolves the CI/CD provider registered under a provider type.
func (r *Registry) CICD(providerType string) (CICDWorkflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.cicd[providerType]
	if !ok {
		return nil, notFound(CapabilityCICDWorkflow, providerType)
	}
	return p, nil
}

// PM resolves the project management provider registered under a
// provider type.
func (r *Registry) PM(providerType string) (PMTicket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pm[providerType]
	if !ok {
		return nil, notFound(CapabilityPMTicket, providerType)
	}
	return p, nil
}

// TestManagement resolves the test management provider registered under
// a provider type.
func (r *Registry) TestManagement(providerType string) (TestManagementRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.testMgmt[providerType]
	if !ok {
		return nil, notFound(CapabilityTestManagementRun, providerType)
	}
	return p, nil
}

// Messaging resolves the messaging provider registered under a provider
// type.
func (r *Registry) Messaging(providerType string) (Messaging, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.messaging[providerType]
	if !ok {
		return nil, notFound(CapabilityMessaging, providerType)
	}
	return p, nil
}

// WorkflowPoller resolves the workflow poller registered under a
// provider type. Providers that trigger workflows usually register a
// poller under the same type.
func (r *Registry) WorkflowPoller(providerType string) (WorkflowPoller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pollers[providerType]
	if !ok {
		return nil, notFound(CapabilityWorkflowPolling, providerType)
	}
	return p, nil
}

// CapabilitiesOf lists the capabilities a provider type is registered for.
func (r *Registry) CapabilitiesOf(providerType string) []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Capability, 0, 6)
	if _, ok := r.scm[providerType]; ok {
		out = append(out, CapabilitySCM)
	}
	if _, ok := r.cicd[providerType]; ok {
		out = append(out, CapabilityCICDWorkflow)
	}
	if _, ok := r.pm[providerType]; ok {
		out = append(out, CapabilityPMTicket)
	}
	if _, ok := r.testMgmt[providerType]; ok {
		out = append(out, CapabilityTestManagementRun)
	}
	if _, ok := r.messaging[providerType]; ok {
		out = append(out, CapabilityMessaging)
	}
	if _, ok := r.pollers[providerType]; ok {
		out = append(out, CapabilityWorkflowPolling)
	}
	return out
}

func notFound(capability Capability, providerType string) error {
	return fmt.Errorf("%w: no %s provider registered as %q", ErrProviderNotFound, capability, providerType)
}
