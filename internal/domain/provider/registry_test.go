package provider

import (
	"context"
	"errors"
	"testing"
)

type fakeSCM struct{}

func (fakeSCM) CreateBranch(context.Context, CreateBranchRequest) (BranchResult, error) {
	return BranchResult{}, nil
}
func (fakeSCM) CreateTag(context.Context, CreateTagRequest) (TagResult, error) {
	return TagResult{}, nil
}
func (fakeSCM) CompareRefs(context.Context, CompareRequest) (CompareResult, error) {
	return CompareResult{}, nil
}

type fakeMessaging struct{}

func (fakeMessaging) Send(context.Context, Message) error { return nil }

func TestRegistryRegisterAndResolve(t *testing.T) {
	r := NewRegistry()

	if err := r.RegisterSCM("github", fakeSCM{}); err != nil {
		t.Fatalf("RegisterSCM() error = %v", err)
	}
	if err := r.RegisterMessaging("slack", fakeMessaging{}); err != nil {
		t.Fatalf("RegisterMessaging() error = %v", err)
	}

	if _, err := r.SCM("github"); err != nil {
		t.Errorf("SCM(github) error = %v", err)
	}
	if _, err := r.Messaging("slack"); err != nil {
		t.Errorf("Messaging(slack) error = %v", err)
	}

	if _, err := r.SCM("gitlab"); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("SCM(gitlab) error = %v, want ErrProviderNotFound", err)
	}
	// A registered messaging type is not thereby an SCM type.
	if _, err := r.SCM("slack"); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("SCM(slack) error = %v, want ErrProviderNotFound", err)
	}
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterSCM("github", fakeSCM{}); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterSCM("github", fakeSCM{}); !errors.Is(err, ErrDuplicateProvider) {
		t.Errorf("second RegisterSCM() error = %v, want ErrDuplicateProvider", err)
	}
}

func TestRegistryRejectsEmptyAndNil(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterSCM("", fakeSCM{}); err == nil {
		t.Error("RegisterSCM with empty type accepted")
	}
	if err := r.RegisterSCM("github", nil); err == nil {
		t.Error("RegisterSCM with nil provider accepted")
	}
}

func TestRegistryCapabilitiesOf(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterSCM("github", fakeSCM{}); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterMessaging("github", fakeMessaging{}); err != nil {
		t.Fatal(err)
	}

	caps := r.CapabilitiesOf("github")
	if len(caps) != 2 {
		t.Fatalf("CapabilitiesOf(github) = %v, want 2 capabilities", caps)
	}
	if caps[0] != CapabilitySCM || caps[1] != CapabilityMessaging {
		t.Errorf("CapabilitiesOf(github) = %v", caps)
	}

	if got := r.CapabilitiesOf("nobody"); len(got) != 0 {
		t.Errorf("CapabilitiesOf(nobody) = %v, want empty", got)
	}
}

func TestParseCapability(t *testing.T) {
	c, err := ParseCapability("scm")
	if err != nil || c != CapabilitySCM {
		t.Errorf("ParseCapability(scm) = %v, %v", c, err)
	}
	if _, err := ParseCapability("TELEPATHY"); err == nil {
		t.Error("ParseCapability(TELEPATHY) error = nil, want error")
	}
}
