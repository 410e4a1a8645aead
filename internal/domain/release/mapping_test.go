package release

import (
	"errors"
	"testing"
)

func testMappings() Mappings {
	return Mappings{
		{ReleaseID: "rel-1", Platform: PlatformIOS, Target: TargetAppStore, Version: "1.4.0"},
		{ReleaseID: "rel-1", Platform: PlatformAndroid, Target: TargetPlayStore, Version: "1.4.0"},
	}
}

func TestMappingValidate(t *testing.T) {
	tests := []struct {
		name    string
		mapping PlatformTargetMapping
		wantErr bool
	}{
		{
			"valid",
			PlatformTargetMapping{ReleaseID: "r", Platform: PlatformAndroid, Target: TargetPlayStore, Version: "1.2.3"},
			false,
		},
		{
			"v prefix tolerated",
			PlatformTargetMapping{ReleaseID: "r", Platform: PlatformIOS, Target: TargetAppStore, Version: "v1.2.3"},
			false,
		},
		{
			"missing release",
			PlatformTargetMapping{Platform: PlatformAndroid, Target: TargetPlayStore, Version: "1.2.3"},
			true,
		},
		{
			"bad platform",
			PlatformTargetMapping{ReleaseID: "r", Platform: "WINDOWS", Target: TargetPlayStore, Version: "1.2.3"},
			true,
		},
		{
			"bad version",
			PlatformTargetMapping{ReleaseID: "r", Platform: PlatformAndroid, Target: TargetPlayStore, Version: "1.2"},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mapping.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMappingsValidate(t *testing.T) {
	if err := (Mappings{}).Validate(); !errors.Is(err, ErrNoMappings) {
		t.Errorf("Validate() on empty = %v, want ErrNoMappings", err)
	}

	dup := Mappings{
		{ReleaseID: "r", Platform: PlatformAndroid, Target: TargetPlayStore, Version: "1.0.0"},
		{ReleaseID: "r", Platform: PlatformAndroid, Target: TargetPlayStore, Version: "1.1.0"},
	}
	if err := dup.Validate(); !errors.Is(err, ErrDuplicateMapping) {
		t.Errorf("Validate() with duplicate platform = %v, want ErrDuplicateMapping", err)
	}

	if err := testMappings().Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestMappingsLookups(t *testing.T) {
	ms := testMappings()

	if !ms.HasPlatform(PlatformIOS) || ms.HasPlatform(PlatformWeb) {
		t.Error("HasPlatform gave wrong answers")
	}

	v, ok := ms.VersionFor(PlatformAndroid)
	if !ok || v != "1.4.0" {
		t.Errorf("VersionFor(android) = %q, %v", v, ok)
	}
	if _, ok := ms.VersionFor(PlatformWeb); ok {
		t.Error("VersionFor(web) ok = true, want false")
	}

	platforms := ms.Platforms()
	if len(platforms) != 2 || platforms[0] != PlatformAndroid || platforms[1] != PlatformIOS {
		t.Errorf("Platforms() = %v, want [ANDROID IOS]", platforms)
	}
}

func TestMappingsRecordRunIDs(t *testing.T) {
	ms := testMappings()

	if !ms.RecordPMRunID(PlatformIOS, "REL-7") {
		t.Fatal("RecordPMRunID(ios) = false, want true")
	}
	if !ms.RecordTestRunID(PlatformIOS, "suite-3") {
		t.Fatal("RecordTestRunID(ios) = false, want true")
	}
	if ms.RecordPMRunID(PlatformWeb, "REL-8") {
		t.Error("RecordPMRunID(web) = true for an unmapped platform")
	}

	for _, m := range ms {
		switch m.Platform {
		case PlatformIOS:
			if m.ProjectManagementRunID == nil || *m.ProjectManagementRunID != "REL-7" {
				t.Errorf("ios ProjectManagementRunID = %v, want REL-7", m.ProjectManagementRunID)
			}
			if m.TestManagementRunID == nil || *m.TestManagementRunID != "suite-3" {
				t.Errorf("ios TestManagementRunID = %v, want suite-3", m.TestManagementRunID)
			}
		default:
			if m.ProjectManagementRunID != nil || m.TestManagementRunID != nil {
				t.Errorf("%s run ids = %v/%v, want unset", m.Platform, m.ProjectManagementRunID, m.TestManagementRunID)
			}
		}
	}
}

func TestMappingsReleaseVersion(t *testing.T) {
	ms := testMappings()
	v, err := ms.ReleaseVersion()
	if err != nil {
		t.Fatalf("ReleaseVersion() error = %v", err)
	}
	// Android is first in canonical platform order.
	if v != "1.4.0" {
		t.Errorf("ReleaseVersion() = %q, want 1.4.0", v)
	}

	if _, err := (Mappings{}).ReleaseVersion(); !errors.Is(err, ErrNoMappings) {
		t.Errorf("ReleaseVersion() on empty = %v, want ErrNoMappings", err)
	}
}

func TestMappingsFinalTag(t *testing.T) {
	uniform := testMappings()
	tag, err := uniform.FinalTag()
	if err != nil {
		t.Fatalf("FinalTag() error = %v", err)
	}
	if tag != "v1.4.0" {
		t.Errorf("FinalTag() = %q, want v1.4.0", tag)
	}

	divergent := Mappings{
		{ReleaseID: "r", Platform: PlatformIOS, Target: TargetAppStore, Version: "1.3.0"},
		{ReleaseID: "r", Platform: PlatformAndroid, Target: TargetPlayStore, Version: "1.2.0"},
	}
	tag, err = divergent.FinalTag()
	if err != nil {
		t.Fatalf("FinalTag() error = %v", err)
	}
	if tag != "v1.2.0-android_v1.3.0-ios" {
		t.Errorf("FinalTag() = %q, want v1.2.0-android_v1.3.0-ios", tag)
	}
}

func TestMappingsUniformVersion(t *testing.T) {
	if _, ok := testMappings().UniformVersion(); !ok {
		t.Error("UniformVersion() ok = false for uniform mappings")
	}
	divergent := Mappings{
		{ReleaseID: "r", Platform: PlatformIOS, Target: TargetAppStore, Version: "1.3.0"},
		{ReleaseID: "r", Platform: PlatformAndroid, Target: TargetPlayStore, Version: "1.2.0"},
	}
	if _, ok := divergent.UniformVersion(); ok {
		t.Error("UniformVersion() ok = true for divergent mappings")
	}
}
