package release

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// PlatformTargetMapping binds a release to one (platform, target, version)
// triple. A release ships each platform to exactly one target at one version.
// The run id fields start empty and are filled in by the pipeline tasks
// that create the tracking ticket and the test suite run.
type PlatformTargetMapping struct {
	ReleaseID              ReleaseID `json:"releaseId" db:"release_id"`
	Platform               Platform  `json:"platform" db:"platform"`
	Target                 Target    `json:"target" db:"target"`
	Version                string    `json:"version" db:"version"`
	ProjectManagementRunID *string   `json:"projectManagementRunId,omitempty" db:"pm_run_id"`
	TestManagementRunID    *string   `json:"testManagementRunId,omitempty" db:"test_run_id"`
}

// Validate checks the mapping fields.
func (m PlatformTargetMapping) Validate() error {
	if m.ReleaseID == "" {
		return fmt.Errorf("mapping release id cannot be empty")
	}
	if !m.Platform.IsValid() {
		return fmt.Errorf("invalid platform: %s", m.Platform)
	}
	if !m.Target.IsValid() {
		return fmt.Errorf("invalid target: %s", m.Target)
	}
	if _, err := semver.StrictNewVersion(strings.TrimPrefix(m.Version, "v")); err != nil {
		return fmt.Errorf("invalid version %q: %w", m.Version, err)
	}
	return nil
}

// Mappings is the full set of platform target mappings for one release.
type Mappings []PlatformTargetMapping

// Validate checks every mapping and rejects duplicate platforms.
func (ms Mappings) Validate() error {
	if len(ms) == 0 {
		return ErrNoMappings
	}
	seen := make(map[Platform]bool, len(ms))
	for _, m := range ms {
		if err := m.Validate(); err != nil {
			return err
		}
		if seen[m.Platform] {
			return fmt.Errorf("%w: %s", ErrDuplicateMapping, m.Platform)
		}
		seen[m.Platform] = true
	}
	return nil
}

// RecordPMRunID stores the project management run id for one platform.
// It reports whether the platform is mapped.
func (ms Mappings) RecordPMRunID(p Platform, id string) bool {
	for i := range ms {
		if ms[i].Platform == p {
			ms[i].ProjectManagementRunID = &id
			return true
		}
	}
	return false
}

// RecordTestRunID stores the test management run id for one platform.
// It reports whether the platform is mapped.
func (ms Mappings) RecordTestRunID(p Platform, id string) bool {
	for i := range ms {
		if ms[i].Platform == p {
			ms[i].TestManagementRunID = &id
			return true
		}
	}
	return false
}

// HasPlatform reports whether the release targets the given platform.
func (ms Mappings) HasPlatform(p Platform) bool {
	for _, m := range ms {
		if m.Platform == p {
			return true
		}
	}
	return false
}

// VersionFor returns the version shipped for the given platform.
func (ms Mappings) VersionFor(p Platform) (string, bool) {
	for _, m := range ms {
		if m.Platform == p {
			return m.Version, true
		}
	}
	return "", false
}

// Platforms returns the targeted platforms in canonical order.
func (ms Mappings) Platforms() []Platform {
	out := make([]Platform, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Platform)
	}
	sort.Slice(out, func(i, j int) bool {
		return platformOrdinal(out[i]) < platformOrdinal(out[j])
	})
	return out
}

// ReleaseVersion returns the representative version for the release:
// the version of the first targeted platform in canonical order. Tags
// and regression cycle tags are derived from it.
func (ms Mappings) ReleaseVersion() (string, error) {
	if len(ms) == 0 {
		return "", ErrNoMappings
	}
	best := ms[0]
	for _, m := range ms[1:] {
		if platformOrdinal(m.Platform) < platformOrdinal(best.Platform) {
			best = m
		}
	}
	return best.Version, nil
}

// UniformVersion reports whether every platform ships the same version,
// returning that version when true.
func (ms Mappings) UniformVersion() (string, bool) {
	if len(ms) == 0 {
		return "", false
	}
	v := ms[0].Version
	for _, m := range ms[1:] {
		if m.Version != v {
			return "", false
		}
	}
	return v, true
}

// FinalTag builds the release tag name. A uniform version produces
// v{version}; diverging per-platform versions produce a tag qualified
// with each platform, such as v1.2.0-android_v1.3.0-ios.
func (ms Mappings) FinalTag() (string, error) {
	if len(ms) == 0 {
		return "", ErrNoMappings
	}
	if v, ok := ms.UniformVersion(); ok {
		return "v" + v, nil
	}
	ordered := make([]PlatformTargetMapping, len(ms))
	copy(ordered, ms)
	sort.Slice(ordered, func(i, j int) bool {
		return platformOrdinal(ordered[i].Platform) < platformOrdinal(ordered[j].Platform)
	})
	parts := make([]string, 0, len(ordered))
	for _, m := range ordered {
		parts = append(parts, fmt.Sprintf("v%s-%s", m.Version, strings.ToLower(string(m.Platform))))
	}
	return strings.Join(parts, "_"), nil
}

func platformOrdinal(p Platform) int {
	switch p {
	case PlatformAndroid:
		return 0
	case PlatformIOS:
		return 1
	case PlatformWeb:
		return 2
	default:
		return 3
	}
}
