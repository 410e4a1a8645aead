package release

import (
	"fmt"
	"strings"
)

// Type classifies the scope of a release.
type Type string

const (
	// TypeMajor is a major release.
	TypeMajor Type = "MAJOR"
	// TypeMinor is a minor release.
	TypeMinor Type = "MINOR"
	// TypeHotfix is an out-of-band hotfix release.
	TypeHotfix Type = "HOTFIX"
)

// AllTypes returns all valid release types.
func AllTypes() []Type {
	return []Type{TypeMajor, TypeMinor, TypeHotfix}
}

// String returns the string representation of the type.
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the type is a valid release type.
func (t Type) IsValid() bool {
	switch t {
	case TypeMajor, TypeMinor, TypeHotfix:
		return true
	default:
		return false
	}
}

// ParseType parses a string into a Type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("invalid release type: %q", s)
	}
	return t, nil
}

// Platform identifies a shipping platform.
type Platform string

const (
	// PlatformAndroid is the Android platform.
	PlatformAndroid Platform = "ANDROID"
	// PlatformIOS is the iOS platform.
	PlatformIOS Platform = "IOS"
	// PlatformWeb is the web platform.
	PlatformWeb Platform = "WEB"
)

// AllPlatforms returns all valid platforms.
func AllPlatforms() []Platform {
	return []Platform{PlatformAndroid, PlatformIOS, PlatformWeb}
}

// String returns the string representation of the platform.
func (p Platform) String() string {
	return string(p)
}

// IsValid returns true if the platform is valid.
func (p Platform) IsValid() bool {
	switch p {
	case PlatformAndroid, PlatformIOS, PlatformWeb:
		return true
	default:
		return false
	}
}

// DefaultTarget returns the store target a platform conventionally ships to.
func (p Platform) DefaultTarget() Target {
	switch p {
	case PlatformAndroid:
		return TargetPlayStore
	case PlatformIOS:
		return TargetAppStore
	case PlatformWeb:
		return TargetWeb
	default:
		return ""
	}
}

// BuildsArtifacts reports whether the platform produces installable build
// artifacts. Web deploys directly and has no builds to trigger or upload.
func (p Platform) BuildsArtifacts() bool {
	return p == PlatformAndroid || p == PlatformIOS
}

// ParsePlatform parses a string into a Platform.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToUpper(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("invalid platform: %q", s)
	}
	return p, nil
}

// Target identifies a distribution destination.
type Target string

const (
	// TargetPlayStore is the Google Play Store.
	TargetPlayStore Target = "PLAY_STORE"
	// TargetAppStore is the Apple App Store.
	TargetAppStore Target = "APP_STORE"
	// TargetWeb is direct web deployment.
	TargetWeb Target = "WEB"
)

// AllTargets returns all valid targets.
func AllTargets() []Target {
	return []Target{TargetPlayStore, TargetAppStore, TargetWeb}
}

// String returns the string representation of the target.
func (t Target) String() string {
	return string(t)
}

// IsValid returns true if the target is valid.
func (t Target) IsValid() bool {
	switch t {
	case TargetPlayStore, TargetAppStore, TargetWeb:
		return true
	default:
		return false
	}
}

// ParseTarget parses a string into a Target.
func ParseTarget(s string) (Target, error) {
	t := Target(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("invalid target: %q", s)
	}
	return t, nil
}
