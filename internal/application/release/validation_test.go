package release

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/railhead-io/railhead/internal/domain/release"
)

func TestValidateReleaseID(t *testing.T) {
	tests := []struct {
		name    string
		id      release.ReleaseID
		wantErr bool
	}{
		{"valid", "rel-2024_1", false},
		{"empty", "", true},
		{"too long", release.ReleaseID(strings.Repeat("a", MaxReleaseIDLength+1)), true},
		{"leading hyphen", "-rel", true},
		{"shell metacharacters", "rel;rm", true},
		{"spaces", "rel 1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateReleaseID(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFileName(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		wantErr  bool
	}{
		{"apk", "app-1.4.0.apk", false},
		{"ipa", "App.ipa", false},
		{"empty", "", true},
		{"path separator", "builds/app.apk", true},
		{"traversal", "../app.apk", true},
		{"hidden file", ".apk", true},
		{"no extension", "app", true},
		{"too long", strings.Repeat("a", MaxFileNameLength) + ".apk", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFileName(tt.fileName)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateSafeString(t *testing.T) {
	assert.NoError(t, ValidateSafeString("acct-1", "account_id", MaxAccountIDLength))
	assert.Error(t, ValidateSafeString("a\nb", "account_id", MaxAccountIDLength))
	assert.Error(t, ValidateSafeString(strings.Repeat("x", MaxAccountIDLength+1), "account_id", MaxAccountIDLength))
}

func TestValidationErrorCollectsMessages(t *testing.T) {
	v := NewValidationError()
	assert.NoError(t, v.ToError())

	v.Add(ValidateReleaseID(""))
	v.AddMessage("stage must be set")
	err := v.ToError()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "release ID is required")
	assert.Contains(t, err.Error(), "stage must be set")
}
