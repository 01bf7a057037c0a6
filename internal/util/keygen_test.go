package util

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keyFormat = regexp.MustCompile(`^LH-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`)

func TestGenerateLicenseKeyFormat(t *testing.T) {
	key, err := GenerateLicenseKey()
	require.NoError(t, err)
	assert.Regexp(t, keyFormat, key)
	assert.True(t, ValidLicenseKeyFormat(key))
}

func TestGenerateLicenseKeyUniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		key, err := GenerateLicenseKey()
		require.NoError(t, err)
		_, dup := seen[key]
		require.False(t, dup, "duplicate key generated: %s", key)
		seen[key] = struct{}{}
	}
}

func TestValidLicenseKeyFormatRejections(t *testing.T) {
	for _, bad := range []string{
		"",
		"LH-AAAA-BBBB-CCCC",
		"XX-AAAA-BBBB-CCCC-DDDD",
		"LH-aaaa-bbbb-cccc-dddd",
		"LH-AAAA-BBBB-CCCC-DDDDE",
		"LH_AAAA_BBBB_CCCC_DDDD",
	} {
		assert.False(t, ValidLicenseKeyFormat(bad), "expected %q to be rejected", bad)
	}
}

func TestGenerateAPIKey(t *testing.T) {
	fullKey, prefix, keyHash, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(fullKey, "lh_"+prefix+"_"))
	assert.Len(t, prefix, 8)
	assert.Equal(t, keyHash, HashAPIKey(fullKey))

	_, otherPrefix, otherHash, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, prefix, otherPrefix)
	assert.NotEqual(t, keyHash, otherHash)
}
