package chrome

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionHeadersDefaults(t *testing.T) {
	headers := sessionHeaders(nil)

	assert.Equal(t, "en-US,en;q=0.9", headers["Accept-Language"])
	assert.Contains(t, headers, "Accept")
	assert.Contains(t, headers, "Accept-Encoding")
}

func TestSessionHeadersTaskOverridesWin(t *testing.T) {
	headers := sessionHeaders(map[string]string{
		"Accept-Language": "sv-SE",
		"X-Tenant":        "acme",
	})

	assert.Equal(t, "sv-SE", headers["Accept-Language"])
	assert.Equal(t, "acme", headers["X-Tenant"])
	assert.Contains(t, headers, "Accept", "baseline headers survive a partial override")
}

func TestStealthScriptMasksAutomation(t *testing.T) {
	assert.Contains(t, stealthScript, "'webdriver'")
	assert.Contains(t, stealthScript, "'plugins'")
	assert.Contains(t, stealthScript, "window.chrome")
	assert.True(t, strings.HasPrefix(defaultUserAgent, "Mozilla/5.0"))
}

func TestNewRuntimeDoesNotLaunchChrome(t *testing.T) {
	// The allocator launches lazily; constructing and closing a runtime
	// must work on hosts without a Chrome binary.
	rt := NewRuntime(Options{NoSandbox: true})
	require.NotNil(t, rt)
	require.NoError(t, rt.Close())
}
