package secret

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueReveal(t *testing.T) {
	v := NewValue("wJalrXUtnFEMI")
	require.False(t, v.IsZero(), "value holds a secret")

	s, err := v.Reveal()
	assert.NoError(t, err, "reveal works")
	assert.Equal(t, "wJalrXUtnFEMI", s, "reveal returns the plaintext")

	s, err = v.Reveal()
	assert.NoError(t, err, "reveal works twice")
	assert.Equal(t, "wJalrXUtnFEMI", s, "the enclave survives a reveal")
}

func TestValueZero(t *testing.T) {
	assert.True(t, NewValue("").IsZero(), "empty string is zero")

	var v *Value
	assert.True(t, v.IsZero(), "nil is zero")

	s, err := v.Reveal()
	assert.NoError(t, err, "nil reveals without error")
	assert.Equal(t, "", s, "nil reveals the empty string")
}

func TestValueRedacts(t *testing.T) {
	v := NewValue("hunter2")

	assert.Equal(t, "[REDACTED]", v.String(), "String redacts")
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", v), "%%v redacts")
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%#v", v), "%%#v redacts")

	c := NewCredential("AKIAEXAMPLE", "hunter2")
	out, err := json.Marshal(c)
	require.NoError(t, err, "credential marshals")
	assert.NotContains(t, string(out), "hunter2", "json does not carry the secret")
	assert.Contains(t, string(out), "AKIAEXAMPLE", "json carries the key id")
}

func TestCredentialMap(t *testing.T) {
	c := NewCredential("AKIAEXAMPLE", "hunter2")
	assert.False(t, c.IsZero(), "credential is set")
	assert.True(t, Credential{}.IsZero(), "empty credential is zero")

	m, err := c.Map()
	require.NoError(t, err, "map builds")
	assert.Equal(t, Map{
		AccessKeyName: "AKIAEXAMPLE",
		SecretKeyName: "hunter2",
	}, m, "map holds plaintext")

	rm := m.Remap(map[string]string{
		AccessKeyName: "DEPLOY_KEY_ID",
	})
	assert.Equal(t, Map{
		"DEPLOY_KEY_ID": "AKIAEXAMPLE",
		SecretKeyName:   "hunter2",
	}, rm, "remap renames only the named keys")
	assert.Contains(t, m, AccessKeyName, "remap leaves the original alone")
}
