// Package secret defines the containers used to carry credential material
// through the program. There are two forms:
//
// * Credential
// * Map
//
// A Credential is the access key id and secret key pair as issued by the
// provider. The secret half is held in a Value, which keeps the bytes sealed in
// a memguard enclave and refuses to print itself, so a Credential may be passed
// to the logger without leaking anything.
//
// A Map is the plaintext form handed to a mirror when it stores the rotated
// credential somewhere else. Maps are built on demand and should not be kept.
package secret

import (
	"fmt"

	"github.com/awnumar/memguard"
)

const (
	// This is the key that will be used to map to the access key id in a Map
	// built from a Credential.
	AccessKeyName = "AWS_ACCESS_KEY_ID"

	// This is the key that will be used to map to the secret key in a Map built
	// from a Credential.
	SecretKeyName = "AWS_SECRET_ACCESS_KEY"

	redacted = "[REDACTED]"
)

// Value is sensitive material. The plaintext is only available via Reveal().
// The zero value and a nil *Value both hold the empty secret.
type Value struct {
	enclave *memguard.Enclave
}

// NewValue seals the given string and returns it as a Value.
func NewValue(s string) *Value {
	if s == "" {
		return &Value{}
	}

	// NewEnclave wipes its argument, so hand it a private copy.
	return &Value{enclave: memguard.NewEnclave([]byte(s))}
}

// IsZero returns true if the Value holds no secret.
func (v *Value) IsZero() bool {
	return v == nil || v.enclave == nil
}

// Reveal returns the plaintext secret.
func (v *Value) Reveal() (string, error) {
	if v.IsZero() {
		return "", nil
	}

	lb, err := v.enclave.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open sealed secret: %w", err)
	}
	defer lb.Destroy()

	return string(lb.Bytes()), nil
}

// String always returns a redacted value.
func (v *Value) String() string {
	return redacted
}

// GoString implements the GoStringer interface for %#v formatting.
func (v *Value) GoString() string {
	return redacted
}

// MarshalJSON writes the redacted form. Output that must carry the secret has
// to call Reveal() explicitly.
func (v *Value) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// Credential is an access key pair.
type Credential struct {
	AccessKeyID string
	Secret      *Value
}

// NewCredential seals the secret and returns the pair.
func NewCredential(accessKeyID, secretKey string) Credential {
	return Credential{
		AccessKeyID: accessKeyID,
		Secret:      NewValue(secretKey),
	}
}

// IsZero returns true when no access key id is set.
func (c Credential) IsZero() bool {
	return c.AccessKeyID == ""
}

// Map returns the plaintext form of the credential keyed by AccessKeyName and
// SecretKeyName.
func (c Credential) Map() (Map, error) {
	sk, err := c.Secret.Reveal()
	if err != nil {
		return nil, err
	}

	return Map{
		AccessKeyName: c.AccessKeyID,
		SecretKeyName: sk,
	}, nil
}

// Map is the object used to contain a map of keys to secret values. Upon
// rotation, a Credential is turned into one of these objects containing the
// new values keyed by AccessKeyName and SecretKeyName.
//
// These names may be remapped by the rotation business logic to provide
// per-mirror names.
type Map map[string]string

// Remap returns a copy of the map with keys renamed according to names. Keys
// not named in names keep their original name.
func (m Map) Remap(names map[string]string) Map {
	out := make(Map, len(m))
	for k, v := range m {
		if nk, ok := names[k]; ok && nk != "" {
			out[nk] = v
			continue
		}
		out[k] = v
	}
	return out
}
