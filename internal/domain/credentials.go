package domain

// Credentials hold decrypted exchange API credentials. They exist only
// transiently in memory between keystore decryption and exchange client
// construction. They must never be logged, persisted in plaintext, or
// included in any response payload.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Zero clears the credential fields. Best effort: Go strings are immutable,
// so this drops the references rather than scrubbing the backing memory,
// making the material eligible for release as soon as possible.
func (c *Credentials) Zero() {
	c.APIKey = ""
	c.APISecret = ""
}
