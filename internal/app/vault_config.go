package app

import (
	"github.com/charlesng35/attachvault/internal/vault"
	"github.com/charlesng35/attachvault/pkg/crypto"
)

// VaultOptions converts the vault configuration into construction options for
// the conversation crypto engine. An empty salt keeps the built-in application
// salt; changing a deployment's salt invalidates everything already stored.
func (c VaultConfig) VaultOptions() ([]vault.Option, error) {
	var opts []vault.Option

	if c.Salt != "" {
		salt, err := DecodeKey(c.Salt)
		if err != nil {
			return nil, err
		}
		opts = append(opts, vault.WithSalt(salt))
	}

	if c.PBKDF2Iterations > 0 {
		params := crypto.DefaultPBKDF2Params()
		params.Iterations = c.PBKDF2Iterations
		opts = append(opts, vault.WithPBKDF2Parameters(params))
	}

	return opts, nil
}
