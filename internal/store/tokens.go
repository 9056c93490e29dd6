package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/lodestone-ai/lodestone/internal/vault"
)

// tokens.json holds one sealed envelope containing a provider → token map.
// The file is opaque without the vault key; connector workers that would
// consume the tokens live outside this repo.

func (t *Tenant) tokensPath() string {
	return filepath.Join(t.dir, "tokens.json")
}

// SetToken stores a connector token under the provider name, resealing the
// whole envelope.
func (t *Tenant) SetToken(v *vault.Vault, provider, token string) error {
	if provider == "" {
		return fmt.Errorf("%w: token provider is required", ErrValidation)
	}

	t.metaMu.Lock()
	defer t.metaMu.Unlock()

	tokens, err := t.readTokens(v)
	if err != nil {
		return err
	}
	if tokens == nil {
		tokens = make(map[string]string)
	}
	tokens[provider] = token

	plain, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("store: marshal tokens: %w", err)
	}
	env, err := v.Seal(plain)
	if err != nil {
		return fmt.Errorf("store: seal tokens: %w", err)
	}
	return writeJSON(t.tokensPath(), env)
}

// TokenProviders lists the providers with a stored token, without exposing
// the tokens themselves.
func (t *Tenant) TokenProviders(v *vault.Vault) ([]string, error) {
	t.metaMu.Lock()
	defer t.metaMu.Unlock()

	tokens, err := t.readTokens(v)
	if err != nil {
		return nil, err
	}
	providers := make([]string, 0, len(tokens))
	for p := range tokens {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	return providers, nil
}

// Token returns the stored token for one provider.
func (t *Tenant) Token(v *vault.Vault, provider string) (string, error) {
	t.metaMu.Lock()
	defer t.metaMu.Unlock()

	tokens, err := t.readTokens(v)
	if err != nil {
		return "", err
	}
	tok, ok := tokens[provider]
	if !ok {
		return "", fmt.Errorf("%w: token not found: %s", ErrNotFound, provider)
	}
	return tok, nil
}

func (t *Tenant) readTokens(v *vault.Vault) (map[string]string, error) {
	var env vault.Envelope
	if err := readJSON(t.tokensPath(), &env); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	plain, err := v.Open(env)
	if err != nil {
		return nil, fmt.Errorf("store: open token envelope: %w", err)
	}
	tokens := make(map[string]string)
	if err := json.Unmarshal(plain, &tokens); err != nil {
		return nil, fmt.Errorf("store: parse tokens: %w", err)
	}
	return tokens, nil
}
