package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// TokenStore persists oauth2 tokens as JSON files, one per provider,
// under a credentials directory.
type TokenStore struct {
	dir string
}

func NewTokenStore(dir string) *TokenStore {
	return &TokenStore{dir: dir}
}

func (s *TokenStore) Path(p Provider) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_token.json", p))
}

func (s *TokenStore) Save(p Provider, token *oauth2.Token) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path(p), data, 0o600)
}

func (s *TokenStore) Load(p Provider) (*oauth2.Token, error) {
	data, err := os.ReadFile(s.Path(p))
	if err != nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parse token file %s: %w", s.Path(p), err)
	}
	return &token, nil
}
