package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Identity is the persisted record of the authenticated agent. It is the
// sole input for the per-message isAdmin computation, so it is loaded
// once at startup and passed around explicitly rather than read from a
// global.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// LoadIdentity reads the agent identity for a profile.
func LoadIdentity(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity: %w", err)
	}
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("parse identity: %w", err)
	}
	if id.ID == "" {
		return nil, fmt.Errorf("identity %s has no agent id", path)
	}
	return &id, nil
}

// SaveIdentity writes the agent identity, creating parent dirs as needed.
func SaveIdentity(path string, id *Identity) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
