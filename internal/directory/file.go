package directory

import (
	"context"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/guardforce/messaging-platform/internal/model"
)

type seedFile struct {
	Users []model.User `toml:"users"`
}

// FileDirectory serves users loaded once from a TOML seed file.
type FileDirectory struct {
	users []model.User
}

// LoadFile reads a TOML seed file of [[users]] tables.
func LoadFile(path string) (*FileDirectory, error) {
	var seed seedFile
	if _, err := toml.DecodeFile(path, &seed); err != nil {
		return nil, fmt.Errorf("decode directory file: %w", err)
	}
	return NewStatic(seed.Users)
}

// NewStatic builds a directory over a fixed user list.
func NewStatic(users []model.User) (*FileDirectory, error) {
	seen := make(map[string]bool, len(users))
	for _, u := range users {
		if u.ID == "" {
			return nil, fmt.Errorf("directory user without id")
		}
		if seen[u.ID] {
			return nil, fmt.Errorf("duplicate directory user %q", u.ID)
		}
		if !u.Role.Valid() {
			return nil, fmt.Errorf("directory user %q: unknown role %q", u.ID, u.Role)
		}
		seen[u.ID] = true
	}
	return &FileDirectory{users: users}, nil
}

// Users returns every user.
func (d *FileDirectory) Users(ctx context.Context) ([]model.User, error) {
	out := make([]model.User, len(d.users))
	copy(out, d.users)
	return out, nil
}

// User returns one user or model.ErrNotFound.
func (d *FileDirectory) User(ctx context.Context, id string) (*model.User, error) {
	return lookup(d.users, id)
}
