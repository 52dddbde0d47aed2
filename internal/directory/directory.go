// Package directory adapts the external user directory: users with a name, role
// and region. The messaging platform never writes to it.
package directory

import (
	"context"
	"fmt"
	"sort"

	"github.com/guardforce/messaging-platform/internal/model"
)

// Directory provides read-only access to platform users.
type Directory interface {
	Users(ctx context.Context) ([]model.User, error)
	User(ctx context.Context, id string) (*model.User, error)
}

// lookup finds id in users, returning a wrapped model.ErrNotFound when absent.
func lookup(users []model.User, id string) (*model.User, error) {
	for i := range users {
		if users[i].ID == id {
			u := users[i]
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", id, model.ErrNotFound)
}

// Index maps user ids to users.
func Index(users []model.User) map[string]model.User {
	out := make(map[string]model.User, len(users))
	for _, u := range users {
		out[u.ID] = u
	}
	return out
}

// Resolve returns the ids of users matching any targeting dimension, excluding
// the given id. Unknown ids in t.UserIDs are returned separately.
func Resolve(users []model.User, t model.Targeting, exclude string) (ids []string, unknown []string) {
	roles := make(map[model.Role]bool, len(t.Roles))
	for _, r := range t.Roles {
		roles[r] = true
	}
	regions := make(map[string]bool, len(t.Regions))
	for _, r := range t.Regions {
		regions[r] = true
	}

	byID := Index(users)
	selected := make(map[string]bool)
	for _, id := range t.UserIDs {
		if _, ok := byID[id]; !ok {
			unknown = append(unknown, id)
			continue
		}
		selected[id] = true
	}
	for _, u := range users {
		if roles[u.Role] || (u.Region != "" && regions[u.Region]) {
			selected[u.ID] = true
		}
	}
	delete(selected, exclude)

	ids = make([]string, 0, len(selected))
	for id := range selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, unknown
}

// Group buckets users by role in the fixed role order, skipping exclude and
// empty roles. Contacts within a group are sorted by name.
func Group(users []model.User, exclude string) []model.ContactGroup {
	buckets := make(map[model.Role][]model.User)
	for _, u := range users {
		if u.ID == exclude {
			continue
		}
		buckets[u.Role] = append(buckets[u.Role], u)
	}

	groups := make([]model.ContactGroup, 0, len(buckets))
	for _, role := range model.Roles {
		contacts := buckets[role]
		if len(contacts) == 0 {
			continue
		}
		sort.SliceStable(contacts, func(i, j int) bool {
			if contacts[i].Name != contacts[j].Name {
				return contacts[i].Name < contacts[j].Name
			}
			return contacts[i].ID < contacts[j].ID
		})
		info := role.Info()
		groups = append(groups, model.ContactGroup{
			Role:     role,
			Label:    info.Label,
			Color:    info.ColorToken,
			Contacts: contacts,
		})
	}
	return groups
}
