package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/guardforce/messaging-platform/internal/model"
	"github.com/guardforce/messaging-platform/pkg/logger"
)

// HTTPDirectory reads users from an external user service and caches the list.
type HTTPDirectory struct {
	baseURL string
	token   string
	ttl     time.Duration
	client  *http.Client
	logger  *logger.Logger
	now     func() time.Time

	mu        sync.Mutex
	users     []model.User
	fetchedAt time.Time
}

// NewHTTP creates a directory backed by GET {baseURL}/users.
func NewHTTP(baseURL, token string, ttl time.Duration, log *logger.Logger) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		ttl:     ttl,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  log,
		now:     time.Now,
	}
}

// Users returns the cached user list, refreshing it when older than the TTL.
// A failed refresh falls back to the stale list when one exists.
func (d *HTTPDirectory) Users(ctx context.Context) ([]model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.users != nil && d.now().Sub(d.fetchedAt) < d.ttl {
		return d.users, nil
	}

	users, err := d.fetch(ctx)
	if err != nil {
		if d.users != nil {
			d.logger.Warn("Directory refresh failed, serving stale users", zap.Error(err))
			return d.users, nil
		}
		return nil, err
	}
	d.users = users
	d.fetchedAt = d.now()
	return users, nil
}

// User returns one user or model.ErrNotFound.
func (d *HTTPDirectory) User(ctx context.Context, id string) (*model.User, error) {
	users, err := d.Users(ctx)
	if err != nil {
		return nil, err
	}
	return lookup(users, id)
}

func (d *HTTPDirectory) fetch(ctx context.Context) ([]model.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/users", nil)
	if err != nil {
		return nil, fmt.Errorf("build directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory responded %d", resp.StatusCode)
	}

	var body struct {
		Users []model.User `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode directory response: %w", err)
	}
	if body.Users == nil {
		body.Users = []model.User{}
	}
	return body.Users, nil
}
