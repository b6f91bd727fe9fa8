package challengeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/challenge-forums/processor/internal/platform/rest"
	"github.com/golang-jwt/jwt/v5"
)

// Member is an upstream identity record.
type Member struct {
	ID     json.Number `json:"userId"`
	Handle string      `json:"handle"`
	Email  string      `json:"email"`
}

type Challenge struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ProjectID     int64  `json:"projectId"`
	Status        string `json:"status"`
	DiscussionURL string `json:"discussionUrl,omitempty"`
}

type Project struct {
	ID      int64           `json:"id"`
	Members []ProjectMember `json:"members"`
}

type ProjectMember struct {
	UserID json.Number `json:"userId"`
	Role   string      `json:"role"`
	Handle string      `json:"handle"`
}

// Resource is a challenge-scoped role assignment.
type Resource struct {
	ID       string `json:"id"`
	MemberID string `json:"memberId"`
	RoleID   string `json:"roleId"`
	Handle   string `json:"memberHandle"`
}

type ResourceRole struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Config struct {
	BaseURL      string
	AuthURL      string
	Audience     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Client talks to the upstream challenge/identity API using a cached
// client-credentials machine token.
type Client struct {
	rest *rest.Client
	cfg  Config

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func New(cfg Config) *Client {
	c := &Client{
		rest: rest.New(cfg.BaseURL, cfg.Timeout),
		cfg:  cfg,
	}
	c.rest.Authorize = func(ctx context.Context, req *http.Request) error {
		token, err := c.machineToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}
	return c
}

const tokenExpirySkew = 30 * time.Second

// machineToken returns the cached token, refreshing it through the
// client-credentials flow once it nears the exp claim.
func (c *Client) machineToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-tokenExpirySkew)) {
		return c.token, nil
	}

	auth := rest.New(c.cfg.AuthURL, c.cfg.Timeout)
	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	err := auth.Do(ctx, http.MethodPost, "", nil, map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"audience":      c.cfg.Audience,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("fetch machine token: %w", err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("fetch machine token: empty access_token")
	}

	c.token = resp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	// Prefer the exp claim when the token is a well-formed JWT.
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(resp.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
		c.tokenExpiry = claims.ExpiresAt.Time
	}
	return c.token, nil
}

// GetUserByHandle looks up an upstream identity by its stable handle.
func (c *Client) GetUserByHandle(ctx context.Context, handle string) (Member, bool, error) {
	var members []Member
	query := url.Values{"handle": {handle}}
	if err := c.rest.Do(ctx, http.MethodGet, "/members", query, nil, &members); err != nil {
		return Member{}, false, err
	}
	if len(members) == 0 {
		return Member{}, false, nil
	}
	return members[0], true, nil
}

// GetUserByID resolves the handle for an event that carried only a user id.
func (c *Client) GetUserByID(ctx context.Context, userID string) (Member, bool, error) {
	var members []Member
	query := url.Values{"userId": {userID}}
	if err := c.rest.Do(ctx, http.MethodGet, "/members", query, nil, &members); err != nil {
		return Member{}, false, err
	}
	if len(members) == 0 {
		return Member{}, false, nil
	}
	return members[0], true, nil
}

func (c *Client) GetChallenge(ctx context.Context, challengeID string) (Challenge, error) {
	var ch Challenge
	err := c.rest.Do(ctx, http.MethodGet, "/challenges/"+challengeID, nil, nil, &ch)
	return ch, err
}

// UpdateChallenge patches the challenge record; writing the forum URL back is
// the durable marker that provisioning completed.
func (c *Client) UpdateChallenge(ctx context.Context, challengeID string, patch map[string]any) error {
	return c.rest.Do(ctx, http.MethodPatch, "/challenges/"+challengeID, nil, patch, nil)
}

func (c *Client) GetProject(ctx context.Context, projectID int64) (Project, error) {
	var p Project
	err := c.rest.Do(ctx, http.MethodGet, fmt.Sprintf("/projects/%d", projectID), nil, nil, &p)
	return p, err
}

func (c *Client) GetChallengeResources(ctx context.Context, challengeID string) ([]Resource, error) {
	var resources []Resource
	query := url.Values{"challengeId": {challengeID}}
	err := c.rest.Do(ctx, http.MethodGet, "/resources", query, nil, &resources)
	return resources, err
}

func (c *Client) GetResourceRoles(ctx context.Context) ([]ResourceRole, error) {
	var roles []ResourceRole
	err := c.rest.Do(ctx, http.MethodGet, "/resource-roles", nil, nil, &roles)
	return roles, err
}
