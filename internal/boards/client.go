// Package boards is the adapter for the forum platform hosting the
// group + category trees. Operations map one-to-one onto REST calls and are
// retry-safe from the caller's perspective; no retry happens here.
package boards

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/challenge-forums/processor/internal/platform/rest"
)

var (
	// ErrCategoryExists is returned when the platform reports a url-code
	// collision. Category creation is idempotent, so callers usually treat
	// it as success and re-fetch the category.
	ErrCategoryExists = errors.New("category already exists")
	// ErrAlreadyMember is returned when a user is already in the group.
	ErrAlreadyMember = errors.New("user is already a group member")
)

// categoryExistsMessage is the exact platform error text for url-code
// collisions; it is the only response body this adapter interprets.
const categoryExistsMessage = "The specified url code is already in use by another category."

type Config struct {
	APIURL         string
	AdminToken     string
	Timeout        time.Duration
	TitleMaxLength int
}

type Client struct {
	rest           *rest.Client
	titleMaxLength int
}

func New(cfg Config) *Client {
	rc := rest.New(cfg.APIURL, cfg.Timeout)
	rc.BaseQuery = url.Values{"access_token": {cfg.AdminToken}}
	max := cfg.TitleMaxLength
	if max <= 0 {
		max = 100
	}
	return &Client{rest: rc, titleMaxLength: max}
}

type Category struct {
	CategoryID int    `json:"categoryID"`
	Name       string `json:"name"`
	URLCode    string `json:"urlcode"`
	ParentID   int    `json:"parentCategoryID"`
	DisplayAs  string `json:"displayAs"`
}

type Role struct {
	RoleID      int    `json:"roleID"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type User struct {
	UserID int    `json:"userID"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Roles  []Role `json:"roles"`
}

type Group struct {
	GroupID     int    `json:"groupID"`
	CategoryID  int    `json:"categoryID"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	ChallengeID string `json:"challengeID"`
	URL         string `json:"url"`
	Archived    bool   `json:"archived"`
}

type CategoryRequest struct {
	Name      string `json:"name"`
	URLCode   string `json:"urlcode"`
	ParentID  int    `json:"parentCategoryID,omitempty"`
	DisplayAs string `json:"displayAs,omitempty"`
}

func (c *Client) CreateCategory(ctx context.Context, req CategoryRequest) (Category, error) {
	var cat Category
	err := c.rest.Do(ctx, http.MethodPost, "/categories", nil, req, &cat)
	if err != nil {
		if re, ok := err.(*rest.RemoteError); ok && strings.Contains(re.Body, categoryExistsMessage) {
			return Category{}, fmt.Errorf("%w: %s", ErrCategoryExists, req.URLCode)
		}
		return Category{}, err
	}
	return cat, nil
}

// FindCategoryByURLCode treats absence as a routine branch, not an error.
func (c *Client) FindCategoryByURLCode(ctx context.Context, urlCode string) (Category, bool, error) {
	var cat Category
	err := c.rest.Do(ctx, http.MethodGet, "/categories/"+url.PathEscape(urlCode), nil, nil, &cat)
	if err != nil {
		if rest.HasStatus(err, http.StatusNotFound) {
			return Category{}, false, nil
		}
		return Category{}, false, err
	}
	return cat, true, nil
}

func (c *Client) PatchCategory(ctx context.Context, categoryID int, patch map[string]any) error {
	return c.rest.Do(ctx, http.MethodPatch, fmt.Sprintf("/categories/%d", categoryID), nil, patch, nil)
}

func (c *Client) GetRoles(ctx context.Context) ([]Role, error) {
	var roles []Role
	err := c.rest.Do(ctx, http.MethodGet, "/roles", nil, nil, &roles)
	return roles, err
}

func (c *Client) CreateRole(ctx context.Context, name, description string) (Role, error) {
	var role Role
	err := c.rest.Do(ctx, http.MethodPost, "/roles", nil, map[string]string{
		"name":        name,
		"description": description,
	}, &role)
	return role, err
}

// SetRolePermissions grants a role a permission set scoped to one category.
func (c *Client) SetRolePermissions(ctx context.Context, roleID, categoryID int, permissions map[string]bool) error {
	body := []map[string]any{{
		"id":          categoryID,
		"type":        "category",
		"permissions": permissions,
	}}
	return c.rest.Do(ctx, http.MethodPatch, fmt.Sprintf("/roles/%d/permissions", roleID), nil, body, nil)
}

func (c *Client) GetUserByName(ctx context.Context, name string) (User, bool, error) {
	var users []User
	query := url.Values{"name": {name}}
	if err := c.rest.Do(ctx, http.MethodGet, "/users/by-names", query, nil, &users); err != nil {
		return User{}, false, err
	}
	if len(users) == 0 {
		return User{}, false, nil
	}
	return users[0], true, nil
}

// GetUser fetches the full record including role assignments.
func (c *Client) GetUser(ctx context.Context, userID int) (User, error) {
	var user User
	err := c.rest.Do(ctx, http.MethodGet, fmt.Sprintf("/users/%d", userID), nil, nil, &user)
	return user, err
}

type UserRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	EmailConfirmed bool   `json:"emailConfirmed"`
	BypassSpam     bool   `json:"bypassSpam"`
	RoleIDs        []int  `json:"roleID"`
}

func (c *Client) CreateUser(ctx context.Context, req UserRequest) (User, error) {
	var user User
	err := c.rest.Do(ctx, http.MethodPost, "/users", nil, req, &user)
	return user, err
}

// SetUserRoles replaces the user's role assignments. Callers compute the
// desired union; no merging happens here.
func (c *Client) SetUserRoles(ctx context.Context, userID int, roleIDs []int) error {
	return c.rest.Do(ctx, http.MethodPatch, fmt.Sprintf("/users/%d", userID), nil, map[string]any{
		"roleID": roleIDs,
	}, nil)
}

type GroupRequest struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Description  string `json:"description"`
	ChallengeID  string `json:"challengeID"`
	ChallengeURL string `json:"challengeUrl"`
	Archived     bool   `json:"archived"`
}

// CreateGroup provisions the group root. The display name is truncated to the
// platform-enforced limit before submission.
func (c *Client) CreateGroup(ctx context.Context, req GroupRequest) (Group, error) {
	req.Name = c.TruncateTitle(req.Name)
	var group Group
	err := c.rest.Do(ctx, http.MethodPost, "/groups", nil, req, &group)
	return group, err
}

// SearchGroupsByChallengeID is the sole existence check for provisioning:
// groups are keyed by the challenge id field, never by display name.
func (c *Client) SearchGroupsByChallengeID(ctx context.Context, challengeID string) ([]Group, error) {
	var groups []Group
	query := url.Values{"challengeID": {challengeID}}
	err := c.rest.Do(ctx, http.MethodGet, "/groups", query, nil, &groups)
	return groups, err
}

func (c *Client) UpdateGroup(ctx context.Context, groupID int, name string) error {
	return c.rest.Do(ctx, http.MethodPatch, fmt.Sprintf("/groups/%d", groupID), nil, map[string]string{
		"name": c.TruncateTitle(name),
	}, nil)
}

func (c *Client) ArchiveGroup(ctx context.Context, groupID int) error {
	return c.rest.Do(ctx, http.MethodPut, fmt.Sprintf("/groups/%d/archive", groupID), nil, nil, nil)
}

func (c *Client) UnarchiveGroup(ctx context.Context, groupID int) error {
	return c.rest.Do(ctx, http.MethodPut, fmt.Sprintf("/groups/%d/unarchive", groupID), nil, nil, nil)
}

// AddMember adds a user to a group; watch subscribes them to the group's
// categories in the same call.
func (c *Client) AddMember(ctx context.Context, groupID, userID int, watch bool) error {
	err := c.rest.Do(ctx, http.MethodPost, fmt.Sprintf("/groups/%d/members", groupID), nil, map[string]any{
		"userID": userID,
		"watch":  watch,
	}, nil)
	if rest.HasStatus(err, http.StatusConflict) {
		return fmt.Errorf("%w: user %d in group %d", ErrAlreadyMember, userID, groupID)
	}
	return err
}

func (c *Client) RemoveMember(ctx context.Context, groupID, userID int) error {
	return c.rest.Do(ctx, http.MethodDelete, fmt.Sprintf("/groups/%d/members/%d", groupID, userID), nil, nil, nil)
}

type DiscussionRequest struct {
	Name       string `json:"name"`
	Body       string `json:"body"`
	Format     string `json:"format"`
	GroupID    int    `json:"groupID,omitempty"`
	CategoryID int    `json:"categoryID"`
	Closed     bool   `json:"closed"`
	Pinned     bool   `json:"pinned"`
}

func (c *Client) CreateDiscussion(ctx context.Context, req DiscussionRequest) error {
	return c.rest.Do(ctx, http.MethodPost, "/discussions", nil, req, nil)
}

// TruncateTitle enforces the platform title limit, marking truncation with an
// ellipsis.
func (c *Client) TruncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= c.titleMaxLength {
		return title
	}
	return string(runes[:c.titleMaxLength-3]) + "..."
}
