// Package chat is the adapter for the group-model chat platform. Every API
// response carries a success flag; success=false is surfaced as an error even
// on a 2xx status.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/challenge-forums/processor/internal/platform/rest"
)

type Config struct {
	APIURL    string
	AuthToken string
	UserID    string
	Timeout   time.Duration
}

type Client struct {
	rest *rest.Client
}

func New(cfg Config) *Client {
	rc := rest.New(cfg.APIURL, cfg.Timeout)
	rc.BaseHeader = http.Header{
		"X-Auth-Token": {cfg.AuthToken},
		"X-User-Id":    {cfg.UserID},
	}
	return &Client{rest: rc}
}

type Group struct {
	ID           string            `json:"_id"`
	Name         string            `json:"name"`
	Archived     bool              `json:"archived"`
	CustomFields map[string]string `json:"customFields"`
}

type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}

type apiStatus struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s apiStatus) err(op string) error {
	if s.Success {
		return nil
	}
	return fmt.Errorf("%s failed: %s", op, s.Error)
}

func (c *Client) CreateGroup(ctx context.Context, name string) (Group, error) {
	var resp struct {
		apiStatus
		Group Group `json:"group"`
	}
	if err := c.rest.Do(ctx, http.MethodPost, "/api/v1/groups.create", nil, map[string]string{"name": name}, &resp); err != nil {
		return Group{}, err
	}
	return resp.Group, resp.err("groups.create")
}

// GroupExists probes a room name; the platform rejects duplicate names so
// callers use this to find an unused one.
func (c *Client) GroupExists(ctx context.Context, name string) (bool, error) {
	var resp struct {
		apiStatus
		Group Group `json:"group"`
	}
	query := url.Values{"roomName": {name}}
	err := c.rest.Do(ctx, http.MethodGet, "/api/v1/groups.info", query, nil, &resp)
	if err != nil {
		if rest.HasStatus(err, http.StatusNotFound) || rest.HasStatus(err, http.StatusBadRequest) {
			return false, nil
		}
		return false, err
	}
	return resp.Success, nil
}

// SearchGroupsByChallengeID queries the challengeId custom field, the one
// stable join key between challenges and rooms.
func (c *Client) SearchGroupsByChallengeID(ctx context.Context, challengeID string) ([]Group, error) {
	selector, err := json.Marshal(map[string]string{"customFields.challengeId": challengeID})
	if err != nil {
		return nil, err
	}
	var resp struct {
		apiStatus
		Groups []Group `json:"groups"`
	}
	query := url.Values{"query": {string(selector)}}
	if err := c.rest.Do(ctx, http.MethodGet, "/api/v1/groups.listAll", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Groups, resp.err("groups.listAll")
}

func (c *Client) GetUserByUsername(ctx context.Context, username string) (User, bool, error) {
	var resp struct {
		apiStatus
		User User `json:"user"`
	}
	query := url.Values{"username": {username}}
	err := c.rest.Do(ctx, http.MethodGet, "/api/v1/users.info", query, nil, &resp)
	if err != nil {
		if rest.HasStatus(err, http.StatusNotFound) || rest.HasStatus(err, http.StatusBadRequest) {
			return User{}, false, nil
		}
		return User{}, false, err
	}
	if !resp.Success {
		return User{}, false, nil
	}
	return resp.User, true, nil
}

func (c *Client) roomCall(ctx context.Context, op string, body any) error {
	var resp apiStatus
	if err := c.rest.Do(ctx, http.MethodPost, "/api/v1/"+op, nil, body, &resp); err != nil {
		return err
	}
	return resp.err(op)
}

func (c *Client) InviteUser(ctx context.Context, roomID, userID string) error {
	return c.roomCall(ctx, "groups.invite", map[string]string{"roomId": roomID, "userId": userID})
}

func (c *Client) KickUser(ctx context.Context, roomID, userID string) error {
	return c.roomCall(ctx, "groups.kick", map[string]string{"roomId": roomID, "userId": userID})
}

func (c *Client) ArchiveGroup(ctx context.Context, roomID string) error {
	return c.roomCall(ctx, "groups.archive", map[string]string{"roomId": roomID})
}

func (c *Client) UnarchiveGroup(ctx context.Context, roomID string) error {
	return c.roomCall(ctx, "groups.unarchive", map[string]string{"roomId": roomID})
}

func (c *Client) SetDescription(ctx context.Context, roomID, description string) error {
	return c.roomCall(ctx, "groups.setDescription", map[string]string{"roomId": roomID, "description": description})
}

func (c *Client) SetAnnouncement(ctx context.Context, roomID, announcement string) error {
	return c.roomCall(ctx, "groups.setAnnouncement", map[string]string{"roomId": roomID, "announcement": announcement})
}

func (c *Client) SetTopic(ctx context.Context, roomID, topic string) error {
	return c.roomCall(ctx, "groups.setTopic", map[string]string{"roomId": roomID, "topic": topic})
}

func (c *Client) SetCustomFields(ctx context.Context, roomID string, fields map[string]string) error {
	return c.roomCall(ctx, "groups.setCustomFields", map[string]any{"roomId": roomID, "customFields": fields})
}

func (c *Client) PostMessage(ctx context.Context, roomID, text string) error {
	return c.roomCall(ctx, "chat.postMessage", map[string]string{"roomId": roomID, "text": text})
}
