// Package identity fills in the parts of a user action the event itself did
// not carry: the handle, the project role and the challenge roles, all
// re-fetched from the upstream API on every item.
package identity

import (
	"context"
	"fmt"

	"github.com/challenge-forums/processor/internal/challengeapi"
	"github.com/challenge-forums/processor/internal/contracts"
	"github.com/mborders/logmatic"
)

// API is the slice of the upstream client this service needs.
type API interface {
	GetUserByID(ctx context.Context, userID string) (challengeapi.Member, bool, error)
	GetChallenge(ctx context.Context, challengeID string) (challengeapi.Challenge, error)
	GetProject(ctx context.Context, projectID int64) (challengeapi.Project, error)
	GetChallengeResources(ctx context.Context, challengeID string) ([]challengeapi.Resource, error)
	GetResourceRoles(ctx context.Context) ([]challengeapi.ResourceRole, error)
}

type Service struct {
	API API
	Log *logmatic.Logger
}

func NewService(api API, log *logmatic.Logger) *Service {
	return &Service{API: api, Log: log}
}

// ResolveUserAction enriches act in place. A partial resolution failure is an
// error for the caller to log; the action itself stays dispatchable.
func (s *Service) ResolveUserAction(ctx context.Context, act *contracts.UserAction) error {
	if act.Handle == "" {
		member, ok, err := s.API.GetUserByID(ctx, act.UserID)
		if err != nil {
			return fmt.Errorf("resolve handle for user %s: %w", act.UserID, err)
		}
		if !ok {
			return fmt.Errorf("no upstream identity for user %s", act.UserID)
		}
		act.Handle = member.Handle
	}

	projectRole, err := s.projectRole(ctx, act.ChallengeID, act.UserID)
	if err != nil {
		return err
	}
	act.ProjectRole = projectRole

	challengeRoles, err := s.challengeRoles(ctx, act.ChallengeID, act.UserID)
	if err != nil {
		return err
	}
	act.ChallengeRoles = challengeRoles
	return nil
}

func (s *Service) projectRole(ctx context.Context, challengeID, userID string) (string, error) {
	ch, err := s.API.GetChallenge(ctx, challengeID)
	if err != nil {
		return "", fmt.Errorf("load challenge %s: %w", challengeID, err)
	}
	project, err := s.API.GetProject(ctx, ch.ProjectID)
	if err != nil {
		return "", fmt.Errorf("load project %d: %w", ch.ProjectID, err)
	}
	for _, member := range project.Members {
		if member.UserID.String() == userID {
			return member.Role, nil
		}
	}
	// No project role is a routine outcome for plain participants.
	return "", nil
}

func (s *Service) challengeRoles(ctx context.Context, challengeID, userID string) ([]string, error) {
	resources, err := s.API.GetChallengeResources(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("load resources for challenge %s: %w", challengeID, err)
	}
	roles, err := s.API.GetResourceRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("load resource roles: %w", err)
	}
	names := make(map[string]string, len(roles))
	for _, role := range roles {
		names[role.ID] = role.Name
	}

	var assigned []string
	for _, resource := range resources {
		if resource.MemberID != userID {
			continue
		}
		if name, ok := names[resource.RoleID]; ok {
			assigned = append(assigned, name)
		} else {
			s.Log.Debug("resource role %s has no name, skipping", resource.RoleID)
		}
	}
	return assigned, nil
}
