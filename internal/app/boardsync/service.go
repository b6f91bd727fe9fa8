// Package boardsync keeps the boards platform in step with challenge
// lifecycle events: one group per challenge, template-driven categories and
// discussions under it, and membership mirrored from upstream registrations.
package boardsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/challenge-forums/processor/internal/boards"
	"github.com/challenge-forums/processor/internal/challengeapi"
	"github.com/challenge-forums/processor/internal/contracts"
	"github.com/challenge-forums/processor/internal/platform/rest"
	"github.com/challenge-forums/processor/internal/templates"
	"github.com/mborders/logmatic"
)

var (
	// ErrAmbiguousForum reports more than one group for a challenge id, a
	// state this processor never creates and cannot repair.
	ErrAmbiguousForum = errors.New("multiple forums found for challenge")
	// ErrForumNotFound reports a missing forum on a path that expected one.
	ErrForumNotFound = errors.New("no forum found for challenge")

	ErrUnrecognizedAction = errors.New("unrecognized user action")
)

// Permission set granted to the dedicated per-challenge role on the forum's
// root category.
var challengeRolePermissions = map[string]bool{
	"comments.add":     true,
	"comments.edit":    true,
	"discussions.add":  true,
	"discussions.view": true,
}

// Project roles invited into a freshly provisioned forum.
var defaultInviteRoles = []string{"copilot", "manager", "customer"}

// Forum is the slice of the boards adapter this service drives.
type Forum interface {
	SearchGroupsByChallengeID(ctx context.Context, challengeID string) ([]boards.Group, error)
	CreateGroup(ctx context.Context, req boards.GroupRequest) (boards.Group, error)
	UpdateGroup(ctx context.Context, groupID int, name string) error
	ArchiveGroup(ctx context.Context, groupID int) error
	UnarchiveGroup(ctx context.Context, groupID int) error
	CreateCategory(ctx context.Context, req boards.CategoryRequest) (boards.Category, error)
	FindCategoryByURLCode(ctx context.Context, urlCode string) (boards.Category, bool, error)
	PatchCategory(ctx context.Context, categoryID int, patch map[string]any) error
	CreateDiscussion(ctx context.Context, req boards.DiscussionRequest) error
	GetRoles(ctx context.Context) ([]boards.Role, error)
	CreateRole(ctx context.Context, name, description string) (boards.Role, error)
	SetRolePermissions(ctx context.Context, roleID, categoryID int, permissions map[string]bool) error
	GetUserByName(ctx context.Context, name string) (boards.User, bool, error)
	GetUser(ctx context.Context, userID int) (boards.User, error)
	CreateUser(ctx context.Context, req boards.UserRequest) (boards.User, error)
	SetUserRoles(ctx context.Context, userID int, roleIDs []int) error
	AddMember(ctx context.Context, groupID, userID int, watch bool) error
	RemoveMember(ctx context.Context, groupID, userID int) error
}

// Upstream is the slice of the challenge API this service needs.
type Upstream interface {
	GetChallenge(ctx context.Context, challengeID string) (challengeapi.Challenge, error)
	UpdateChallenge(ctx context.Context, challengeID string, patch map[string]any) error
	GetProject(ctx context.Context, projectID int64) (challengeapi.Project, error)
	GetUserByHandle(ctx context.Context, handle string) (challengeapi.Member, bool, error)
	GetResourceRoles(ctx context.Context) ([]challengeapi.ResourceRole, error)
}

type Service struct {
	Forum     Forum
	Upstream  Upstream
	Templates templates.Library
	Log       *logmatic.Logger

	// DefaultRole is the platform role every materialized user receives.
	DefaultRole string
	// InviteRoles is the project-role allow-list for provisioning invites.
	InviteRoles []string
	// NewPassword generates credentials for materialized users.
	NewPassword func() string
}

func NewService(forum Forum, upstream Upstream, lib templates.Library, log *logmatic.Logger) *Service {
	return &Service{
		Forum:       forum,
		Upstream:    upstream,
		Templates:   lib,
		Log:         log,
		DefaultRole: "Member",
		InviteRoles: defaultInviteRoles,
		NewPassword: randomPassword,
	}
}

func (s *Service) Name() string { return "boards" }

// SyncChallenge drives the forum state machine for one lifecycle event. The
// existence query by challenge id is the idempotence guard: provisioning
// never runs twice for the same id.
func (s *Service) SyncChallenge(ctx context.Context, ch contracts.Challenge) error {
	groups, err := s.Forum.SearchGroupsByChallengeID(ctx, ch.ID)
	if err != nil {
		return fmt.Errorf("search groups for challenge %s: %w", ch.ID, err)
	}
	switch {
	case len(groups) > 1:
		return fmt.Errorf("%w: challenge %s matches %d groups", ErrAmbiguousForum, ch.ID, len(groups))
	case len(groups) == 1:
		return s.update(ctx, ch, groups[0])
	case contracts.IsActive(ch.Status):
		return s.provision(ctx, ch)
	case contracts.IsClosed(ch.Status):
		return fmt.Errorf("%w: challenge %s reached status %s without a forum", ErrForumNotFound, ch.ID, ch.Status)
	default:
		s.Log.Debug("challenge %s is %s, no forum needed yet", ch.ID, ch.Status)
		return nil
	}
}

// update archives or unarchives per status and resyncs display names.
func (s *Service) update(ctx context.Context, ch contracts.Challenge, group boards.Group) error {
	switch {
	case contracts.IsClosed(ch.Status) && !group.Archived:
		if err := s.Forum.ArchiveGroup(ctx, group.GroupID); err != nil {
			return fmt.Errorf("archive group %d: %w", group.GroupID, err)
		}
		s.Log.Info("archived forum for challenge %s (%s)", ch.ID, ch.Status)
	case contracts.IsActive(ch.Status) && group.Archived:
		if err := s.Forum.UnarchiveGroup(ctx, group.GroupID); err != nil {
			return fmt.Errorf("unarchive group %d: %w", group.GroupID, err)
		}
		s.Log.Info("unarchived forum for challenge %s", ch.ID)
	}

	name := ch.Name
	if tpl, err := s.Templates.ForChallenge(ch); err == nil {
		name = templates.Expand(tpl.Group.Name, ch)
	} else {
		s.Log.Debug("no template for challenge %s (%s/%s), resyncing raw name: %v", ch.ID, ch.Type, ch.Track, err)
	}
	if err := s.Forum.UpdateGroup(ctx, group.GroupID, name); err != nil {
		return fmt.Errorf("resync group name for challenge %s: %w", ch.ID, err)
	}
	if cat, ok, err := s.Forum.FindCategoryByURLCode(ctx, ch.ID); err != nil {
		return fmt.Errorf("find root category for challenge %s: %w", ch.ID, err)
	} else if ok {
		if err := s.Forum.PatchCategory(ctx, cat.CategoryID, map[string]any{"name": name}); err != nil {
			return fmt.Errorf("resync category name for challenge %s: %w", ch.ID, err)
		}
	}
	return nil
}

// provision creates the full forum structure. Any step failure aborts the
// remaining steps; platform entities already created are left in place and
// the re-run is expected to stop at the existence check.
func (s *Service) provision(ctx context.Context, ch contracts.Challenge) error {
	tpl, err := s.Templates.ForChallenge(ch)
	if err != nil {
		return err
	}

	group, err := s.Forum.CreateGroup(ctx, boards.GroupRequest{
		Name:         templates.Expand(tpl.Group.Name, ch),
		Type:         tpl.Group.Privacy,
		Description:  templates.Expand(tpl.Group.Description, ch),
		ChallengeID:  ch.ID,
		ChallengeURL: ch.URL,
	})
	if err != nil {
		return fmt.Errorf("create group for challenge %s: %w", ch.ID, err)
	}
	s.Log.Info("created group %d for challenge %s", group.GroupID, ch.ID)

	for _, spec := range tpl.Categories {
		category, err := s.ensureCategory(ctx, ch, group, spec)
		if err != nil {
			return err
		}
		for _, disc := range spec.Discussions {
			format := disc.Format
			if format == "" {
				format = "Markdown"
			}
			err := s.Forum.CreateDiscussion(ctx, boards.DiscussionRequest{
				Name:       templates.Expand(disc.Title, ch),
				Body:       templates.Expand(disc.Body, ch),
				Format:     format,
				GroupID:    group.GroupID,
				CategoryID: category.CategoryID,
				Closed:     disc.Closed,
				Pinned:     disc.Pinned,
			})
			if err != nil {
				return fmt.Errorf("create discussion %q for challenge %s: %w", disc.Title, ch.ID, err)
			}
		}
	}

	if err := s.ensureChallengeRole(ctx, ch, group); err != nil {
		return err
	}
	if err := s.inviteProjectMembers(ctx, ch); err != nil {
		return err
	}

	if err := s.Upstream.UpdateChallenge(ctx, ch.ID, map[string]any{"discussionUrl": group.URL}); err != nil {
		return fmt.Errorf("write forum url back to challenge %s: %w", ch.ID, err)
	}
	s.Log.Info("forum provisioned for challenge %s", ch.ID)
	return nil
}

// ensureCategory creates a template category, treating a url-code collision
// as already-provisioned and re-fetching the survivor.
func (s *Service) ensureCategory(ctx context.Context, ch contracts.Challenge, group boards.Group, spec templates.CategorySpec) (boards.Category, error) {
	urlCode := templates.Expand(spec.URLCode, ch)
	category, err := s.Forum.CreateCategory(ctx, boards.CategoryRequest{
		Name:      templates.Expand(spec.Name, ch),
		URLCode:   urlCode,
		ParentID:  group.CategoryID,
		DisplayAs: "discussions",
	})
	if err == nil {
		return category, nil
	}
	if !errors.Is(err, boards.ErrCategoryExists) {
		return boards.Category{}, fmt.Errorf("create category %s: %w", urlCode, err)
	}
	s.Log.Warn("category %s already exists, reusing it", urlCode)
	existing, ok, err := s.Forum.FindCategoryByURLCode(ctx, urlCode)
	if err != nil {
		return boards.Category{}, fmt.Errorf("find existing category %s: %w", urlCode, err)
	}
	if !ok {
		return boards.Category{}, fmt.Errorf("category %s reported as existing but not found", urlCode)
	}
	return existing, nil
}

// ensureChallengeRole creates the dedicated per-challenge role and scopes it
// to the forum's root category.
func (s *Service) ensureChallengeRole(ctx context.Context, ch contracts.Challenge, group boards.Group) error {
	roles, err := s.Forum.GetRoles(ctx)
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}
	for _, role := range roles {
		if role.Name == ch.ID {
			s.Log.Warn("role for challenge %s already exists, skipping creation", ch.ID)
			return nil
		}
	}
	role, err := s.Forum.CreateRole(ctx, ch.ID, ch.Name)
	if err != nil {
		return fmt.Errorf("create role for challenge %s: %w", ch.ID, err)
	}
	if err := s.Forum.SetRolePermissions(ctx, role.RoleID, group.CategoryID, challengeRolePermissions); err != nil {
		return fmt.Errorf("set permissions for role %d: %w", role.RoleID, err)
	}
	return nil
}

func (s *Service) inviteProjectMembers(ctx context.Context, ch contracts.Challenge) error {
	projectID := ch.ProjectID
	if projectID == 0 {
		detail, err := s.Upstream.GetChallenge(ctx, ch.ID)
		if err != nil {
			return fmt.Errorf("load challenge %s: %w", ch.ID, err)
		}
		projectID = detail.ProjectID
	}
	project, err := s.Upstream.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load project %d: %w", projectID, err)
	}
	for _, member := range project.Members {
		if !s.qualifiesForInvite(member.Role) {
			continue
		}
		err := s.SyncMember(ctx, contracts.UserAction{
			ChallengeID: ch.ID,
			UserID:      member.UserID.String(),
			Handle:      member.Handle,
			Action:      contracts.ActionInvite,
			ProjectRole: member.Role,
		})
		if err != nil {
			return fmt.Errorf("invite project member %s: %w", member.Handle, err)
		}
	}
	return nil
}

func (s *Service) qualifiesForInvite(role string) bool {
	allowed := s.InviteRoles
	if len(allowed) == 0 {
		allowed = defaultInviteRoles
	}
	for _, candidate := range allowed {
		if equalFold(candidate, role) {
			return true
		}
	}
	return false
}

// SyncMember applies one normalized membership action: materialize the
// platform user if needed, reconcile its role set against upstream, then add
// or remove group membership.
func (s *Service) SyncMember(ctx context.Context, act contracts.UserAction) error {
	if act.Action != contracts.ActionInvite && act.Action != contracts.ActionKick {
		return fmt.Errorf("%w: %q", ErrUnrecognizedAction, act.Action)
	}
	if act.Handle == "" {
		return fmt.Errorf("user action for challenge %s carries no handle", act.ChallengeID)
	}

	user, ok, err := s.Forum.GetUserByName(ctx, act.Handle)
	if err != nil {
		return fmt.Errorf("look up user %s: %w", act.Handle, err)
	}
	if !ok {
		if act.Action == contracts.ActionKick {
			s.Log.Debug("user %s not on platform, nothing to remove", act.Handle)
			return nil
		}
		user, err = s.materializeUser(ctx, act.Handle)
		if err != nil {
			return err
		}
	}

	// Role reconciliation runs on invites only. Automated role names are
	// global on the platform, so stripping them on a kick would revoke roles
	// the user still holds through other active challenges.
	if act.Action == contracts.ActionInvite {
		if err := s.reconcileRoles(ctx, user, act); err != nil {
			return err
		}
	}

	groups, err := s.Forum.SearchGroupsByChallengeID(ctx, act.ChallengeID)
	if err != nil {
		return fmt.Errorf("search groups for challenge %s: %w", act.ChallengeID, err)
	}
	if len(groups) > 1 {
		return fmt.Errorf("%w: challenge %s matches %d groups", ErrAmbiguousForum, act.ChallengeID, len(groups))
	}
	if len(groups) == 0 {
		return fmt.Errorf("%w: challenge %s", ErrForumNotFound, act.ChallengeID)
	}
	group := groups[0]

	switch act.Action {
	case contracts.ActionInvite:
		err := s.Forum.AddMember(ctx, group.GroupID, user.UserID, AutoWatch(act))
		if errors.Is(err, boards.ErrAlreadyMember) {
			s.Log.Debug("user %s already in group %d", act.Handle, group.GroupID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("add %s to group %d: %w", act.Handle, group.GroupID, err)
		}
		s.Log.Info("added %s to forum for challenge %s", act.Handle, act.ChallengeID)
	case contracts.ActionKick:
		err := s.Forum.RemoveMember(ctx, group.GroupID, user.UserID)
		if err != nil && !rest.HasStatus(err, http.StatusNotFound) {
			return fmt.Errorf("remove %s from group %d: %w", act.Handle, group.GroupID, err)
		}
		s.Log.Info("removed %s from forum for challenge %s", act.Handle, act.ChallengeID)
	}
	return nil
}

// materializeUser is the only path that creates a platform identity. The
// account is provisioned as trusted: confirmed email, spam checks bypassed.
func (s *Service) materializeUser(ctx context.Context, handle string) (boards.User, error) {
	member, found, err := s.Upstream.GetUserByHandle(ctx, handle)
	if err != nil {
		return boards.User{}, fmt.Errorf("resolve upstream identity %s: %w", handle, err)
	}
	if !found {
		return boards.User{}, fmt.Errorf("no upstream identity for handle %s", handle)
	}

	roles, err := s.Forum.GetRoles(ctx)
	if err != nil {
		return boards.User{}, fmt.Errorf("list roles: %w", err)
	}
	var defaultRoleIDs []int
	for _, role := range roles {
		if role.Name == s.DefaultRole {
			defaultRoleIDs = append(defaultRoleIDs, role.RoleID)
		}
	}
	if len(defaultRoleIDs) == 0 {
		return boards.User{}, fmt.Errorf("default role %q not found on platform", s.DefaultRole)
	}

	user, err := s.Forum.CreateUser(ctx, boards.UserRequest{
		Name:           handle,
		Email:          member.Email,
		Password:       s.NewPassword(),
		EmailConfirmed: true,
		BypassSpam:     true,
		RoleIDs:        defaultRoleIDs,
	})
	if err != nil {
		return boards.User{}, fmt.Errorf("create platform user %s: %w", handle, err)
	}
	s.Log.Info("created platform user %s (%d)", handle, user.UserID)
	return user, nil
}

// reconcileRoles replaces the user's automated role assignments with the set
// resolved from upstream, preserving everything outside the automated
// namespace. The namespace is the upstream resource-role name set.
func (s *Service) reconcileRoles(ctx context.Context, user boards.User, act contracts.UserAction) error {
	resourceRoles, err := s.Upstream.GetResourceRoles(ctx)
	if err != nil {
		return fmt.Errorf("load resource roles: %w", err)
	}
	automated := make(map[string]bool, len(resourceRoles))
	for _, role := range resourceRoles {
		automated[role.Name] = true
	}

	desired := act.ChallengeRoles

	platformRoles, err := s.Forum.GetRoles(ctx)
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}
	byName := make(map[string]boards.Role, len(platformRoles))
	for _, role := range platformRoles {
		byName[role.Name] = role
	}
	for _, name := range desired {
		if _, ok := byName[name]; ok {
			continue
		}
		created, err := s.Forum.CreateRole(ctx, name, name)
		if err != nil {
			return fmt.Errorf("create placeholder role %q: %w", name, err)
		}
		byName[name] = created
	}

	current, err := s.Forum.GetUser(ctx, user.UserID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", user.UserID, err)
	}

	var final []int
	seen := map[int]bool{}
	for _, role := range current.Roles {
		if automated[role.Name] {
			continue
		}
		if !seen[role.RoleID] {
			final = append(final, role.RoleID)
			seen[role.RoleID] = true
		}
	}
	for _, name := range desired {
		role := byName[name]
		if !seen[role.RoleID] {
			final = append(final, role.RoleID)
			seen[role.RoleID] = true
		}
	}
	if err := s.Forum.SetUserRoles(ctx, user.UserID, final); err != nil {
		return fmt.Errorf("set roles for user %d: %w", user.UserID, err)
	}
	return nil
}

// AutoWatch decides whether membership comes with category subscriptions:
// first-time participants and privileged roles watch by default.
func AutoWatch(act contracts.UserAction) bool {
	if act.ProjectRole == "" && len(act.ChallengeRoles) == 0 {
		return true
	}
	if equalFold(act.ProjectRole, "copilot") {
		return true
	}
	for _, role := range act.ChallengeRoles {
		if equalFold(role, "Submitter") || equalFold(role, "Copilot") || equalFold(role, "Client Manager") {
			return true
		}
	}
	return false
}
