// Package chatsync mirrors challenge lifecycle and membership into the chat
// platform: one private room per challenge, found again later through the
// challengeId custom field.
package chatsync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/challenge-forums/processor/internal/chat"
	"github.com/challenge-forums/processor/internal/contracts"
	"github.com/challenge-forums/processor/internal/templates"
	"github.com/mborders/logmatic"
)

var (
	ErrAmbiguousRoom      = errors.New("multiple rooms found for challenge")
	ErrRoomNotFound       = errors.New("no room found for challenge")
	ErrUnrecognizedAction = errors.New("unrecognized user action")
)

// The platform rejects duplicate room names, so name probing is bounded
// rather than unbounded.
const maxNameProbes = 50

const (
	introPattern       = "Welcome to the ${challenge.track} challenge!\r\nPlease post your questions in this chat group, thanks!"
	descriptionPattern = "${challenge.name}: ${challenge.url}"
	roomTopic          = "Any questions related to this challenge. The copilot will help answer any questions you might have, usually within 24 hours of a question being asked."
)

// Rooms is the slice of the chat adapter this service drives.
type Rooms interface {
	CreateGroup(ctx context.Context, name string) (chat.Group, error)
	GroupExists(ctx context.Context, name string) (bool, error)
	SearchGroupsByChallengeID(ctx context.Context, challengeID string) ([]chat.Group, error)
	GetUserByUsername(ctx context.Context, username string) (chat.User, bool, error)
	InviteUser(ctx context.Context, roomID, userID string) error
	KickUser(ctx context.Context, roomID, userID string) error
	ArchiveGroup(ctx context.Context, roomID string) error
	UnarchiveGroup(ctx context.Context, roomID string) error
	SetDescription(ctx context.Context, roomID, description string) error
	SetAnnouncement(ctx context.Context, roomID, announcement string) error
	SetTopic(ctx context.Context, roomID, topic string) error
	SetCustomFields(ctx context.Context, roomID string, fields map[string]string) error
	PostMessage(ctx context.Context, roomID, text string) error
}

type Service struct {
	Rooms Rooms
	Log   *logmatic.Logger
}

func NewService(rooms Rooms, log *logmatic.Logger) *Service {
	return &Service{Rooms: rooms, Log: log}
}

func (s *Service) Name() string { return "chat" }

// SyncChallenge provisions the room on activation and archives/unarchives it
// on status changes, keyed by the challengeId custom field.
func (s *Service) SyncChallenge(ctx context.Context, ch contracts.Challenge) error {
	rooms, err := s.Rooms.SearchGroupsByChallengeID(ctx, ch.ID)
	if err != nil {
		return fmt.Errorf("search rooms for challenge %s: %w", ch.ID, err)
	}
	switch {
	case len(rooms) > 1:
		return fmt.Errorf("%w: challenge %s matches %d rooms", ErrAmbiguousRoom, ch.ID, len(rooms))
	case len(rooms) == 1:
		return s.update(ctx, ch, rooms[0])
	case contracts.IsActive(ch.Status):
		return s.provision(ctx, ch)
	case contracts.IsClosed(ch.Status):
		return fmt.Errorf("%w: challenge %s reached status %s without a room", ErrRoomNotFound, ch.ID, ch.Status)
	default:
		s.Log.Debug("challenge %s is %s, no room needed yet", ch.ID, ch.Status)
		return nil
	}
}

func (s *Service) update(ctx context.Context, ch contracts.Challenge, room chat.Group) error {
	switch {
	case contracts.IsClosed(ch.Status) && !room.Archived:
		if err := s.Rooms.ArchiveGroup(ctx, room.ID); err != nil {
			return fmt.Errorf("archive room %s: %w", room.ID, err)
		}
		s.Log.Info("archived room for challenge %s (%s)", ch.ID, ch.Status)
	case contracts.IsActive(ch.Status) && room.Archived:
		if err := s.Rooms.UnarchiveGroup(ctx, room.ID); err != nil {
			return fmt.Errorf("unarchive room %s: %w", room.ID, err)
		}
		s.Log.Info("unarchived room for challenge %s", ch.ID)
	default:
		s.Log.Debug("room for challenge %s already in step with status %s", ch.ID, ch.Status)
	}
	return nil
}

func (s *Service) provision(ctx context.Context, ch contracts.Challenge) error {
	name, err := s.unusedRoomName(ctx, roomName(ch))
	if err != nil {
		return err
	}
	room, err := s.Rooms.CreateGroup(ctx, name)
	if err != nil {
		return fmt.Errorf("create room %s: %w", name, err)
	}
	s.Log.Info("created room %s (%s) for challenge %s", name, room.ID, ch.ID)

	if err := s.Rooms.PostMessage(ctx, room.ID, templates.Expand(introPattern, ch)); err != nil {
		return fmt.Errorf("post introduction to room %s: %w", room.ID, err)
	}
	if err := s.Rooms.SetDescription(ctx, room.ID, templates.Expand(descriptionPattern, ch)); err != nil {
		return fmt.Errorf("set description on room %s: %w", room.ID, err)
	}
	if err := s.Rooms.SetAnnouncement(ctx, room.ID, templates.Announcement(ch)); err != nil {
		return fmt.Errorf("set announcement on room %s: %w", room.ID, err)
	}
	if err := s.Rooms.SetCustomFields(ctx, room.ID, map[string]string{"challengeId": ch.ID}); err != nil {
		return fmt.Errorf("set challengeId on room %s: %w", room.ID, err)
	}
	if err := s.Rooms.SetTopic(ctx, room.ID, roomTopic); err != nil {
		return fmt.Errorf("set topic on room %s: %w", room.ID, err)
	}
	return nil
}

func roomName(ch contracts.Challenge) string {
	return ch.Track + "_" + strings.ReplaceAll(ch.Name, " ", "_")
}

func (s *Service) unusedRoomName(ctx context.Context, base string) (string, error) {
	name := base
	for i := 1; i <= maxNameProbes; i++ {
		exists, err := s.Rooms.GroupExists(ctx, name)
		if err != nil {
			return "", fmt.Errorf("probe room name %s: %w", name, err)
		}
		if !exists {
			return name, nil
		}
		name = fmt.Sprintf("%s_%d", base, i)
	}
	return "", fmt.Errorf("no unused room name after %d probes of %s", maxNameProbes, base)
}

// SyncMember invites or kicks a user in the challenge's room.
func (s *Service) SyncMember(ctx context.Context, act contracts.UserAction) error {
	if act.Action != contracts.ActionInvite && act.Action != contracts.ActionKick {
		return fmt.Errorf("%w: %q", ErrUnrecognizedAction, act.Action)
	}
	if act.Handle == "" {
		return fmt.Errorf("user action for challenge %s carries no handle", act.ChallengeID)
	}

	rooms, err := s.Rooms.SearchGroupsByChallengeID(ctx, act.ChallengeID)
	if err != nil {
		return fmt.Errorf("search rooms for challenge %s: %w", act.ChallengeID, err)
	}
	if len(rooms) > 1 {
		return fmt.Errorf("%w: challenge %s matches %d rooms", ErrAmbiguousRoom, act.ChallengeID, len(rooms))
	}
	if len(rooms) == 0 {
		return fmt.Errorf("%w: challenge %s", ErrRoomNotFound, act.ChallengeID)
	}
	room := rooms[0]

	user, ok, err := s.Rooms.GetUserByUsername(ctx, act.Handle)
	if err != nil {
		return fmt.Errorf("look up chat user %s: %w", act.Handle, err)
	}
	if !ok {
		if act.Action == contracts.ActionKick {
			s.Log.Debug("chat user %s not found, nothing to remove", act.Handle)
			return nil
		}
		return fmt.Errorf("chat user %s not found", act.Handle)
	}

	switch act.Action {
	case contracts.ActionInvite:
		if err := s.Rooms.InviteUser(ctx, room.ID, user.ID); err != nil {
			return fmt.Errorf("invite %s to room %s: %w", act.Handle, room.ID, err)
		}
		s.Log.Info("added %s to room %s for challenge %s", act.Handle, room.Name, act.ChallengeID)
	case contracts.ActionKick:
		if err := s.Rooms.KickUser(ctx, room.ID, user.ID); err != nil {
			return fmt.Errorf("kick %s from room %s: %w", act.Handle, room.ID, err)
		}
		s.Log.Info("removed %s from room %s for challenge %s", act.Handle, room.Name, act.ChallengeID)
	}
	return nil
}
