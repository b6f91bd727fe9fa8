package identity

import (
	"context"
	"testing"

	"github.com/challenge-forums/processor/internal/challengeapi"
	"github.com/challenge-forums/processor/internal/contracts"
	"github.com/mborders/logmatic"
)

type fakeAPI struct {
	members       map[string]challengeapi.Member
	challenge     challengeapi.Challenge
	project       challengeapi.Project
	resources     []challengeapi.Resource
	resourceRoles []challengeapi.ResourceRole
}

func (f *fakeAPI) GetUserByID(_ context.Context, userID string) (challengeapi.Member, bool, error) {
	member, ok := f.members[userID]
	return member, ok, nil
}

func (f *fakeAPI) GetChallenge(_ context.Context, _ string) (challengeapi.Challenge, error) {
	return f.challenge, nil
}

func (f *fakeAPI) GetProject(_ context.Context, _ int64) (challengeapi.Project, error) {
	return f.project, nil
}

func (f *fakeAPI) GetChallengeResources(_ context.Context, _ string) ([]challengeapi.Resource, error) {
	return f.resources, nil
}

func (f *fakeAPI) GetResourceRoles(_ context.Context) ([]challengeapi.ResourceRole, error) {
	return f.resourceRoles, nil
}

func testService(api *fakeAPI) *Service {
	log := logmatic.NewLogger()
	log.SetLevel(logmatic.ERROR)
	return NewService(api, log)
}

func TestResolveUserAction_FillsEverything(t *testing.T) {
	api := &fakeAPI{
		members:   map[string]challengeapi.Member{"88": {ID: "88", Handle: "alice"}},
		challenge: challengeapi.Challenge{ID: "30001", ProjectID: 111},
		project: challengeapi.Project{Members: []challengeapi.ProjectMember{
			{UserID: "88", Role: "copilot", Handle: "alice"},
			{UserID: "99", Role: "manager", Handle: "bob"},
		}},
		resources: []challengeapi.Resource{
			{ID: "res-1", MemberID: "88", RoleID: "role-1"},
			{ID: "res-2", MemberID: "99", RoleID: "role-2"},
		},
		resourceRoles: []challengeapi.ResourceRole{
			{ID: "role-1", Name: "Submitter"},
			{ID: "role-2", Name: "Reviewer"},
		},
	}
	svc := testService(api)

	act := contracts.UserAction{ChallengeID: "30001", UserID: "88", Action: contracts.ActionInvite}
	if err := svc.ResolveUserAction(context.Background(), &act); err != nil {
		t.Fatalf("ResolveUserAction returned error: %v", err)
	}
	if act.Handle != "alice" {
		t.Fatalf("handle = %q, want alice", act.Handle)
	}
	if act.ProjectRole != "copilot" {
		t.Fatalf("project role = %q, want copilot", act.ProjectRole)
	}
	if len(act.ChallengeRoles) != 1 || act.ChallengeRoles[0] != "Submitter" {
		t.Fatalf("challenge roles = %v, want [Submitter]", act.ChallengeRoles)
	}
}

func TestResolveUserAction_KeepsEventHandle(t *testing.T) {
	api := &fakeAPI{challenge: challengeapi.Challenge{ProjectID: 111}}
	svc := testService(api)

	act := contracts.UserAction{ChallengeID: "30001", UserID: "88", Handle: "carried", Action: contracts.ActionInvite}
	if err := svc.ResolveUserAction(context.Background(), &act); err != nil {
		t.Fatalf("ResolveUserAction returned error: %v", err)
	}
	if act.Handle != "carried" {
		t.Fatalf("handle = %q, want the event-carried one", act.Handle)
	}
}

func TestResolveUserAction_NoProjectRoleIsRoutine(t *testing.T) {
	api := &fakeAPI{
		members:   map[string]challengeapi.Member{"88": {ID: "88", Handle: "alice"}},
		challenge: challengeapi.Challenge{ProjectID: 111},
	}
	svc := testService(api)

	act := contracts.UserAction{ChallengeID: "30001", UserID: "88", Action: contracts.ActionInvite}
	if err := svc.ResolveUserAction(context.Background(), &act); err != nil {
		t.Fatalf("ResolveUserAction returned error: %v", err)
	}
	if act.ProjectRole != "" || len(act.ChallengeRoles) != 0 {
		t.Fatalf("unexpected enrichment: %+v", act)
	}
}

func TestResolveUserAction_UnknownUserIsError(t *testing.T) {
	svc := testService(&fakeAPI{})
	act := contracts.UserAction{ChallengeID: "30001", UserID: "404", Action: contracts.ActionInvite}
	if err := svc.ResolveUserAction(context.Background(), &act); err == nil {
		t.Fatal("expected an error for an unresolvable user id")
	}
}
