package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{APIURL: server.URL, AuthToken: "tok", UserID: "admin", Timeout: time.Second})
}

func TestCreateGroup_SendsAuthHeaders(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Auth-Token") != "tok" || r.Header.Get("X-User-Id") != "admin" {
			t.Errorf("auth headers missing: %v", r.Header)
		}
		_, _ = w.Write([]byte(`{"success":true,"group":{"_id":"room-1","name":"DEVELOP_X"}}`))
	})

	group, err := client.CreateGroup(context.Background(), "DEVELOP_X")
	if err != nil {
		t.Fatalf("CreateGroup returned error: %v", err)
	}
	if group.ID != "room-1" {
		t.Fatalf("unexpected group: %+v", group)
	}
}

func TestCreateGroup_SuccessFalseIsError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"name taken"}`))
	})

	if _, err := client.CreateGroup(context.Background(), "DEVELOP_X"); err == nil {
		t.Fatal("expected an error when success=false")
	}
}

func TestGroupExists(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("roomName") == "taken" {
			_, _ = w.Write([]byte(`{"success":true,"group":{"_id":"room-1"}}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"error":"no such room"}`))
	})

	exists, err := client.GroupExists(context.Background(), "taken")
	if err != nil || !exists {
		t.Fatalf("GroupExists(taken) = %v, %v", exists, err)
	}
	exists, err = client.GroupExists(context.Background(), "free")
	if err != nil || exists {
		t.Fatalf("GroupExists(free) = %v, %v", exists, err)
	}
}

func TestSearchGroupsByChallengeID_BuildsSelector(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var selector map[string]string
		if err := json.Unmarshal([]byte(r.URL.Query().Get("query")), &selector); err != nil {
			t.Errorf("query selector not json: %v", err)
		}
		if selector["customFields.challengeId"] != "30001" {
			t.Errorf("unexpected selector: %v", selector)
		}
		_, _ = w.Write([]byte(`{"success":true,"groups":[{"_id":"room-1","customFields":{"challengeId":"30001"}}]}`))
	})

	groups, err := client.SearchGroupsByChallengeID(context.Background(), "30001")
	if err != nil {
		t.Fatalf("SearchGroupsByChallengeID returned error: %v", err)
	}
	if len(groups) != 1 || groups[0].CustomFields["challengeId"] != "30001" {
		t.Fatalf("unexpected groups: %+v", groups)
	}
}

func TestGetUserByUsername_AbsenceIsNotAnError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"error":"User not found"}`))
	})

	_, ok, err := client.GetUserByUsername(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("GetUserByUsername returned error: %v", err)
	}
	if ok {
		t.Fatal("expected user to be absent")
	}
}

func TestInviteUser_PostsRoomAndUser(t *testing.T) {
	var got map[string]string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/groups.invite" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	if err := client.InviteUser(context.Background(), "room-1", "u1"); err != nil {
		t.Fatalf("InviteUser returned error: %v", err)
	}
	if got["roomId"] != "room-1" || got["userId"] != "u1" {
		t.Fatalf("unexpected body: %v", got)
	}
}
