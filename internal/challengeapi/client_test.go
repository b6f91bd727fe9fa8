package challengeapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, api http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var tokenCalls int32
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["grant_type"] != "client_credentials" || body["client_id"] != "cid" {
			t.Errorf("unexpected token request: %v", body)
		}
		_, _ = w.Write([]byte(`{"access_token":"opaque-token","expires_in":3600}`))
	}))
	t.Cleanup(auth.Close)

	apiServer := httptest.NewServer(api)
	t.Cleanup(apiServer.Close)

	client := New(Config{
		BaseURL:      apiServer.URL,
		AuthURL:      auth.URL,
		Audience:     "aud",
		ClientID:     "cid",
		ClientSecret: "secret",
		Timeout:      time.Second,
	})
	return client, &tokenCalls
}

func TestClient_AttachesBearerTokenAndCachesIt(t *testing.T) {
	var gotAuth []string
	client, tokenCalls := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"30001","projectId":111,"status":"Active"}`))
	})

	for i := 0; i < 3; i++ {
		if _, err := client.GetChallenge(context.Background(), "30001"); err != nil {
			t.Fatalf("GetChallenge returned error: %v", err)
		}
	}

	if atomic.LoadInt32(tokenCalls) != 1 {
		t.Fatalf("token fetched %d times, want 1", *tokenCalls)
	}
	for _, auth := range gotAuth {
		if auth != "Bearer opaque-token" {
			t.Fatalf("unexpected authorization header: %q", auth)
		}
	}
}

func TestGetUserByHandle(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("handle") != "alice" {
			t.Errorf("unexpected query: %v", r.URL.Query())
		}
		_, _ = w.Write([]byte(`[{"userId":88774396,"handle":"alice","email":"alice@example.com"}]`))
	})

	member, ok, err := client.GetUserByHandle(context.Background(), "alice")
	if err != nil || !ok {
		t.Fatalf("GetUserByHandle = %v, %v", ok, err)
	}
	if member.ID.String() != "88774396" || member.Email != "alice@example.com" {
		t.Fatalf("unexpected member: %+v", member)
	}
}

func TestGetUserByID_AbsenceIsNotAnError(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	_, ok, err := client.GetUserByID(context.Background(), "404404")
	if err != nil {
		t.Fatalf("GetUserByID returned error: %v", err)
	}
	if ok {
		t.Fatal("expected member to be absent")
	}
}

func TestUpdateChallenge_PatchesDiscussionURL(t *testing.T) {
	var got map[string]any
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/challenges/30001" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	})

	err := client.UpdateChallenge(context.Background(), "30001", map[string]any{"discussionUrl": "https://boards/groups/71"})
	if err != nil {
		t.Fatalf("UpdateChallenge returned error: %v", err)
	}
	if got["discussionUrl"] != "https://boards/groups/71" {
		t.Fatalf("unexpected patch: %v", got)
	}
}

func TestGetChallengeResources(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("challengeId") != "30001" {
			t.Errorf("unexpected query: %v", r.URL.Query())
		}
		_, _ = w.Write([]byte(`[{"id":"res-1","memberId":"88","roleId":"role-1","memberHandle":"alice"}]`))
	})

	resources, err := client.GetChallengeResources(context.Background(), "30001")
	if err != nil {
		t.Fatalf("GetChallengeResources returned error: %v", err)
	}
	if len(resources) != 1 || resources[0].MemberID != "88" {
		t.Fatalf("unexpected resources: %+v", resources)
	}
}
