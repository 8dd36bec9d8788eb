package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/tapgoose/internal/apitest"
	"github.com/verte-zerg/tapgoose/internal/model"
)

func newTestServer(t *testing.T) (*apitest.Server, *Client) {
	t.Helper()
	srv := apitest.NewServer(t)
	return srv, New(srv.URL, WithTimeout(5*time.Second))
}

func activeRound(id string) model.Round {
	now := time.Now().UTC()
	return model.Round{ID: id, StartTime: now.Add(-time.Minute), EndTime: now.Add(time.Minute)}
}

func TestLoginSuccess(t *testing.T) {
	srv, client := newTestServer(t)
	srv.AddUser("admin", "secret", true)
	srv.AddUser("alice", "pw", false)

	res, err := client.Login(context.Background(), "admin", "secret")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "admin", res.Username)
	assert.True(t, res.IsAdmin)
	assert.Empty(t, srv.LastHeader(apitest.RouteLogin, "Authorization"))
	assert.Equal(t, "application/json", srv.LastHeader(apitest.RouteLogin, "Content-Type"))

	res, err = client.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
	assert.False(t, res.IsAdmin)
}

func TestLoginInvalidCredentialsUsesBodyText(t *testing.T) {
	srv, client := newTestServer(t)
	srv.AddUser("alice", "pw", false)

	_, err := client.Login(context.Background(), "alice", "wrong")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.Status)
	assert.Equal(t, "Invalid username or password", authErr.Error())
}

func TestLoginEmptyBodyUsesDefaultMessage(t *testing.T) {
	srv, client := newTestServer(t)
	srv.FailNext(apitest.RouteLogin, http.StatusUnauthorized, "")

	_, err := client.Login(context.Background(), "alice", "pw")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "invalid credentials", authErr.Message)
}

func TestLogoutSendsOptionalBearer(t *testing.T) {
	srv, client := newTestServer(t)
	token := srv.IssueToken("alice")

	require.NoError(t, client.Logout(context.Background(), token))
	assert.Equal(t, "Bearer "+token, srv.LastHeader(apitest.RouteLogout, "Authorization"))

	require.NoError(t, client.Logout(context.Background(), ""))
	assert.Empty(t, srv.LastHeader(apitest.RouteLogout, "Authorization"))

	srv.FailNext(apitest.RouteLogout, http.StatusInternalServerError, "")
	err := client.Logout(context.Background(), token)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "failed to logout", authErr.Message)
}

func TestListRoundsPaginates(t *testing.T) {
	srv, client := newTestServer(t)
	srv.PageSize = 2
	for i := 0; i < 3; i++ {
		srv.AddRound(activeRound(fmt.Sprintf("r%d", i)))
	}
	token := srv.IssueToken("alice")
	ctx := context.Background()

	first, err := client.ListRounds(ctx, token, "")
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "2", first.NextCursor)
	assert.Equal(t, "Bearer "+token, srv.LastHeader(apitest.RouteRounds, "Authorization"))
	assert.NotEmpty(t, srv.LastHeader(apitest.RouteRounds, RequestIDHeader))

	second, err := client.ListRounds(ctx, token, first.NextCursor)
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, "r2", second.Items[0].ID)
	assert.False(t, second.HasMore)

	var list model.RoundList
	list.Reset(first)
	list.Append(second)
	require.Len(t, list.Items, 3)
	assert.Equal(t, []string{"r0", "r1", "r2"}, []string{list.Items[0].ID, list.Items[1].ID, list.Items[2].ID})
	assert.False(t, list.HasMore)
}

func TestListRoundsEmptyIsSuccess(t *testing.T) {
	srv, client := newTestServer(t)
	page, err := client.ListRounds(context.Background(), srv.IssueToken("alice"), "")
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore)
}

func TestListRoundsUnauthorized(t *testing.T) {
	_, client := newTestServer(t)
	_, err := client.ListRounds(context.Background(), "stale", "")

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, ResourceRounds, fetchErr.Resource)
	assert.Equal(t, "failed to load rounds: unauthorized", fetchErr.Error())
	assert.True(t, IsUnauthorized(err))
}

func TestGetRoundFlatAndEnvelope(t *testing.T) {
	srv, client := newTestServer(t)
	round := activeRound("r1")
	srv.AddRound(round)
	srv.SetTaps("r1", "alice", model.TapResult{Taps: 3, Score: 30})
	token := srv.IssueToken("alice")
	ctx := context.Background()

	flat, err := client.GetRound(ctx, token, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", flat.ID)
	assert.Equal(t, "active", flat.Status)
	assert.True(t, flat.StartTime.Equal(round.StartTime))
	assert.Nil(t, flat.MyStats)

	srv.Envelope = true
	nested, err := client.GetRound(ctx, token, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", nested.ID)
	require.NotNil(t, nested.MyStats)
	assert.Equal(t, 30, nested.MyStats.Score)
	require.Len(t, nested.TopStats, 1)
	assert.Equal(t, "alice", nested.TopStats[0].Username)
}

func TestGetRoundNotFound(t *testing.T) {
	srv, client := newTestServer(t)
	_, err := client.GetRound(context.Background(), srv.IssueToken("alice"), "missing")

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, ResourceRound, fetchErr.Resource)
	assert.Equal(t, http.StatusNotFound, fetchErr.Status)
	assert.Equal(t, "round not found", fetchErr.Detail)
	assert.False(t, IsUnauthorized(err))
}

func TestCreateRoundAdminOnly(t *testing.T) {
	srv, client := newTestServer(t)
	srv.AddUser("admin", "secret", true)
	srv.AddUser("alice", "pw", false)
	ctx := context.Background()

	round, err := client.CreateRound(ctx, srv.IssueToken("admin"))
	require.NoError(t, err)
	assert.NotEmpty(t, round.ID)
	assert.True(t, round.EndTime.After(round.StartTime))

	_, err = client.CreateRound(ctx, srv.IssueToken("alice"))
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, ResourceCreate, fetchErr.Resource)
	assert.Equal(t, http.StatusForbidden, fetchErr.Status)
}

func TestTapReturnsServerCounters(t *testing.T) {
	srv, client := newTestServer(t)
	srv.AddRound(activeRound("r1"))
	token := srv.IssueToken("alice")
	ctx := context.Background()

	res, err := client.Tap(ctx, token, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.TapResult{Taps: 1, Score: 10}, res)

	res, err = client.Tap(ctx, token, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.TapResult{Taps: 2, Score: 20}, res)
	assert.Equal(t, 2, srv.Hits(apitest.RouteTap))
}

func TestTapRejectedUsesMessageField(t *testing.T) {
	srv, client := newTestServer(t)
	now := time.Now().UTC()
	srv.AddRound(model.Round{ID: "later", StartTime: now.Add(time.Hour), EndTime: now.Add(2 * time.Hour)})

	_, err := client.Tap(context.Background(), srv.IssueToken("alice"), "later")
	var tapErr *TapError
	require.ErrorAs(t, err, &tapErr)
	assert.Equal(t, "round is not active", tapErr.Error())

	srv.FailNext(apitest.RouteTap, http.StatusInternalServerError, `{}`)
	_, err = client.Tap(context.Background(), srv.IssueToken("alice"), "later")
	require.ErrorAs(t, err, &tapErr)
	assert.Equal(t, "failed to tap goose", tapErr.Error())
}

func TestGetRoundStats(t *testing.T) {
	srv, client := newTestServer(t)
	srv.AddRound(activeRound("r1"))
	srv.SetTaps("r1", "alice", model.TapResult{Taps: 4, Score: 40})
	srv.SetTaps("r1", "bob", model.TapResult{Taps: 7, Score: 70})

	stats, err := client.GetRoundStats(context.Background(), srv.IssueToken("alice"), "r1")
	require.NoError(t, err)
	assert.Equal(t, 11, stats.TotalTaps)
	require.NotNil(t, stats.Winner)
	assert.Equal(t, "bob", stats.Winner.Username)
	assert.Equal(t, 70, stats.Winner.Score)
	assert.Equal(t, 40, stats.PersonalScore)

	srv.FailNext(apitest.RouteStats, http.StatusBadGateway, "upstream down")
	_, err = client.GetRoundStats(context.Background(), srv.IssueToken("alice"), "r1")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, ResourceStats, fetchErr.Resource)
	assert.Equal(t, "failed to load stats: upstream down", fetchErr.Error())
}

func TestRoundIDRequired(t *testing.T) {
	_, client := newTestServer(t)
	_, err := client.GetRound(context.Background(), "tok", "")
	assert.ErrorIs(t, err, errRoundIDRequired)
	_, err = client.Tap(context.Background(), "tok", "")
	assert.ErrorIs(t, err, errRoundIDRequired)
}

func TestNetworkErrorWrapsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := New(url)
	_, err := client.ListRounds(context.Background(), "tok", "")
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, "GET /rounds", netErr.Op)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestCancelledContextIsNetworkError(t *testing.T) {
	srv, client := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ListRounds(ctx, srv.IssueToken("alice"), "")
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestErrorMessage(t *testing.T) {
	cases := []struct {
		body     string
		fallback string
		want     string
	}{
		{"", "default", "default"},
		{"   ", "default", "default"},
		{`{"message": "nope"}`, "default", "nope"},
		{`{"error": "bad"}`, "default", "bad"},
		{`{"other": 1}`, "default", "default"},
		{"plain text\n", "default", "plain text"},
		{`{broken`, "default", "{broken"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, errorMessage([]byte(tc.body), tc.fallback), "body %q", tc.body)
	}
}
