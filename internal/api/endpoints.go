package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/verte-zerg/tapgoose/internal/model"
)

var errRoundIDRequired = errors.New("round id is required")

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, username, password string) (model.LoginResult, error) {
	resp, err := c.send(ctx, http.MethodPost, "/auth/login", "", loginRequest{Username: username, Password: password})
	if err != nil {
		return model.LoginResult{}, err
	}
	if !resp.ok() {
		return model.LoginResult{}, &AuthError{Status: resp.status, Message: errorMessage(resp.body, "invalid credentials")}
	}
	result, err := decode[model.LoginResult]("login", resp.body)
	if err != nil {
		return model.LoginResult{}, err
	}
	if result.Token == "" {
		return model.LoginResult{}, &AuthError{Status: resp.status, Message: "login response has no token"}
	}
	return result, nil
}

// Logout ends the server session. The bearer token is sent when non-empty.
func (c *Client) Logout(ctx context.Context, token string) error {
	resp, err := c.send(ctx, http.MethodPost, "/auth/logout", token, nil)
	if err != nil {
		return err
	}
	if !resp.ok() {
		return &AuthError{Status: resp.status, Message: errorMessage(resp.body, "failed to logout")}
	}
	return nil
}

// ListRounds fetches one page of rounds. An empty cursor requests the first page.
func (c *Client) ListRounds(ctx context.Context, token, cursor string) (model.RoundsPage, error) {
	path := "/rounds"
	if cursor != "" {
		path += "?" + url.Values{"cursor": {cursor}}.Encode()
	}
	resp, err := c.send(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return model.RoundsPage{}, err
	}
	if !resp.ok() {
		return model.RoundsPage{}, &FetchError{Resource: ResourceRounds, Status: resp.status, Detail: errorMessage(resp.body, "")}
	}
	return decode[model.RoundsPage]("rounds", resp.body)
}

// GetRound fetches one round with any leaderboard data the server embeds.
func (c *Client) GetRound(ctx context.Context, token, id string) (model.RoundDetail, error) {
	if id == "" {
		return model.RoundDetail{}, errRoundIDRequired
	}
	resp, err := c.send(ctx, http.MethodGet, "/rounds/"+url.PathEscape(id), token, nil)
	if err != nil {
		return model.RoundDetail{}, err
	}
	if !resp.ok() {
		return model.RoundDetail{}, &FetchError{Resource: ResourceRound, Status: resp.status, Detail: errorMessage(resp.body, "")}
	}
	return decode[model.RoundDetail]("round", resp.body)
}

// CreateRound asks the server to schedule a new round. The server only allows
// this for administrators.
func (c *Client) CreateRound(ctx context.Context, token string) (model.Round, error) {
	resp, err := c.send(ctx, http.MethodPost, "/rounds", token, struct{}{})
	if err != nil {
		return model.Round{}, err
	}
	if !resp.ok() {
		return model.Round{}, &FetchError{Resource: ResourceCreate, Status: resp.status, Detail: errorMessage(resp.body, "")}
	}
	// Some servers answer with the detail envelope.
	detail, err := decode[model.RoundDetail]("create", resp.body)
	if err != nil {
		return model.Round{}, err
	}
	return detail.Round, nil
}

// Tap registers one tap in an active round.
func (c *Client) Tap(ctx context.Context, token, id string) (model.TapResult, error) {
	if id == "" {
		return model.TapResult{}, errRoundIDRequired
	}
	resp, err := c.send(ctx, http.MethodPost, "/rounds/"+url.PathEscape(id)+"/tap", token, nil)
	if err != nil {
		return model.TapResult{}, err
	}
	if !resp.ok() {
		return model.TapResult{}, &TapError{Status: resp.status, Message: errorMessage(resp.body, "failed to tap goose")}
	}
	return decode[model.TapResult]("tap", resp.body)
}

// GetRoundStats fetches the aggregate statistics of a round.
func (c *Client) GetRoundStats(ctx context.Context, token, id string) (model.RoundStats, error) {
	if id == "" {
		return model.RoundStats{}, errRoundIDRequired
	}
	resp, err := c.send(ctx, http.MethodGet, "/rounds/"+url.PathEscape(id)+"/stats", token, nil)
	if err != nil {
		return model.RoundStats{}, err
	}
	if !resp.ok() {
		return model.RoundStats{}, &FetchError{Resource: ResourceStats, Status: resp.status, Detail: errorMessage(resp.body, "")}
	}
	return decode[model.RoundStats]("stats", resp.body)
}
