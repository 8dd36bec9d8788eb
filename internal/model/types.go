// Package model defines shared data structures.
package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// Session is the authenticated identity of the local user.
// Username and IsAdmin are meaningful only when Token is set.
type Session struct {
	Token    string
	Username string
	IsAdmin  bool
}

// Authenticated reports whether the session carries a token.
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// LoginResult is the server's answer to a successful login.
type LoginResult struct {
	Token    string
	Username string
	IsAdmin  bool
}

// UnmarshalJSON accepts both the `isAdmin` flag and the `role` field.
func (r *LoginResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		Token    string `json:"token"`
		Username string `json:"username"`
		Role     string `json:"role"`
		IsAdmin  *bool  `json:"isAdmin"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Token = raw.Token
	r.Username = raw.Username
	r.IsAdmin = raw.Role == RoleAdmin
	if raw.IsAdmin != nil && *raw.IsAdmin {
		r.IsAdmin = true
	}
	return nil
}

// RoleAdmin is the role name the server uses for administrators.
const RoleAdmin = "ADMIN"

// RoundPhase is the lifecycle phase of a round derived from wall-clock time.
type RoundPhase string

// Round phases in lifecycle order.
const (
	PhaseCooldown RoundPhase = "COOLDOWN"
	PhaseActive   RoundPhase = "ACTIVE"
	PhaseFinished RoundPhase = "FINISHED"
)

// Round is a read-only copy of a server round.
type Round struct {
	ID         string     `json:"id"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    time.Time  `json:"endTime"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
	Status     string     `json:"status,omitempty"`
	TotalScore int        `json:"totalScore,omitempty"`
}

// TapResult is the authoritative tap counter after a tap.
type TapResult struct {
	Taps  int `json:"taps"`
	Score int `json:"score"`
}

// TopStat is one leaderboard entry.
type TopStat struct {
	Username string
	Taps     int
	Score    int
}

// UnmarshalJSON accepts `{username, taps, score}`, `{user: {username}, taps, score}`
// and a bare username string.
func (t *TopStat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &t.Username)
	}
	var raw struct {
		Username string `json:"username"`
		User     *struct {
			Username string `json:"username"`
		} `json:"user"`
		Taps  int `json:"taps"`
		Score int `json:"score"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Username = raw.Username
	if t.Username == "" && raw.User != nil {
		t.Username = raw.User.Username
	}
	t.Taps = raw.Taps
	t.Score = raw.Score
	return nil
}

// MyStats holds the local user's counters in a round.
type MyStats struct {
	Taps  int `json:"taps"`
	Score int `json:"score"`
}

// RoundStats is the aggregate snapshot of a finished round.
type RoundStats struct {
	TotalTaps     int      `json:"totalTaps"`
	Winner        *TopStat `json:"winner"`
	PersonalScore int      `json:"personalScore"`
}

// RoundDetail is a round together with any leaderboard data the server embedded.
type RoundDetail struct {
	Round
	TopStats []TopStat
	MyStats  *MyStats
}

// UnmarshalJSON accepts both the flat round resource and the
// `{round, topStats, myStats}` envelope.
func (d *RoundDetail) UnmarshalJSON(data []byte) error {
	var envelope struct {
		Round    *Round    `json:"round"`
		TopStats []TopStat `json:"topStats"`
		MyStats  *MyStats  `json:"myStats"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	if envelope.Round == nil {
		if err := json.Unmarshal(data, &d.Round); err != nil {
			return err
		}
	} else {
		d.Round = *envelope.Round
	}
	d.TopStats = envelope.TopStats
	d.MyStats = envelope.MyStats
	return nil
}

// EmbeddedStats summarises an embedded leaderboard. It returns false when the
// detail carries no leaderboard.
func (d RoundDetail) EmbeddedStats() (RoundStats, bool) {
	if len(d.TopStats) == 0 {
		return RoundStats{}, false
	}
	winner := d.TopStats[0]
	stats := RoundStats{
		TotalTaps: d.TotalScore,
		Winner:    &winner,
	}
	if d.MyStats != nil {
		stats.PersonalScore = d.MyStats.Score
	}
	return stats, true
}

// Pagination describes the cursor state of a rounds page.
type Pagination struct {
	Limit      int    `json:"limit"`
	NextCursor string `json:"nextCursor,omitempty"`
	HasMore    bool   `json:"hasMore"`
}

// RoundsPage is one page of the rounds listing.
type RoundsPage struct {
	Items      []Round
	Limit      int
	NextCursor string
	HasMore    bool
}

// UnmarshalJSON decodes the `{data, pagination}` wire shape.
func (p *RoundsPage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Data       []Round    `json:"data"`
		Pagination Pagination `json:"pagination"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Items = raw.Data
	p.Limit = raw.Pagination.Limit
	p.NextCursor = raw.Pagination.NextCursor
	p.HasMore = raw.Pagination.HasMore
	return nil
}

// RoundList accumulates rounds pages in the order they were loaded.
type RoundList struct {
	Items      []Round
	NextCursor string
	HasMore    bool
}

// Reset replaces the list with a first page.
func (l *RoundList) Reset(page RoundsPage) {
	l.Items = append([]Round(nil), page.Items...)
	l.NextCursor = page.NextCursor
	l.HasMore = page.HasMore
}

// Append adds a following page.
func (l *RoundList) Append(page RoundsPage) {
	l.Items = append(l.Items, page.Items...)
	l.NextCursor = page.NextCursor
	l.HasMore = page.HasMore
}

// CanLoadMore reports whether a next page can be requested.
func (l *RoundList) CanLoadMore() bool {
	return l.HasMore && l.NextCursor != ""
}
