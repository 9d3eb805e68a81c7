// Package account implements the domain layer the rest of this module
// treats as an external collaborator: account/user/message entities, the
// handlers that back the transport event surface, and the sync/spatial
// wiring that makes them visible to the engine.
package account

import (
	"time"

	"tileworld.dev/server/registry"
	"tileworld.dev/server/track"
	"tileworld.dev/server/world"
)

// Account is a login identity: a name/mail/password-hash triple plus the
// opaque reconnection token issued at sign-up. It has no position — only
// a User places an avatar in the world.
type Account struct {
	world.Base
	Name         string
	Mail         string
	PasswordHash string
	Token        string
	CreatedAt    time.Time
}

func (a *Account) EntityClass() string { return "account" }

func (a *Account) TableName() string { return "accounts" }

func (a *Account) InsertValues() map[string]any {
	return map[string]any{
		"name":          a.Name,
		"mail":          a.Mail,
		"password_hash": a.PasswordHash,
		"token":         a.Token,
		"created_at":    a.CreatedAt,
	}
}

func (a *Account) UpdateValues(dirty map[string]track.FieldChange) map[string]any {
	out := map[string]any{}
	if _, ok := dirty["token"]; ok {
		out["token"] = a.Token
	}
	if _, ok := dirty["passwordHash"]; ok {
		out["password_hash"] = a.PasswordHash
	}
	return out
}

// SetToken replaces the reconnection token and records the change.
func (a *Account) SetToken(tracker *track.Tracker, token string) {
	old := a.Token
	a.Token = token
	tracker.Update(a, "token", old, token)
}

// SetPasswordHash replaces the stored credential hash.
func (a *Account) SetPasswordHash(tracker *track.Tracker, hash string) {
	old := a.PasswordHash
	a.PasswordHash = hash
	tracker.Update(a, "passwordHash", old, hash)
}

// User is an avatar placed in the tile world by a logged-in account. Only
// one User may be bound to a socket at a time, but an account may own
// several (a character-select roster), hence the Reference rather than a
// 1:1 embedding.
type User struct {
	world.Base
	AccountRef world.Reference[*Account]
	Name       string
	Loc        int64
	Pos        world.Vector2
	Running    bool
}

func (u *User) EntityClass() string { return "user" }

func (u *User) TableName() string { return "users" }

func (u *User) InsertValues() map[string]any {
	out := map[string]any{
		"account_id": u.AccountRef.Key(),
		"name":       u.Name,
		"location":   u.Loc,
		"running":    u.Running,
	}
	for col, v := range registry.VectorColumns("position", u.Pos) {
		out[col] = v
	}
	return out
}

func (u *User) UpdateValues(dirty map[string]track.FieldChange) map[string]any {
	out := map[string]any{}
	if _, ok := dirty["location"]; ok {
		out["location"] = u.Loc
	}
	if _, ok := dirty["position"]; ok {
		for col, v := range registry.VectorColumns("position", u.Pos) {
			out[col] = v
		}
	}
	if _, ok := dirty["running"]; ok {
		out["running"] = u.Running
	}
	return out
}

// Position and Footprint satisfy spatial.Spatial: a user occupies exactly
// the tile it stands on.
func (u *User) Position() world.Vector2   { return u.Pos }
func (u *User) Footprint() []world.Vector2 { return []world.Vector2{u.Pos} }

// Location satisfies syncmodel.Locatable.
func (u *User) Location() int64 { return u.Loc }

// SelfUserKey satisfies syncmodel.SelfAddressable: a user is always its
// own Self receiver.
func (u *User) SelfUserKey() (int64, bool) { return u.EntityKey(), true }

// SetPosition moves the user to loc/pos, recording both the position and
// (if it changed) the location field so the synchronizer's zone-crossing
// check sees the prior values.
func (u *User) SetPosition(tracker *track.Tracker, loc int64, pos world.Vector2) {
	oldLoc, oldPos := u.Loc, u.Pos
	u.Loc, u.Pos = loc, pos
	if loc != oldLoc {
		tracker.Update(u, "location", oldLoc, loc)
	}
	tracker.Update(u, "position", oldPos, pos)
}

// SetRunning records the user's current movement gait.
func (u *User) SetRunning(tracker *track.Tracker, running bool) {
	old := u.Running
	u.Running = running
	tracker.Update(u, "running", old, running)
}

// Message is a transient chat utterance, placed in the world at its
// author's position so the Zone/Area receivers can find its audience. Its
// author's display name is denormalized onto the row at creation time:
// messages outlive nothing about the user worth a live reference lookup,
// and a disconnected/renamed author must not retroactively edit history.
type Message struct {
	world.Base
	Text     string
	UserRef  world.Reference[*User]
	UserName string
	Loc      int64
	Pos      world.Vector2
	DeleteAt time.Time
}

func (m *Message) EntityClass() string { return "message" }

func (m *Message) TableName() string { return "messages" }

func (m *Message) InsertValues() map[string]any {
	out := map[string]any{
		"text":      m.Text,
		"user_id":   m.UserRef.Key(),
		"user_name": m.UserName,
		"location":  m.Loc,
		"delete_at": m.DeleteAt,
	}
	for col, v := range registry.VectorColumns("position", m.Pos) {
		out[col] = v
	}
	return out
}

// UpdateValues is empty: a message never mutates after creation, it is
// only ever deleted.
func (m *Message) UpdateValues(dirty map[string]track.FieldChange) map[string]any {
	return map[string]any{}
}

func (m *Message) Position() world.Vector2    { return m.Pos }
func (m *Message) Footprint() []world.Vector2 { return []world.Vector2{m.Pos} }
func (m *Message) Location() int64            { return m.Loc }

// DeleteInMs is the remaining lifetime at the moment it's read, the value
// the chat scenario's "deleteIn" field carries on the initial Create sync.
func (m *Message) DeleteInMs(now time.Time) int64 {
	remaining := m.DeleteAt.Sub(now).Milliseconds()
	if remaining < 0 {
		return 0
	}
	return remaining
}
