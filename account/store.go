package account

import (
	"context"
	"fmt"
	"time"

	"tileworld.dev/server/cache"
	"tileworld.dev/server/db"
	"tileworld.dev/server/registry"
	"tileworld.dev/server/spatial"
	"tileworld.dev/server/track"
	"tileworld.dev/server/world"
)

// Stores bundles the per-class registry.Store instances this package's
// handlers operate against, constructed once at startup and passed to
// every handler closure.
type Stores struct {
	Accounts *registry.Store[*Account]
	Users    *registry.Store[*User]
	Messages *registry.Store[*Message]
}

// NewStores wires one registry.Store per persistent class against the
// shared cache, persistence gateway and change tracker.
func NewStores(c *cache.Cache, gw *db.Gateway, tracker *track.Tracker) *Stores {
	accounts := registry.New(registry.Config[*Account]{
		Class:   "account",
		Cache:   c,
		Gateway: gw,
		Tracker: tracker,
		Load:    loadAccount(gw),
		Hydrate: hydrateAccount,
		NewBare: func(key int64) *Account { return &Account{Base: world.Base{ID: key}} },
	})
	users := registry.New(registry.Config[*User]{
		Class:   "user",
		Cache:   c,
		Gateway: gw,
		Tracker: tracker,
		Load:    loadUser(gw, accounts),
		Hydrate: hydrateUser,
		NewBare: func(key int64) *User { return &User{Base: world.Base{ID: key}} },
	})
	messages := registry.New(registry.Config[*Message]{
		Class:   "message",
		Cache:   c,
		Gateway: gw,
		Tracker: tracker,
		Load:    loadMessage(gw, users),
		Hydrate: hydrateMessage,
		NewBare: func(key int64) *Message { return &Message{Base: world.Base{ID: key}} },
	})
	return &Stores{Accounts: accounts, Users: users, Messages: messages}
}

func selectByID(ctx context.Context, gw *db.Gateway, table string, id int64) (db.Row, error) {
	rows, err := gw.Select(ctx, table, map[string]any{"id": id}, db.SelectOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("account: %s#%d: not found", table, id)
	}
	return rows[0], nil
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case uint:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	default:
		return 0
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asTime(v any) time.Time {
	t, _ := v.(time.Time)
	return t
}

func loadAccount(gw *db.Gateway) registry.Loader[*Account] {
	return func(ctx context.Context, key int64) (*Account, error) {
		row, err := selectByID(ctx, gw, "accounts", key)
		if err != nil {
			return nil, err
		}
		a := &Account{Base: world.Base{ID: key}}
		a.Name = asString(row["name"])
		a.Mail = asString(row["mail"])
		a.PasswordHash = asString(row["password_hash"])
		a.Token = asString(row["token"])
		a.CreatedAt = asTime(row["created_at"])
		return a, nil
	}
}

func hydrateAccount(existing, loaded *Account) {
	existing.Name = loaded.Name
	existing.Mail = loaded.Mail
	existing.PasswordHash = loaded.PasswordHash
	existing.Token = loaded.Token
	existing.CreatedAt = loaded.CreatedAt
}

func loadUser(gw *db.Gateway, accounts *registry.Store[*Account]) registry.Loader[*User] {
	return func(ctx context.Context, key int64) (*User, error) {
		row, err := selectByID(ctx, gw, "users", key)
		if err != nil {
			return nil, err
		}
		u := &User{Base: world.Base{ID: key}}
		u.AccountRef = accounts.Reference(asInt64(row["account_id"]))
		u.Name = asString(row["name"])
		u.Loc = asInt64(row["location"])
		u.Pos = world.Vector2{X: int(asInt64(row["x"])), Y: int(asInt64(row["y"]))}
		u.Running = asBool(row["running"])
		return u, nil
	}
}

func hydrateUser(existing, loaded *User) {
	existing.AccountRef = loaded.AccountRef
	existing.Name = loaded.Name
	existing.Loc = loaded.Loc
	existing.Pos = loaded.Pos
	existing.Running = loaded.Running
}

func loadMessage(gw *db.Gateway, users *registry.Store[*User]) registry.Loader[*Message] {
	return func(ctx context.Context, key int64) (*Message, error) {
		row, err := selectByID(ctx, gw, "messages", key)
		if err != nil {
			return nil, err
		}
		m := &Message{Base: world.Base{ID: key}}
		m.Text = asString(row["text"])
		m.UserRef = users.Reference(asInt64(row["user_id"]))
		m.UserName = asString(row["user_name"])
		m.Loc = asInt64(row["location"])
		m.Pos = world.Vector2{X: int(asInt64(row["x"])), Y: int(asInt64(row["y"]))}
		m.DeleteAt = asTime(row["delete_at"])
		return m, nil
	}
}

func hydrateMessage(existing, loaded *Message) {
	existing.Text = loaded.Text
	existing.UserRef = loaded.UserRef
	existing.UserName = loaded.UserName
	existing.Loc = loaded.Loc
	existing.Pos = loaded.Pos
	existing.DeleteAt = loaded.DeleteAt
}

// SpatialLoader adapts Stores into a spatial.Loader: a subzone asks it for
// everything footprint-overlapping a rectangle, and it resolves each row
// through the ordinary registry path so a subzone's contents are always
// the same canonical instances the rest of the engine holds references
// to, never a second, detached copy.
func (s *Stores) SpatialLoader(gw *db.Gateway) spatial.Loader {
	return func(ctx context.Context, loc int64, start, end world.Vector2) (map[string][]spatial.Spatial, error) {
		out := make(map[string][]spatial.Spatial)

		userRows, err := gw.SelectRange(ctx, "users", loc, start.X, start.Y, end.X, end.Y)
		if err != nil {
			return nil, err
		}
		for _, row := range userRows {
			u, err := s.Users.Get(ctx, asInt64(row["id"]))
			if err != nil {
				return nil, err
			}
			out["user"] = append(out["user"], u)
		}

		msgRows, err := gw.SelectRange(ctx, "messages", loc, start.X, start.Y, end.X, end.Y)
		if err != nil {
			return nil, err
		}
		for _, row := range msgRows {
			m, err := s.Messages.Get(ctx, asInt64(row["id"]))
			if err != nil {
				return nil, err
			}
			out["message"] = append(out["message"], m)
		}
		return out, nil
	}
}

// Lookup resolves by-field queries the entity registry cannot (it is
// keyed only by primary key). Handlers depend on this interface rather
// than on *db.Gateway directly, the same seam the teacher's auth package
// draws around its own UserStore.
type Lookup interface {
	AccountIDByName(ctx context.Context, name string) (int64, bool, error)
	AccountIDByToken(ctx context.Context, token string) (int64, bool, error)
}

type gatewayLookup struct {
	gw *db.Gateway
}

// NewLookup adapts a persistence gateway into the Lookup interface.
func NewLookup(gw *db.Gateway) Lookup { return gatewayLookup{gw: gw} }

func (l gatewayLookup) AccountIDByName(ctx context.Context, name string) (int64, bool, error) {
	rows, err := l.gw.Select(ctx, "accounts", map[string]any{"name": name}, db.SelectOptions{Limit: 1})
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return asInt64(rows[0]["id"]), true, nil
}

func (l gatewayLookup) AccountIDByToken(ctx context.Context, token string) (int64, bool, error) {
	rows, err := l.gw.Select(ctx, "accounts", map[string]any{"token": token}, db.SelectOptions{Limit: 1})
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return asInt64(rows[0]["id"]), true, nil
}
