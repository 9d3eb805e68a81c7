package account

import (
	"time"

	"tileworld.dev/server/auth"
	"tileworld.dev/server/common"
	"tileworld.dev/server/db"
	"tileworld.dev/server/gateway"
	"tileworld.dev/server/world"
)

func requireString(data map[string]any, field string) (string, error) {
	v, ok := data[field]
	if !ok {
		return "", common.ValidationError("WRONG_DATA")
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", common.ValidationError("WRONG_DATA")
	}
	return s, nil
}

func requireBool(data map[string]any, field string) bool {
	b, _ := data[field].(bool)
	return b
}

func requireVector(data map[string]any, field string) (world.Vector2, error) {
	raw, ok := data[field].(map[string]any)
	if !ok {
		return world.Vector2{}, common.ValidationError("WRONG_DATA")
	}
	xf, xok := raw["x"].(float64)
	yf, yok := raw["y"].(float64)
	if !xok || !yok {
		return world.Vector2{}, common.ValidationError("WRONG_DATA")
	}
	return world.Vector2{X: int(xf), Y: int(yf)}, nil
}

// SignUpAccount handles the first-sign-up scenario: validated name/mail/
// password, a bcrypt hash, and a fresh opaque token, persisted as a new
// account row. No payload accompanies the confirmation — the client
// learns the token later, via sign_in_account.
func (e *Engine) SignUpAccount(hc *gateway.HandlerContext) error {
	name, err := requireString(hc.Data, "name")
	if err != nil {
		return err
	}
	mail, _ := hc.Data["mail"].(string)
	pass, err := requireString(hc.Data, "pass")
	if err != nil {
		return err
	}
	if err := auth.ValidateUsername(name); err != nil {
		return common.ValidationError("WRONG_DATA")
	}
	if err := auth.ValidateEmail(mail); err != nil {
		return common.ValidationError("WRONG_DATA")
	}
	if err := auth.CheckPasswordStrength(pass, false); err != nil {
		return common.ValidationError("WRONG_DATA")
	}

	hash, err := auth.HashPassword(pass)
	if err != nil {
		return common.UnknownError(err)
	}
	token, err := generateToken()
	if err != nil {
		return common.UnknownError(err)
	}

	e.Stores.Accounts.Create(func(a *Account) {
		a.Name = name
		a.Mail = mail
		a.PasswordHash = hash
		a.Token = token
		a.CreatedAt = time.Now()
	})

	return hc.Socket.Send("sign_up_account", map[string]any{})
}

// SignInAccount handles sign-in by name/password, the credentials half of
// the sign-in-account scenario.
func (e *Engine) SignInAccount(hc *gateway.HandlerContext) error {
	name, err := requireString(hc.Data, "name")
	if err != nil {
		return err
	}
	pass, err := requireString(hc.Data, "pass")
	if err != nil {
		return err
	}

	id, found, err := e.Lookup.AccountIDByName(hc.Ctx, name)
	if err != nil {
		return common.StorageError("select accounts by name", err)
	}
	if !found {
		return common.NotFoundError("AUTH_ACCOUNT_NOT_FOUND")
	}
	acc, err := e.Stores.Accounts.Get(hc.Ctx, id)
	if err != nil {
		return common.StorageError("load account", err)
	}
	if err := auth.ValidatePassword(pass, acc.PasswordHash); err != nil {
		return common.NotFoundError("AUTH_WRONG_PASSWORD")
	}

	e.Sessions.LoginAccount(hc.Socket, acc.EntityKey())
	return hc.Socket.Send("sign_in_account", map[string]any{"token": acc.Token})
}

// SignInByToken reconnects a socket to an account via its opaque token,
// without re-presenting credentials.
func (e *Engine) SignInByToken(hc *gateway.HandlerContext) error {
	token, err := requireString(hc.Data, "token")
	if err != nil {
		return err
	}
	id, found, err := e.Lookup.AccountIDByToken(hc.Ctx, token)
	if err != nil {
		return common.StorageError("select accounts by token", err)
	}
	if !found {
		return common.NotFoundError("AUTH_INVALID_TOKEN")
	}
	acc, err := e.Stores.Accounts.Get(hc.Ctx, id)
	if err != nil {
		return common.StorageError("load account", err)
	}
	e.Sessions.LoginAccount(hc.Socket, acc.EntityKey())
	return hc.Socket.Send("sign_in_account", map[string]any{"token": acc.Token})
}

// SignUpUser creates a new avatar row under the caller's signed-in
// account. It does not itself enter the world — sign_in_user does.
func (e *Engine) SignUpUser(hc *gateway.HandlerContext) error {
	name, err := requireString(hc.Data, "name")
	if err != nil {
		return err
	}
	if err := auth.ValidateUsername(name); err != nil {
		return common.ValidationError("WRONG_DATA")
	}

	e.Stores.Users.Create(func(u *User) {
		u.AccountRef = e.Stores.Accounts.Reference(hc.AccountKey)
		u.Name = name
		u.Loc = e.SpawnLocation
		u.Pos = e.SpawnPosition
	})

	return hc.Socket.Send("sign_up_user", map[string]any{})
}

// GetUserList lists every avatar belonging to the caller's account, the
// roster a client picks from before sign_in_user.
func (e *Engine) GetUserList(hc *gateway.HandlerContext) error {
	rows, err := e.gateway.Select(hc.Ctx, "users", map[string]any{"account_id": hc.AccountKey}, db.SelectOptions{})
	if err != nil {
		return common.StorageError("select users by account", err)
	}
	list := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		list = append(list, map[string]any{"id": asInt64(row["id"]), "name": asString(row["name"])})
	}
	return hc.Socket.Send("get_user_list", map[string]any{"users": list})
}

// SignInUser binds the caller's socket to one of its account's avatars
// and brings that avatar live in the world: it enters its subzone and
// becomes visible to nearby observers via the ordinary Create sync path,
// without re-inserting its already-persisted row.
func (e *Engine) SignInUser(hc *gateway.HandlerContext) error {
	userID, ok := hc.Data["userId"].(float64)
	if !ok {
		return common.ValidationError("WRONG_DATA")
	}
	user, err := e.Stores.Users.Get(hc.Ctx, int64(userID))
	if err != nil {
		return common.NotFoundError("USER_NOT_FOUND")
	}
	if user.AccountRef.Key() != hc.AccountKey {
		return common.AccessError("FORBIDDEN")
	}

	e.Sessions.LoginUser(hc.Socket, user.EntityKey())
	e.Tracker.EnterWorld(user)
	return hc.Socket.Send("sign_in_user", map[string]any{})
}

// LogOutUser removes the caller's avatar from the live world (a Delete
// sync to its observers) and clears the user session slot; the account
// slot is untouched.
func (e *Engine) LogOutUser(hc *gateway.HandlerContext) error {
	user, err := e.Stores.Users.Get(hc.Ctx, hc.UserKey)
	if err != nil {
		return common.StorageError("load user", err)
	}
	e.Tracker.LeaveWorld(user)
	e.Sessions.LogoutUser(hc.Socket)
	return hc.Socket.Send("log_out_user", map[string]any{})
}

// LogOutAccount clears the account session slot. A socket with a live
// user session logs that out too, since a user cannot outlive its
// account's session.
func (e *Engine) LogOutAccount(hc *gateway.HandlerContext) error {
	if _, ok := e.Sessions.IsLoggedAsUser(hc.Socket); ok {
		if err := e.LogOutUser(hc); err != nil {
			return err
		}
	}
	e.Sessions.LogoutAccount(hc.Socket)
	return hc.Socket.Send("log_out_account", map[string]any{})
}

// Move advances the caller's avatar one step on the staggered isometric
// grid. direction components are one of {-1,0,1}; the Y delta doubles
// (and picks up X's contribution) to match the grid's doubled-Y storage
// convention.
func (e *Engine) Move(hc *gateway.HandlerContext) error {
	dir, err := requireVector(hc.Data, "direction")
	if err != nil {
		return err
	}
	if dir.X < -1 || dir.X > 1 || dir.Y < -1 || dir.Y > 1 {
		return common.ValidationError("WRONG_DATA")
	}
	run := requireBool(hc.Data, "run")

	user, err := e.Stores.Users.Get(hc.Ctx, hc.UserKey)
	if err != nil {
		return common.StorageError("load user", err)
	}

	user.SetPosition(e.Tracker, user.Loc, user.Pos.Add(moveDelta(dir)))
	if run != user.Running {
		user.SetRunning(e.Tracker, run)
	}
	return nil
}

// moveDelta converts a client-facing {-1,0,1} direction into the tile
// offset to apply on the staggered isometric grid, where Y is stored
// doubled: a step along X alone still shifts a full row, so Y picks up
// both components' contribution before doubling.
func moveDelta(dir world.Vector2) world.Vector2 {
	return world.Vector2{X: dir.X, Y: (dir.X + dir.Y) * 2}
}

// SendMessage handles the chat-broadcast scenario: a message entity is
// created at the caller's position, denormalizing its author's name, and
// queued for expiry after messageLifetime.
func (e *Engine) SendMessage(hc *gateway.HandlerContext) error {
	text, err := requireString(hc.Data, "text")
	if err != nil {
		return err
	}
	if len(text) > 500 {
		return common.ValidationError("WRONG_DATA")
	}

	user, err := e.Stores.Users.Get(hc.Ctx, hc.UserKey)
	if err != nil {
		return common.StorageError("load user", err)
	}

	var msg *Message
	e.Stores.Messages.Create(func(m *Message) {
		m.Text = text
		m.UserRef = e.Stores.Users.Reference(user.EntityKey())
		m.UserName = user.Name
		m.Loc = user.Loc
		m.Pos = user.Pos
		m.DeleteAt = time.Now().Add(messageLifetime)
		msg = m
	})
	e.queueExpiry(msg)
	return nil
}
