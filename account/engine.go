package account

import (
	"context"
	"sync"
	"time"

	"tileworld.dev/server/common"
	"tileworld.dev/server/db"
	"tileworld.dev/server/gateway"
	"tileworld.dev/server/scheduler"
	"tileworld.dev/server/session"
	"tileworld.dev/server/spatial"
	"tileworld.dev/server/syncmodel"
	"tileworld.dev/server/track"
	"tileworld.dev/server/world"
)

// messageLifetime is the chat scenario's literal 300000ms.
const messageLifetime = 300 * time.Second

// Engine owns the account/user/message domain: the registry stores, the
// session and spatial collaborators the handlers read through, and the
// in-memory queue that ages out chat messages. It is what main wires
// together and what the gateway.Router dispatches into.
type Engine struct {
	Stores        *Stores
	Sessions      *session.Index
	Tracker       *track.Tracker
	Spatial       *spatial.Manager
	Lookup        Lookup
	Log           *common.ContextLogger
	SpawnLocation int64
	SpawnPosition world.Vector2

	gateway *db.Gateway

	expiryMu sync.Mutex
	expiry   []*Message
}

// Config bundles the collaborators NewEngine needs. Stores is built by the
// caller (not NewEngine) since the spatial manager's loader is itself
// built from Stores.SpatialLoader — constructing it here would require
// the spatial manager to already exist, before it can exist.
type Config struct {
	Stores   *Stores
	Gateway  *db.Gateway
	Tracker  *track.Tracker
	Sessions *session.Index
	Spatial  *spatial.Manager
	Models   *syncmodel.Registry
	Log      *common.ContextLogger
}

// NewEngine registers the sync models against the already-built Stores and
// spatial manager and returns a ready-to-wire Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := RegisterModels(cfg.Models, cfg.Spatial); err != nil {
		return nil, common.ConfigurationError(err.Error())
	}
	return &Engine{
		Stores:        cfg.Stores,
		Sessions:      cfg.Sessions,
		Tracker:       cfg.Tracker,
		Spatial:       cfg.Spatial,
		Lookup:        NewLookup(cfg.Gateway),
		Log:           cfg.Log,
		SpawnLocation: 1,
		SpawnPosition: world.Vector2{X: 0, Y: 0},
		gateway:       cfg.Gateway,
	}, nil
}

// Wire registers every handler on router and the message-expiry task on
// sched. Rate limits are attached here rather than scattered through the
// handler bodies, matching where the teacher's transport layer configures
// them.
func (e *Engine) Wire(router *gateway.Router, sched *scheduler.Scheduler) {
	router.Handle("sign_up_account", gateway.OnlyGuest, e.SignUpAccount)
	router.Limit("sign_up_account", 60000, 1)
	router.Handle("sign_in_account", gateway.OnlyGuest, e.SignInAccount)
	router.Handle("sign_in_by_token", gateway.OnlyGuest, e.SignInByToken)
	router.Handle("sign_up_user", gateway.OnlyLoggedAccount, e.SignUpUser)
	router.Handle("get_user_list", gateway.OnlyLoggedAtLeastAccount, e.GetUserList)
	router.Handle("sign_in_user", gateway.OnlyLoggedAccount, e.SignInUser)
	router.Handle("log_out_user", gateway.OnlyLogged, e.LogOutUser)
	router.Handle("log_out_account", gateway.OnlyLoggedAtLeastAccount, e.LogOutAccount)
	router.Handle("move", gateway.OnlyLogged, e.Move)
	router.Limit("move", 50, 1)
	router.Handle("send_message", gateway.OnlyLogged, e.SendMessage)
	router.Limit("send_message", 500, 1)

	sched.Add("expire_messages", time.Second, 10, e.expireMessages)
}

// queueExpiry schedules msg for removal once its lifetime elapses. The
// queue lives only in memory: a restart forgets any message already
// queued (see the restart decision in the design notes), and
// expireMessages walks only this queue, so the rows of such messages are
// not removed by it after a restart.
func (e *Engine) queueExpiry(m *Message) {
	e.expiryMu.Lock()
	defer e.expiryMu.Unlock()
	e.expiry = append(e.expiry, m)
}

func (e *Engine) expireMessages(ctx context.Context, _ time.Duration) error {
	now := time.Now()
	e.expiryMu.Lock()
	var due []*Message
	remaining := e.expiry[:0]
	for _, m := range e.expiry {
		if !m.DeleteAt.After(now) {
			due = append(due, m)
		} else {
			remaining = append(remaining, m)
		}
	}
	e.expiry = remaining
	e.expiryMu.Unlock()

	for _, m := range due {
		e.Stores.Messages.Remove(m)
	}
	return nil
}
