// Package gateway implements the transport boundary: a per-socket event
// map, snake_case/camelCase wire translation, access-level decorators,
// and per-socket rate limiting, sitting atop a gorilla/websocket
// connection.
package gateway

import (
	"context"
	"errors"

	"tileworld.dev/server/common"
	"tileworld.dev/server/session"
)

// AccessLevel gates a handler on the caller's login state.
type AccessLevel int

const (
	ForAll AccessLevel = iota
	OnlyGuest
	OnlyLoggedAccount
	OnlyLoggedAtLeastAccount
	OnlyLogged
)

// ErrNotConsumed is a handler's sentinel return value: the request was
// otherwise valid, but should not count against the caller's rate quota
// (e.g. a duplicate that was recognized and ignored). The router refunds
// the reservation made for this call before returning.
var ErrNotConsumed = errors.New("gateway: request did not consume its quota")

// HandlerContext is what a registered handler receives for one dispatch.
type HandlerContext struct {
	Ctx        context.Context
	Socket     *Socket
	Event      string
	Data       map[string]any
	AccountKey int64
	UserKey    int64
}

// Handler processes one event. It emits replies itself via hc.Socket.Send
// and signals failure via error; ErrNotConsumed is special-cased by the
// router, any other error is classified by common.AsEngineError: NotFound
// is sent as "<event>_error" with the reason, the other client-visible
// categories as an "info" event, and Storage/Unknown are logged.
type Handler func(hc *HandlerContext) error

type registration struct {
	handler Handler
	access  AccessLevel
	limit   *limitConfig
}

// Router owns the event->handler map and dispatches incoming frames to
// it, applying access checks and rate limits before the handler runs.
type Router struct {
	handlers map[string]*registration
	sessions *session.Index
	limiters *limiterStore
	log      *common.ContextLogger
}

func NewRouter(sessions *session.Index, log *common.ContextLogger) *Router {
	return &Router{
		handlers: make(map[string]*registration),
		sessions: sessions,
		limiters: newLimiterStore(),
		log:      log,
	}
}

// Handle registers fn for event under the given access level.
func (r *Router) Handle(event string, access AccessLevel, fn Handler) {
	r.handlers[event] = &registration{handler: fn, access: access}
}

// Limit attaches a {periodMs, times} quota to a previously registered
// event. Requests past the quota are rejected with an "info" event and
// the handler does not run.
func (r *Router) Limit(event string, periodMs int, times int) {
	reg, ok := r.handlers[event]
	if !ok {
		return
	}
	reg.limit = newLimitConfig(periodMs, times)
}

// CloseSocket tears down s's session bindings and rate-limiter state in
// one call, the way the spec requires socket close to traverse the
// session index exactly once.
func (r *Router) CloseSocket(s *Socket) {
	r.sessions.Close(s)
	r.limiters.forget(s)
	s.Close()
}

// Dispatch decodes raw bytes as a Frame and routes it through the access
// check, the rate limiter, and finally the handler.
func (r *Router) Dispatch(ctx context.Context, s *Socket) error {
	frame, err := s.Receive()
	if err != nil {
		return err
	}
	r.dispatchFrame(ctx, s, frame)
	return nil
}

func (r *Router) dispatchFrame(ctx context.Context, s *Socket, frame Frame) {
	reg, ok := r.handlers[frame.Event]
	if !ok {
		s.Send("info", map[string]any{"text": "UNKNOWN_EVENT"})
		return
	}

	accountKey, loggedAccount := r.sessions.IsLoggedIntoAccount(s)
	userKey, loggedUser := r.sessions.IsLoggedAsUser(s)
	if reason, ok := checkAccess(reg.access, loggedAccount, loggedUser); !ok {
		s.Send("info", map[string]any{"text": reason})
		return
	}

	var reservation *reservation
	if reg.limit != nil {
		var allowed bool
		reservation, allowed = r.limiters.reserve(s, frame.Event, *reg.limit)
		if !allowed {
			s.Send("info", map[string]any{"text": "LIMIT_REACHED"})
			return
		}
	}

	hc := &HandlerContext{Ctx: ctx, Socket: s, Event: frame.Event, Data: frame.Data, AccountKey: accountKey, UserKey: userKey}
	err := reg.handler(hc)
	switch {
	case err == nil:
		return
	case errors.Is(err, ErrNotConsumed):
		if reservation != nil {
			reservation.cancel()
		}
	default:
		r.reportHandlerError(s, frame.Event, err)
	}
}

func (r *Router) reportHandlerError(s *Socket, event string, err error) {
	ee := common.AsEngineError(err)
	switch ee.Category {
	case common.Validation:
		s.Send("info", map[string]any{"text": "WRONG_DATA"})
	case common.Access:
		s.Send("info", map[string]any{"text": ee.Reason})
	case common.Limit:
		s.Send("info", map[string]any{"text": "LIMIT_REACHED"})
	case common.NotFound:
		s.Send(event+"_error", map[string]any{"error": ee.Reason})
	case common.Storage:
		if r.log != nil {
			r.log.WithError(ee).WithField("event", event).Error("storage error in handler")
		}
		s.Send("info", map[string]any{"text": "UNKNOWN_ERROR"})
	default:
		if r.log != nil {
			r.log.WithError(ee).WithField("event", event).Error("unhandled error in handler")
		}
		s.Send("info", map[string]any{"text": "UNKNOWN_ERROR"})
	}
}

func checkAccess(level AccessLevel, loggedAccount, loggedUser bool) (string, bool) {
	switch level {
	case ForAll:
		return "", true
	case OnlyGuest:
		if loggedAccount {
			return "ALREADY_LOGGED_IN", false
		}
		return "", true
	case OnlyLoggedAccount:
		if !loggedAccount {
			return "PLEASE_LOGIN_ACCOUNT", false
		}
		if loggedUser {
			return "ALREADY_LOGGED_IN_USER", false
		}
		return "", true
	case OnlyLoggedAtLeastAccount:
		if !loggedAccount {
			return "PLEASE_LOGIN_ACCOUNT", false
		}
		return "", true
	case OnlyLogged:
		if !loggedUser {
			return "PLEASE_LOGIN_USER", false
		}
		return "", true
	default:
		return "", true
	}
}
