// Package session implements the session index: the bidirectional
// socket<->account/user bookkeeping the transport boundary and the sync
// model's Self/UserByField/Zone receivers depend on to find a live socket
// for a given account or user key.
package session

import "sync"

// Socket is an opaque transport-level handle. The transport boundary
// package supplies the concrete type (a *websocket.Conn wrapper); the
// session index only ever compares and stores it.
type Socket any

// Index holds the four maps the spec names: account-by-socket,
// user-by-socket, sockets-by-account, sockets-by-user. Registration is
// idempotent; deregistering a socket's last account/user removes that
// entry entirely rather than leaving an empty set behind.
type Index struct {
	mu sync.RWMutex

	accountBySocket map[Socket]int64
	userBySocket    map[Socket]int64
	socketsByAccount map[int64]map[Socket]struct{}
	socketsByUser    map[int64]map[Socket]struct{}
}

func New() *Index {
	return &Index{
		accountBySocket:  make(map[Socket]int64),
		userBySocket:     make(map[Socket]int64),
		socketsByAccount: make(map[int64]map[Socket]struct{}),
		socketsByUser:    make(map[int64]map[Socket]struct{}),
	}
}

// LoginAccount binds s to accountKey. Calling it again with the same pair
// is a no-op.
func (idx *Index) LoginAccount(s Socket, accountKey int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.accountBySocket[s] = accountKey
	set := idx.socketsByAccount[accountKey]
	if set == nil {
		set = make(map[Socket]struct{})
		idx.socketsByAccount[accountKey] = set
	}
	set[s] = struct{}{}
}

// LoginUser binds s to userKey; an account slot is left untouched so a
// socket can be logged into both simultaneously.
func (idx *Index) LoginUser(s Socket, userKey int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.userBySocket[s] = userKey
	set := idx.socketsByUser[userKey]
	if set == nil {
		set = make(map[Socket]struct{})
		idx.socketsByUser[userKey] = set
	}
	set[s] = struct{}{}
}

// LogoutAccount clears s's account binding, removing the account's socket
// set entirely once it empties.
func (idx *Index) LogoutAccount(s Socket) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.logoutAccountLocked(s)
}

// LogoutUser clears s's user binding, removing the user's socket set
// entirely once it empties.
func (idx *Index) LogoutUser(s Socket) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.logoutUserLocked(s)
}

func (idx *Index) logoutAccountLocked(s Socket) {
	accountKey, ok := idx.accountBySocket[s]
	if !ok {
		return
	}
	delete(idx.accountBySocket, s)
	if set, ok := idx.socketsByAccount[accountKey]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(idx.socketsByAccount, accountKey)
		}
	}
}

func (idx *Index) logoutUserLocked(s Socket) {
	userKey, ok := idx.userBySocket[s]
	if !ok {
		return
	}
	delete(idx.userBySocket, s)
	if set, ok := idx.socketsByUser[userKey]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(idx.socketsByUser, userKey)
		}
	}
}

// Close tears down every binding for s in one traversal, as socket close
// must: a dangling entry afterward is a bug.
func (idx *Index) Close(s Socket) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.logoutUserLocked(s)
	idx.logoutAccountLocked(s)
}

// IsLoggedIntoAccount reports whether s currently has an account binding.
func (idx *Index) IsLoggedIntoAccount(s Socket) (int64, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	key, ok := idx.accountBySocket[s]
	return key, ok
}

// IsLoggedAsUser reports whether s currently has a user binding.
func (idx *Index) IsLoggedAsUser(s Socket) (int64, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	key, ok := idx.userBySocket[s]
	return key, ok
}

// SocketsByUser lists every socket currently bound to userKey.
func (idx *Index) SocketsByUser(userKey int64) []Socket {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	set := idx.socketsByUser[userKey]
	out := make([]Socket, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// SocketsByAccount lists every socket currently bound to accountKey.
func (idx *Index) SocketsByAccount(accountKey int64) []Socket {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	set := idx.socketsByAccount[accountKey]
	out := make([]Socket, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}
