package gateway

import (
	"tileworld.dev/server/session"
	"tileworld.dev/server/syncmodel"
)

// EmitSync delivers a synchronizer tick's per-user event batches to every
// socket currently bound to that user, as a single "sync" event each. A
// user with no live socket (signed out between the change and the tick)
// is silently skipped, matching the synchronizer's own "receiver offline
// is not an error" rule.
func EmitSync(sessions *session.Index, batches map[int64][]syncmodel.Event) {
	for userKey, events := range batches {
		list := make([]any, len(events))
		for i, e := range events {
			list[i] = e.Wire()
		}
		for _, s := range sessions.SocketsByUser(userKey) {
			sock, ok := s.(*Socket)
			if !ok {
				continue
			}
			sock.Send("sync", map[string]any{"list": list})
		}
	}
}
