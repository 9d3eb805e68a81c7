package account

import (
	"time"

	"tileworld.dev/server/spatial"
	"tileworld.dev/server/syncmodel"
	"tileworld.dev/server/world"
)

// HearingRadius is the chat scenario's disk-shaped audience: every user
// within this many tiles of the speaker's position (Y halved per the
// staggered-isometric distance rule) hears a message.
const HearingRadius = 12.0

// RegisterModels installs the user and message sync declarations. Called
// once at startup; a duplicate-receiver mistake here is a Configuration
// error the registry itself rejects.
func RegisterModels(reg *syncmodel.Registry, sm *spatial.Manager) error {
	if err := reg.Register(userModel()); err != nil {
		return err
	}
	if err := reg.Register(messageModel(sm)); err != nil {
		return err
	}
	return nil
}

func userModel() *syncmodel.ClassModel {
	return &syncmodel.ClassModel{
		ClassName: "user",
		Fields: map[string]syncmodel.FieldDecl{
			"name": {Entries: []syncmodel.Entry{
				{Receiver: syncmodel.Receiver{Kind: syncmodel.Zone}},
				{Receiver: syncmodel.Receiver{Kind: syncmodel.Self}},
			}},
			"position": {Entries: []syncmodel.Entry{
				{Receiver: syncmodel.Receiver{Kind: syncmodel.Zone}},
				{Receiver: syncmodel.Receiver{Kind: syncmodel.Self}},
			}},
			"running": {Entries: []syncmodel.Entry{
				{Receiver: syncmodel.Receiver{Kind: syncmodel.Zone}, Lazy: true},
				{Receiver: syncmodel.Receiver{Kind: syncmodel.Self}},
			}},
		},
		Get: func(e world.Entity, property string) (any, bool) {
			u, ok := e.(*User)
			if !ok {
				return nil, false
			}
			switch property {
			case "name":
				return u.Name, true
			case "position":
				return u.Pos, true
			case "running":
				return u.Running, true
			default:
				return nil, false
			}
		},
	}
}

// messageModel's sole receiver is a hearing-radius disk around the
// speaker, resolved fresh from the spatial manager for every change set
// rather than cached: a message never moves, but the audience (who is
// currently within earshot) is only meaningful at emission time.
func messageModel(sm *spatial.Manager) *syncmodel.ClassModel {
	areaFactory := func(e world.Entity) (syncmodel.Area, error) {
		m, ok := e.(*Message)
		if !ok {
			return nil, nil
		}
		return hearingArea{sm: sm, loc: m.Loc, pos: m.Pos}, nil
	}
	receiver := syncmodel.Receiver{Kind: syncmodel.AreaFactory, Area: areaFactory}
	return &syncmodel.ClassModel{
		ClassName: "message",
		Fields: map[string]syncmodel.FieldDecl{
			"text":     {Entries: []syncmodel.Entry{{Receiver: receiver}}},
			"userName": {Entries: []syncmodel.Entry{{Receiver: receiver, As: "user"}}},
			"deleteIn": {Entries: []syncmodel.Entry{{Receiver: receiver}}},
		},
		Get: func(e world.Entity, property string) (any, bool) {
			m, ok := e.(*Message)
			if !ok {
				return nil, false
			}
			switch property {
			case "text":
				return m.Text, true
			case "userName":
				return m.UserName, true
			case "deleteIn":
				return m.DeleteInMs(time.Now()), true
			default:
				return nil, false
			}
		},
	}
}

// hearingArea is the Area a message's sync entries resolve through: every
// user entity in the 3x3 zone window around the speaker, filtered to
// those actually within HearingRadius tiles.
type hearingArea struct {
	sm  *spatial.Manager
	loc int64
	pos world.Vector2
}

func (h hearingArea) Users() []int64 {
	zone := h.sm.ZoneAt(h.loc, h.pos)
	entities := zone.GetEntities()["user"]
	out := make([]int64, 0, len(entities))
	for id, sp := range entities {
		if sp.Position().Distance(h.pos) <= HearingRadius {
			out = append(out, id)
		}
	}
	return out
}
