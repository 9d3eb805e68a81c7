package spatial

import "tileworld.dev/server/world"

// Zone is the 3x3 window of subzones centered on a point: the unit of
// visibility. It is never cached — it is a transient view over its nine
// subzones, reconstructed on demand.
type Zone struct {
	Center Coord
	get    func(Coord) *Subzone
}

// NewZone builds a zone window centered on center. get resolves (and, if
// necessary, lazily constructs) the subzone at a given coordinate — in
// practice Manager.Get.
func NewZone(center Coord, get func(Coord) *Subzone) *Zone {
	return &Zone{Center: center, get: get}
}

// GetSubzones returns the nine member subzones, lazily constructed.
func (z *Zone) GetSubzones() []*Subzone {
	out := make([]*Subzone, 0, 9)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			c := Coord{Location: z.Center.Location, ZX: z.Center.ZX + dx, ZY: z.Center.ZY + dy}
			out = append(out, z.get(c))
		}
	}
	return out
}

// GetEntities returns the union, per class, of every member subzone's
// entities.
func (z *Zone) GetEntities() map[string]map[int64]Spatial {
	out := make(map[string]map[int64]Spatial)
	for _, sz := range z.GetSubzones() {
		for class, ents := range sz.AllEntities() {
			m := out[class]
			if m == nil {
				m = make(map[int64]Spatial)
				out[class] = m
			}
			for id, e := range ents {
				m[id] = e
			}
		}
	}
	return out
}

// Enter delegates to every member subzone whose rectangle intersects any
// cell of e's footprint.
func (z *Zone) Enter(e Spatial) {
	for _, sz := range z.GetSubzones() {
		if intersects(sz, e) {
			sz.Enter(e)
		}
	}
}

// Leave is the Enter counterpart.
func (z *Zone) Leave(e Spatial) {
	for _, sz := range z.GetSubzones() {
		if intersects(sz, e) {
			sz.Leave(e)
		}
	}
}

func intersects(sz *Subzone, e Spatial) bool {
	for _, p := range e.Footprint() {
		if sz.IsInside(p) {
			return true
		}
	}
	return false
}

// DifferenceOf partitions the union of the nine-subzone windows of oldZone
// and newZone into (new, left, remaining): subzones only in newZone,
// subzones only in oldZone, and subzones in both. Every subzone in the
// union appears in exactly one of the three sets.
func DifferenceOf(newZone, oldZone *Zone) (newSubzones, leftSubzones, remainingSubzones []*Subzone) {
	newSet := make(map[Coord]*Subzone)
	for _, sz := range newZone.GetSubzones() {
		newSet[sz.Coord] = sz
	}
	oldSet := make(map[Coord]*Subzone)
	for _, sz := range oldZone.GetSubzones() {
		oldSet[sz.Coord] = sz
	}

	for coord, sz := range newSet {
		if _, inOld := oldSet[coord]; inOld {
			remainingSubzones = append(remainingSubzones, sz)
		} else {
			newSubzones = append(newSubzones, sz)
		}
	}
	for coord, sz := range oldSet {
		if _, inNew := newSet[coord]; !inNew {
			leftSubzones = append(leftSubzones, sz)
		}
	}
	return
}

// ZoneCoordFor computes the subzone coordinate containing pos — the center
// of the 3x3 zone window an entity at pos belongs to.
func ZoneCoordFor(location int64, pos world.Vector2, sizeX, sizeY int) Coord {
	return Coord{
		Location: location,
		ZX:       floorDiv(pos.X, sizeX),
		ZY:       floorDiv(pos.Y, sizeY),
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
