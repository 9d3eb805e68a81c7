// Package registry implements the entity registry: canonical-instance
// guarantees over the identity cache, hydration-in-place, and the
// Create/Get/Remove/Flush lifecycle each persistent class goes through.
package registry

import "tileworld.dev/server/world"

// VectorColumns flattens a Vector2-valued property into its storage
// columns. The property named "position" is the one documented special
// case: it flattens to bare "x"/"y" instead of "position_x"/"position_y".
func VectorColumns(property string, v world.Vector2) map[string]any {
	if property == "position" {
		return map[string]any{"x": v.X, "y": v.Y}
	}
	return map[string]any{property + "_x": v.X, property + "_y": v.Y}
}

// ReferenceColumn returns the foreign-key column name for a reference
// property.
func ReferenceColumn(name string) string {
	return name + "_id"
}
