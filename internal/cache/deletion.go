package cache

import (
	"context"
	"maps"
	"slices"

	"github.com/plandesk/plandesk/internal/cache/merge"
	"github.com/rs/zerolog/log"
)

// DeleteEntity removes every cached reference to the entity with the given id
// after the API confirmed its deletion. List slots lose the matching elements
// and single-entity slots holding the entity are removed. Ids are compared as
// strings, so "7" matches both 7 and "7".
//
// All changes are applied in one merge and one store write. It returns the
// endpoint keys that changed, which is empty when nothing referenced the
// entity.
func (c *Cache) DeleteEntity(ctx context.Context, id string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot, err := c.read(ctx)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}
	for key, value := range snapshot {
		switch v := value.(type) {
		case []any:
			filtered := slices.DeleteFunc(slices.Clone(v), func(item any) bool {
				return hasID(item, id)
			})
			if len(filtered) != len(v) {
				changes[key] = merge.Replacement{Value: filtered}
			}
		case map[string]any:
			if hasID(v, id) {
				changes[key] = merge.Removal{}
			}
		}
	}

	if len(changes) == 0 {
		return nil, nil
	}

	if err := c.write(ctx, merge.Merge(snapshot, changes)); err != nil {
		return nil, err
	}

	changed := slices.Sorted(maps.Keys(changes))
	log.Ctx(ctx).Info().
		Str("id", id).
		Strs("keys", changed).
		Msg("cache: deleted entity propagated")

	return changed, nil
}

func hasID(item any, id string) bool {
	obj, ok := item.(map[string]any)
	if !ok {
		return false
	}
	raw, ok := obj["id"]
	if !ok {
		return false
	}
	s, ok := merge.IDString(raw)
	return ok && s == id
}
