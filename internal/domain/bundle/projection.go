package bundle

import (
	"github.com/canopyhq/canopy/internal/domain/entity"
	"github.com/canopyhq/canopy/internal/domain/entitytype"
)

// ProjectFieldsForKey filters an entity's dynamic data to the fields
// visible to audience key for the given type.
//
// A field is visible when its explicit visibility list contains the key,
// or when it has no explicit visibility entry and the type-level VisibleTo
// list contains the key. An absent FieldVisibility map therefore means no
// field-level restriction at all.
func ProjectFieldsForKey(t *entitytype.EntityType, data map[string]any, key string) map[string]any {
	typeVisible := t.VisibleToKey(key)
	out := make(map[string]any)
	for id, value := range data {
		keys, restricted := t.FieldVisibility[id]
		if restricted {
			if containsKey(keys, key) {
				out[id] = value
			}
			continue
		}
		if typeVisible {
			out[id] = value
		}
	}
	return out
}

// EntryForKey builds a bundle entry carrying only the fields visible to
// the audience key.
func EntryForKey(t *entitytype.EntityType, e *entity.Entity, key string) Entry {
	return newEntry(e, ProjectFieldsForKey(t, e.Data, key))
}

// EntryAllFields builds an unprojected bundle entry. Used for organization
// member/admin bundles, where membership already scopes the audience.
func EntryAllFields(e *entity.Entity) Entry {
	data := make(map[string]any, len(e.Data))
	for k, v := range e.Data {
		data[k] = v
	}
	return newEntry(e, data)
}

func newEntry(e *entity.Entity, data map[string]any) Entry {
	return Entry{
		ID:             e.ID,
		OrganizationID: e.OrganizationID,
		Version:        e.Version,
		Status:         e.Status,
		Name:           e.Name,
		Slug:           e.Slug,
		Data:           data,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
