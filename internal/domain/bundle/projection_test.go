package bundle

import (
	"testing"

	"github.com/canopyhq/canopy/internal/domain/entitytype"
)

func projType() *entitytype.EntityType {
	return &entitytype.EntityType{
		Slug:      "programs",
		VisibleTo: []string{"public", "platform"},
		FieldVisibility: map[string][]string{
			"budget":  {"member-gold"},
			"contact": {"platform", "member-gold"},
		},
	}
}

func TestProjectFieldsForKeyTypeLevel(t *testing.T) {
	data := map[string]any{"title": "A", "budget": 100, "contact": "x@y.z"}

	got := ProjectFieldsForKey(projType(), data, "public")
	if _, ok := got["title"]; !ok {
		t.Fatal("field without explicit visibility follows type-level VisibleTo")
	}
	if _, ok := got["budget"]; ok {
		t.Fatal("budget is restricted to member-gold")
	}
	if _, ok := got["contact"]; ok {
		t.Fatal("contact is restricted to platform and member-gold")
	}
}

func TestProjectFieldsForKeyExplicit(t *testing.T) {
	data := map[string]any{"title": "A", "budget": 100, "contact": "x@y.z"}

	got := ProjectFieldsForKey(projType(), data, "platform")
	if _, ok := got["contact"]; !ok {
		t.Fatal("explicit visibility list containing the key admits the field")
	}
	if _, ok := got["budget"]; ok {
		t.Fatal("budget excludes platform")
	}
}

func TestProjectFieldsForKeyOutsideVisibleTo(t *testing.T) {
	// member-gold is not in the type's VisibleTo, so only fields whose
	// explicit list names it survive.
	data := map[string]any{"title": "A", "budget": 100, "contact": "x@y.z"}

	got := ProjectFieldsForKey(projType(), data, "member-gold")
	if len(got) != 2 {
		t.Fatalf("expected budget and contact only, got %v", got)
	}
	if _, ok := got["title"]; ok {
		t.Fatal("unlisted fields are invisible to keys outside VisibleTo")
	}
}

func TestProjectFieldsForKeyNoRestrictionMap(t *testing.T) {
	typ := &entitytype.EntityType{VisibleTo: []string{"public"}}
	data := map[string]any{"a": 1, "b": 2}

	got := ProjectFieldsForKey(typ, data, "public")
	if len(got) != 2 {
		t.Fatal("absent FieldVisibility means all fields visible")
	}
}
