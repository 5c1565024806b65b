package membership

import "testing"

func testKeys() *Keys {
	return NewKeys([]Key{
		{ID: "platform", Name: "Platform", Order: 1},
		{ID: "member-silver", Name: "Silver", Order: 2},
		{ID: "member-gold", Name: "Gold", Order: 3},
	})
}

func TestNewKeysSynthesizesPublic(t *testing.T) {
	ks := testKeys()
	pub, ok := ks.Get(PublicKeyID)
	if !ok {
		t.Fatal("public key must be synthesized when absent from configuration")
	}
	if pub.Order != 0 {
		t.Fatalf("public key must sit at order 0, got %d", pub.Order)
	}
	if all := ks.All(); all[0].ID != PublicKeyID {
		t.Fatalf("expected public first in order, got %s", all[0].ID)
	}
}

func TestNewKeysKeepsConfiguredPublic(t *testing.T) {
	ks := NewKeys([]Key{{ID: PublicKeyID, Name: "Anyone", Order: 0}})
	pub, _ := ks.Get(PublicKeyID)
	if pub.Name != "Anyone" {
		t.Fatalf("configured public key was replaced: %+v", pub)
	}
}

func TestGranted(t *testing.T) {
	ks := testKeys()
	got, err := ks.Granted("member-silver")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"public", "platform", "member-silver"}
	if len(got) != len(want) {
		t.Fatalf("Granted = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Granted = %v, want %v", got, want)
		}
	}

	if _, err := ks.Granted("nope"); err == nil {
		t.Fatal("expected error for unknown tier key")
	}
}

func TestAdmits(t *testing.T) {
	ks := testKeys()
	cases := []struct {
		tier, content string
		want          bool
	}{
		{"member-gold", "public", true},
		{"member-gold", "member-silver", true},
		{"platform", "member-silver", false},
		{"public", "platform", false},
		{"public", "public", true},
		{"unknown", "public", false},
		{"platform", "unknown", false},
	}
	for _, c := range cases {
		if got := ks.Admits(c.tier, c.content); got != c.want {
			t.Errorf("Admits(%s, %s) = %v, want %v", c.tier, c.content, got, c.want)
		}
	}
}
