package mongodb

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"studio_server/core/domain"
)

func TestPatchUpdate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	update := patchUpdate(domain.ProjectPatch{
		GeneratedImages: map[string]string{"logoLight": "https://cdn/a.png"},
		Progress:        29,
	}, now)

	set, ok := update["$set"].(bson.M)
	if !ok {
		t.Fatalf("$set missing: %v", update)
	}
	if set["generated_images.logoLight"] != "https://cdn/a.png" {
		t.Errorf("$set = %v", set)
	}
	if set["updated_at"] != now {
		t.Errorf("updated_at = %v", set["updated_at"])
	}
	if _, replaced := set["generated_images"]; replaced {
		t.Error("the whole map must never be replaced")
	}

	mx, ok := update["$max"].(bson.M)
	if !ok || mx["progress"] != 29 {
		t.Errorf("$max = %v", update["$max"])
	}
}

func TestPatchUpdate_ProgressOnly(t *testing.T) {
	update := patchUpdate(domain.ProjectPatch{Progress: 100}, time.Now())
	set := update["$set"].(bson.M)
	if len(set) != 1 {
		t.Errorf("$set = %v, want only updated_at", set)
	}

	if _, ok := patchUpdate(domain.ProjectPatch{}, time.Now())["$max"]; ok {
		t.Error("zero progress must not emit $max")
	}
}

func TestProjectDocumentRoundTrip(t *testing.T) {
	id := primitive.NewObjectID()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &domain.Project{
		UserID:        "u1",
		Category:      "Art & Design",
		LogoURL:       "https://cdn/logo.png",
		BrandIdentity: &domain.BrandIdentity{BrandColors: domain.BrandColors{Primary: "#112233"}},
		Progress:      20,
	}

	doc := toDocument(p, id, now)
	if !doc.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want now for a zero value", doc.CreatedAt)
	}
	if doc.GeneratedImages == nil {
		t.Error("generated_images must be stored as an empty map")
	}

	raw, err := bson.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	var back projectDocument
	if err := bson.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}

	got := back.toDomain()
	if got.ID != id.Hex() || got.UserID != "u1" || got.Progress != 20 {
		t.Errorf("project = %+v", got)
	}
	if got.BrandIdentity.BrandColors.Primary != "#112233" {
		t.Errorf("identity = %+v", got.BrandIdentity)
	}
	if got.GeneratedImages == nil {
		t.Error("GeneratedImages must not be nil")
	}
}
