package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"studio_server/core/domain"
)

// =============================================================================
// MongoDB Project Adapter
// =============================================================================

const collectionProjects = "projects"

// ProjectAdapter implements out.ProjectRepository using MongoDB.
type ProjectAdapter struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewProjectAdapter creates a new MongoDB project adapter.
func NewProjectAdapter(db *mongo.Database) *ProjectAdapter {
	return &ProjectAdapter{
		collection: db.Collection(collectionProjects),
		now:        time.Now,
	}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *ProjectAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

type projectDocument struct {
	ID              primitive.ObjectID    `bson:"_id"`
	UserID          string                `bson:"user_id"`
	Category        string                `bson:"category,omitempty"`
	CompanyName     string                `bson:"company_name,omitempty"`
	LogoURL         string                `bson:"logo_url"`
	BrandIdentity   *domain.BrandIdentity `bson:"brand_identity"`
	GeneratedImages map[string]string     `bson:"generated_images"`
	Progress        int                   `bson:"progress"`
	CreatedAt       time.Time             `bson:"created_at"`
	UpdatedAt       time.Time             `bson:"updated_at"`
}

func toDocument(p *domain.Project, id primitive.ObjectID, now time.Time) *projectDocument {
	created := p.CreatedAt
	if created.IsZero() {
		created = now
	}
	images := make(map[string]string, len(p.GeneratedImages))
	for k, v := range p.GeneratedImages {
		images[k] = v
	}
	return &projectDocument{
		ID:              id,
		UserID:          p.UserID,
		Category:        p.Category,
		CompanyName:     p.CompanyName,
		LogoURL:         p.LogoURL,
		BrandIdentity:   p.BrandIdentity.Clone(),
		GeneratedImages: images,
		Progress:        p.Progress,
		CreatedAt:       created.UTC(),
		UpdatedAt:       now.UTC(),
	}
}

func (d *projectDocument) toDomain() *domain.Project {
	images := d.GeneratedImages
	if images == nil {
		images = map[string]string{}
	}
	return &domain.Project{
		ID:              d.ID.Hex(),
		UserID:          d.UserID,
		Category:        d.Category,
		CompanyName:     d.CompanyName,
		LogoURL:         d.LogoURL,
		BrandIdentity:   d.BrandIdentity,
		GeneratedImages: images,
		Progress:        d.Progress,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

// patchUpdate builds the merge update: new keys are $set one by one and progress uses $max,
// so replays and out-of-order writes never drop keys or move progress backwards.
func patchUpdate(patch domain.ProjectPatch, now time.Time) bson.M {
	set := bson.M{"updated_at": now.UTC()}
	for k, v := range patch.GeneratedImages {
		set["generated_images."+k] = v
	}
	update := bson.M{"$set": set}
	if patch.Progress > 0 {
		update["$max"] = bson.M{"progress": patch.Progress}
	}
	return update
}

// =============================================================================
// Operations
// =============================================================================

// CreateProject inserts p and returns the generated id.
func (a *ProjectAdapter) CreateProject(ctx context.Context, p *domain.Project) (string, error) {
	id := primitive.NewObjectID()
	if _, err := a.collection.InsertOne(ctx, toDocument(p, id, a.now())); err != nil {
		return "", fmt.Errorf("failed to insert project: %w", err)
	}
	return id.Hex(), nil
}

// UpdateProject merges patch into the project.
func (a *ProjectAdapter) UpdateProject(ctx context.Context, id string, patch domain.ProjectPatch) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrProjectNotFound
	}

	res, err := a.collection.UpdateByID(ctx, oid, patchUpdate(patch, a.now()))
	if err != nil {
		return fmt.Errorf("failed to update project %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrProjectNotFound
	}
	return nil
}

// GetProject returns nil, nil when the project does not exist.
func (a *ProjectAdapter) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}

	var doc projectDocument
	if err := a.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return doc.toDomain(), nil
}

// ListUserProjects returns the user's projects, newest first.
func (a *ProjectAdapter) ListUserProjects(ctx context.Context, userID string, limit int) ([]*domain.Project, error) {
	if limit <= 0 {
		limit = 10
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := a.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []projectDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode projects: %w", err)
	}

	projects := make([]*domain.Project, 0, len(docs))
	for i := range docs {
		projects = append(projects, docs[i].toDomain())
	}
	return projects, nil
}

func (a *ProjectAdapter) CountUserProjects(ctx context.Context, userID string) (int64, error) {
	n, err := a.collection.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("failed to count user projects: %w", err)
	}
	return n, nil
}

func (a *ProjectAdapter) CountAllProjects(ctx context.Context) (int64, error) {
	n, err := a.collection.EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count projects: %w", err)
	}
	return n, nil
}
