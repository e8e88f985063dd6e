package leads

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/akashmahlaz/rockreach-sub000/pkg/logging"
)

// Lead is one saved contact, keyed by the provider-assigned external id so
// repeat saves stay idempotent.
type Lead struct {
	ExternalID string                 `bson:"external_id" json:"external_id"`
	TenantID   string                 `bson:"tenant_id" json:"tenant_id"`
	Name       string                 `bson:"name,omitempty" json:"name,omitempty"`
	Title      string                 `bson:"title,omitempty" json:"title,omitempty"`
	Company    string                 `bson:"company,omitempty" json:"company,omitempty"`
	Email      string                 `bson:"email,omitempty" json:"email,omitempty"`
	Phone      string                 `bson:"phone,omitempty" json:"phone,omitempty"`
	LinkedIn   string                 `bson:"linkedin_url,omitempty" json:"linkedin_url,omitempty"`
	Status     string                 `bson:"status,omitempty" json:"status,omitempty"`
	Raw        map[string]interface{} `bson:"raw,omitempty" json:"raw,omitempty"`
	UpdatedAt  time.Time              `bson:"updated_at" json:"updated_at"`
}

// SaveOutcome reports a partial batch result.
type SaveOutcome struct {
	Saved  int      `json:"saved"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors,omitempty"`
}

type Store struct {
	collection *mongo.Collection
	logger     logging.Logger
}

func NewStore(db *mongo.Database, logger logging.Logger) *Store {
	return &Store{collection: db.Collection("leads"), logger: logger}
}

// Upsert writes one lead keyed by (tenant, external id). Safe under
// concurrent retries.
func (s *Store) Upsert(ctx context.Context, tenantID string, lead Lead) error {
	lead.TenantID = tenantID
	lead.UpdatedAt = time.Now()

	_, err := s.collection.UpdateOne(ctx,
		bson.M{"tenant_id": tenantID, "external_id": lead.ExternalID},
		bson.M{"$set": lead},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

// UpsertMany saves a batch and reports per-item failures instead of aborting
// the batch.
func (s *Store) UpsertMany(ctx context.Context, tenantID string, batch []Lead) SaveOutcome {
	outcome := SaveOutcome{}
	for _, lead := range batch {
		if lead.ExternalID == "" {
			outcome.Failed++
			outcome.Errors = append(outcome.Errors, "lead missing external id")
			continue
		}
		if err := s.Upsert(ctx, tenantID, lead); err != nil {
			outcome.Failed++
			outcome.Errors = append(outcome.Errors, err.Error())
			s.logger.WithFields(logging.Fields{
				"tenant_id":   tenantID,
				"external_id": lead.ExternalID,
				"error":       err,
			}).Warn("Failed to save lead")
			continue
		}
		outcome.Saved++
	}
	return outcome
}

// StatusCounts returns lead totals grouped by status for one tenant.
func (s *Store) StatusCounts(ctx context.Context, tenantID string) (map[string]int64, error) {
	cursor, err := s.collection.Aggregate(ctx, []bson.M{
		{"$match": bson.M{"tenant_id": tenantID}},
		{"$group": bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		status := row.Status
		if status == "" {
			status = "new"
		}
		counts[status] = row.Count
	}
	return counts, nil
}
