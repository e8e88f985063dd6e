package gateway

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoRunner executes scoped operations against a mongo database.
type MongoRunner struct {
	db *mongo.Database
}

func NewMongoRunner(db *mongo.Database) *MongoRunner {
	return &MongoRunner{db: db}
}

func (r *MongoRunner) Find(ctx context.Context, collection string, filter bson.M, opts FindOptions) ([]bson.M, error) {
	findOpts := options.Find()
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if len(opts.Projection) > 0 {
		findOpts.SetProjection(bson.M(opts.Projection))
	}
	if len(opts.Sort) > 0 {
		findOpts.SetSort(bson.M(opts.Sort))
	}

	cursor, err := r.db.Collection(collection).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *MongoRunner) FindOne(ctx context.Context, collection string, filter bson.M, projection map[string]interface{}) (bson.M, error) {
	opts := options.FindOne()
	if len(projection) > 0 {
		opts.SetProjection(bson.M(projection))
	}
	var doc bson.M
	err := r.db.Collection(collection).FindOne(ctx, filter, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *MongoRunner) Count(ctx context.Context, collection string, filter bson.M) (int64, error) {
	return r.db.Collection(collection).CountDocuments(ctx, filter)
}

func (r *MongoRunner) Aggregate(ctx context.Context, collection string, pipeline []bson.M) ([]bson.M, error) {
	cursor, err := r.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *MongoRunner) Distinct(ctx context.Context, collection string, field string, filter bson.M) ([]interface{}, error) {
	var values []interface{}
	if err := r.db.Collection(collection).Distinct(ctx, field, filter).Decode(&values); err != nil {
		return nil, err
	}
	return values, nil
}
