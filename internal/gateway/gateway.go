package gateway

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/akashmahlaz/rockreach-sub000/pkg/logging"
)

// Hard result cap. Larger limits are clamped, not rejected.
const maxResultDocs = 200

type ErrorCode string

const (
	CodeInvalidArgument   ErrorCode = "invalid_argument"
	CodeUnknownCollection ErrorCode = "unknown_collection"
	CodeOperationFailed   ErrorCode = "operation_failed"
)

// Error is a structured gateway failure. It carries no secret material and is
// safe to hand back to the agent verbatim.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invalidArgument(format string, args ...interface{}) *Error {
	return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// Query is one structured read request against a named collection.
type Query struct {
	Collection string                   `json:"collection"`
	Operation  string                   `json:"operation"`
	Filter     map[string]interface{}   `json:"filter,omitempty"`
	Projection map[string]interface{}   `json:"projection,omitempty"`
	Sort       map[string]interface{}   `json:"sort,omitempty"`
	Limit      int64                    `json:"limit,omitempty"`
	Skip       int64                    `json:"skip,omitempty"`
	Field      string                   `json:"field,omitempty"`
	Pipeline   []map[string]interface{} `json:"pipeline,omitempty"`
}

// Result is the outcome of one query. Exactly one field is populated,
// matching the operation.
type Result struct {
	Documents []bson.M      `json:"documents,omitempty"`
	Document  bson.M        `json:"document,omitempty"`
	Count     *int64        `json:"count,omitempty"`
	Values    []interface{} `json:"values,omitempty"`
}

// FindOptions carries the paging knobs passed through to the store.
type FindOptions struct {
	Projection map[string]interface{}
	Sort       map[string]interface{}
	Limit      int64
	Skip       int64
}

// Runner executes already-scoped operations against the document store.
type Runner interface {
	Find(ctx context.Context, collection string, filter bson.M, opts FindOptions) ([]bson.M, error)
	FindOne(ctx context.Context, collection string, filter bson.M, projection map[string]interface{}) (bson.M, error)
	Count(ctx context.Context, collection string, filter bson.M) (int64, error)
	Aggregate(ctx context.Context, collection string, pipeline []bson.M) ([]bson.M, error)
	Distinct(ctx context.Context, collection string, field string, filter bson.M) ([]interface{}, error)
}

// Gateway validates structured queries and injects tenant/user scoping before
// handing them to the store. Caller-supplied scope keys are always
// overwritten, never trusted.
type Gateway struct {
	runner Runner
	logger logging.Logger
}

func New(runner Runner, logger logging.Logger) *Gateway {
	return &Gateway{runner: runner, logger: logger}
}

func (g *Gateway) Execute(ctx context.Context, tenantID, userID string, q Query) (Result, error) {
	collection, ok := Lookup(q.Collection)
	if !ok {
		return Result{}, &Error{Code: CodeUnknownCollection, Message: fmt.Sprintf("unknown collection %q", q.Collection)}
	}

	switch q.Operation {
	case "find", "findOne", "count", "aggregate", "distinct":
	default:
		return Result{}, invalidArgument("unsupported operation %q", q.Operation)
	}
	if q.Operation == "distinct" && q.Field == "" {
		return Result{}, invalidArgument("distinct requires a field")
	}
	if q.Operation == "aggregate" && len(q.Pipeline) == 0 {
		return Result{}, invalidArgument("aggregate requires a pipeline")
	}

	filter := scopedFilter(collection, tenantID, userID, q.Filter)

	var result Result
	var err error
	switch q.Operation {
	case "find":
		limit := q.Limit
		if limit <= 0 || limit > maxResultDocs {
			limit = maxResultDocs
		}
		var docs []bson.M
		docs, err = g.runner.Find(ctx, collection.Name, filter, FindOptions{
			Projection: q.Projection,
			Sort:       q.Sort,
			Limit:      limit,
			Skip:       q.Skip,
		})
		result.Documents = docs
	case "findOne":
		result.Document, err = g.runner.FindOne(ctx, collection.Name, filter, q.Projection)
	case "count":
		var count int64
		count, err = g.runner.Count(ctx, collection.Name, filter)
		result.Count = &count
	case "aggregate":
		var docs []bson.M
		docs, err = g.runner.Aggregate(ctx, collection.Name, scopedPipeline(collection, tenantID, userID, q.Pipeline))
		if int64(len(docs)) > maxResultDocs {
			docs = docs[:maxResultDocs]
		}
		result.Documents = docs
	case "distinct":
		result.Values, err = g.runner.Distinct(ctx, collection.Name, q.Field, filter)
	}
	if err != nil {
		g.logger.WithFields(logging.Fields{
			"collection": collection.Name,
			"operation":  q.Operation,
			"tenant_id":  tenantID,
			"error":      err,
		}).Warn("Gateway query failed")
		return Result{}, &Error{Code: CodeOperationFailed, Message: err.Error()}
	}
	return result, nil
}

// scopedFilter copies the caller filter and merges the scope predicates on
// top. The merge runs last so a caller-supplied tenant_id never survives.
func scopedFilter(collection Collection, tenantID, userID string, callerFilter map[string]interface{}) bson.M {
	filter := bson.M{}
	for key, value := range callerFilter {
		filter[key] = value
	}
	if collection.Scope == ScopeExempt {
		return filter
	}
	filter["tenant_id"] = tenantID
	if collection.Scope == ScopeTenantUser {
		filter["user_id"] = userID
	}
	return filter
}

func scopedPipeline(collection Collection, tenantID, userID string, callerPipeline []map[string]interface{}) []bson.M {
	pipeline := make([]bson.M, 0, len(callerPipeline)+1)
	if collection.Scope != ScopeExempt {
		match := bson.M{"tenant_id": tenantID}
		if collection.Scope == ScopeTenantUser {
			match["user_id"] = userID
		}
		pipeline = append(pipeline, bson.M{"$match": match})
	}
	for _, stage := range callerPipeline {
		pipeline = append(pipeline, bson.M(stage))
	}
	return pipeline
}
