package gateway

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/akashmahlaz/rockreach-sub000/pkg/logging"
)

type recordedCall struct {
	collection string
	filter     bson.M
	pipeline   []bson.M
	field      string
	opts       FindOptions
}

type fakeRunner struct {
	calls []recordedCall
	docs  []bson.M
	err   error
}

func (f *fakeRunner) Find(ctx context.Context, collection string, filter bson.M, opts FindOptions) ([]bson.M, error) {
	f.calls = append(f.calls, recordedCall{collection: collection, filter: filter, opts: opts})
	return f.docs, f.err
}

func (f *fakeRunner) FindOne(ctx context.Context, collection string, filter bson.M, projection map[string]interface{}) (bson.M, error) {
	f.calls = append(f.calls, recordedCall{collection: collection, filter: filter})
	if len(f.docs) > 0 {
		return f.docs[0], f.err
	}
	return nil, f.err
}

func (f *fakeRunner) Count(ctx context.Context, collection string, filter bson.M) (int64, error) {
	f.calls = append(f.calls, recordedCall{collection: collection, filter: filter})
	return int64(len(f.docs)), f.err
}

func (f *fakeRunner) Aggregate(ctx context.Context, collection string, pipeline []bson.M) ([]bson.M, error) {
	f.calls = append(f.calls, recordedCall{collection: collection, pipeline: pipeline})
	return f.docs, f.err
}

func (f *fakeRunner) Distinct(ctx context.Context, collection string, field string, filter bson.M) ([]interface{}, error) {
	f.calls = append(f.calls, recordedCall{collection: collection, filter: filter, field: field})
	return nil, f.err
}

func newTestGateway(runner *fakeRunner) *Gateway {
	return New(runner, logging.NewLogger())
}

func TestExecuteInjectsTenantFilter(t *testing.T) {
	runner := &fakeRunner{}
	gw := newTestGateway(runner)

	_, err := gw.Execute(context.Background(), "tenant-a", "u1", Query{
		Collection: "leads",
		Operation:  "find",
		Filter:     map[string]interface{}{"company": "Acme"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	got := runner.calls[0].filter
	if got["tenant_id"] != "tenant-a" {
		t.Fatalf("expected tenant filter, got %v", got)
	}
	if got["company"] != "Acme" {
		t.Fatalf("caller filter must be preserved, got %v", got)
	}
}

func TestExecuteTenantFilterOverridesCaller(t *testing.T) {
	runner := &fakeRunner{}
	gw := newTestGateway(runner)

	_, err := gw.Execute(context.Background(), "tenant-a", "", Query{
		Collection: "leads",
		Operation:  "find",
		Filter:     map[string]interface{}{"tenant_id": "tenant-b"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := runner.calls[0].filter["tenant_id"]; got != "tenant-a" {
		t.Fatalf("caller must not override tenant scope, got %v", got)
	}
}

func TestExecuteUserScopedCollections(t *testing.T) {
	runner := &fakeRunner{}
	gw := newTestGateway(runner)

	_, err := gw.Execute(context.Background(), "tenant-a", "user-1", Query{
		Collection: "conversations",
		Operation:  "count",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	filter := runner.calls[0].filter
	if filter["tenant_id"] != "tenant-a" || filter["user_id"] != "user-1" {
		t.Fatalf("expected tenant and user scope, got %v", filter)
	}
}

func TestExecuteExemptCollections(t *testing.T) {
	runner := &fakeRunner{}
	gw := newTestGateway(runner)

	_, err := gw.Execute(context.Background(), "tenant-a", "", Query{
		Collection: "users",
		Operation:  "find",
		Filter:     map[string]interface{}{"email": "x@example.com"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, ok := runner.calls[0].filter["tenant_id"]; ok {
		t.Fatalf("system collections must not be tenant scoped")
	}
}

func TestExecuteAggregatePrependsMatch(t *testing.T) {
	runner := &fakeRunner{}
	gw := newTestGateway(runner)

	_, err := gw.Execute(context.Background(), "tenant-a", "", Query{
		Collection: "leads",
		Operation:  "aggregate",
		Pipeline: []map[string]interface{}{
			{"$group": map[string]interface{}{"_id": "$status", "n": map[string]interface{}{"$sum": 1}}},
		},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	pipeline := runner.calls[0].pipeline
	if len(pipeline) != 2 {
		t.Fatalf("expected match stage prepended, got %d stages", len(pipeline))
	}
	match, ok := pipeline[0]["$match"].(bson.M)
	if !ok || match["tenant_id"] != "tenant-a" {
		t.Fatalf("expected tenant match first, got %v", pipeline[0])
	}
}

func TestExecuteLimitClamped(t *testing.T) {
	runner := &fakeRunner{}
	gw := newTestGateway(runner)

	for _, limit := range []int64{0, 5000} {
		runner.calls = nil
		_, err := gw.Execute(context.Background(), "tenant-a", "", Query{
			Collection: "leads",
			Operation:  "find",
			Limit:      limit,
		})
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if got := runner.calls[0].opts.Limit; got != maxResultDocs {
			t.Fatalf("limit %d should clamp to %d, got %d", limit, maxResultDocs, got)
		}
	}
}

func TestExecuteValidation(t *testing.T) {
	tests := []struct {
		name string
		q    Query
		code ErrorCode
	}{
		{"unknown collection", Query{Collection: "secrets", Operation: "find"}, CodeUnknownCollection},
		{"unsupported operation", Query{Collection: "leads", Operation: "deleteMany"}, CodeInvalidArgument},
		{"distinct without field", Query{Collection: "leads", Operation: "distinct"}, CodeInvalidArgument},
		{"aggregate without pipeline", Query{Collection: "leads", Operation: "aggregate"}, CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			gw := newTestGateway(runner)

			_, err := gw.Execute(context.Background(), "tenant-a", "", tt.q)
			var gwErr *Error
			if !errors.As(err, &gwErr) || gwErr.Code != tt.code {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
			if len(runner.calls) != 0 {
				t.Fatalf("rejected query must not reach the store")
			}
		})
	}
}

func TestExecuteOperationFailed(t *testing.T) {
	runner := &fakeRunner{err: errors.New("socket closed")}
	gw := newTestGateway(runner)

	_, err := gw.Execute(context.Background(), "tenant-a", "", Query{
		Collection: "leads",
		Operation:  "find",
	})
	var gwErr *Error
	if !errors.As(err, &gwErr) || gwErr.Code != CodeOperationFailed {
		t.Fatalf("expected operation_failed, got %v", err)
	}
}

func TestTenantIsolationScenario(t *testing.T) {
	// Two tenants query for the same company name; each executed filter must
	// pin its own tenant id.
	runner := &fakeRunner{}
	gw := newTestGateway(runner)

	for _, tenant := range []string{"tenant-a", "tenant-b"} {
		_, err := gw.Execute(context.Background(), tenant, "", Query{
			Collection: "leads",
			Operation:  "find",
			Filter:     map[string]interface{}{"company": "Acme"},
		})
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
	}
	if runner.calls[0].filter["tenant_id"] == runner.calls[1].filter["tenant_id"] {
		t.Fatalf("tenant scopes must differ per caller")
	}
}
