package leads

import (
	"context"
	"testing"

	"github.com/akashmahlaz/rockreach-sub000/pkg/logging"
)

func TestUpsertManyRejectsMissingExternalID(t *testing.T) {
	// Leads without a provider id never reach the store, so a nil collection
	// is safe here.
	store := &Store{logger: logging.NewLogger()}

	outcome := store.UpsertMany(context.Background(), "t1", []Lead{
		{Name: "No ID"},
		{Name: "Also no ID"},
	})
	if outcome.Saved != 0 || outcome.Failed != 2 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if len(outcome.Errors) != 2 {
		t.Fatalf("expected per-item errors, got %v", outcome.Errors)
	}
}
