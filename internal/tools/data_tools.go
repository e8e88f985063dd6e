package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/akashmahlaz/rockreach-sub000/internal/export"
	"github.com/akashmahlaz/rockreach-sub000/internal/gateway"
	"github.com/akashmahlaz/rockreach-sub000/internal/leads"
	"github.com/akashmahlaz/rockreach-sub000/internal/notify"
)

// QueryExecutor runs tenant-scoped structured queries.
type QueryExecutor interface {
	Execute(ctx context.Context, tenantID, userID string, q gateway.Query) (gateway.Result, error)
}

// LeadStore persists and aggregates the tenant's saved leads.
type LeadStore interface {
	UpsertMany(ctx context.Context, tenantID string, batch []leads.Lead) leads.SaveOutcome
	StatusCounts(ctx context.Context, tenantID string) (map[string]int64, error)
}

// ArtifactStore materializes downloadable exports.
type ArtifactStore interface {
	Put(ctx context.Context, tenantID, filename string, data []byte) (string, error)
}

type queryDataInput struct {
	Collection string                   `json:"collection" validate:"required"`
	Operation  string                   `json:"operation" validate:"required,oneof=find findOne count aggregate distinct"`
	Filter     map[string]interface{}   `json:"filter"`
	Projection map[string]interface{}   `json:"projection"`
	Sort       map[string]interface{}   `json:"sort"`
	Limit      int64                    `json:"limit" validate:"omitempty,min=1"`
	Skip       int64                    `json:"skip" validate:"omitempty,min=0"`
	Field      string                   `json:"field"`
	Pipeline   []map[string]interface{} `json:"pipeline"`
}

type saveLeadsInput struct {
	Leads []leads.Lead `json:"leads" validate:"required,min=1"`
}

type exportLeadsInput struct {
	Filter   map[string]interface{} `json:"filter"`
	Filename string                 `json:"filename"`
}

type sendMessageInput struct {
	To      string `json:"to" validate:"required"`
	Subject string `json:"subject" validate:"required"`
	Body    string `json:"body" validate:"required"`
}

// RegisterDataTools wires persistence, ad-hoc query, analytics, export and
// outbound messaging capabilities.
func (r *Registry) RegisterDataTools(queries QueryExecutor, store LeadStore, artifacts ArtifactStore, channel notify.Channel) {
	r.register(Tool{
		Name:        "query_data",
		Description: "Run a structured read query (find, findOne, count, aggregate, distinct) against the workspace's own data. Results are always scoped to this workspace.",
		Parameters: toolParams(map[string]interface{}{
			"collection": map[string]interface{}{
				"type":        "string",
				"description": "Collection to query, e.g. leads or campaigns.",
			},
			"operation": map[string]interface{}{
				"type": "string",
				"enum": []string{"find", "findOne", "count", "aggregate", "distinct"},
			},
			"filter": map[string]interface{}{
				"type":        "object",
				"description": "Query filter in document-store syntax.",
			},
			"projection": map[string]interface{}{"type": "object"},
			"sort":       map[string]interface{}{"type": "object"},
			"limit":      map[string]interface{}{"type": "integer"},
			"skip":       map[string]interface{}{"type": "integer"},
			"field": map[string]interface{}{
				"type":        "string",
				"description": "Field name, required for distinct.",
			},
			"pipeline": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "object"},
				"description": "Aggregation stages, required for aggregate.",
			},
		}, []string{"collection", "operation"}),
		run: func(ctx context.Context, inv Invocation, raw json.RawMessage) map[string]interface{} {
			var input queryDataInput
			if envelope := r.decodeInput(raw, &input); envelope != nil {
				return envelope
			}
			result, err := queries.Execute(ctx, inv.TenantID, inv.UserID, gateway.Query{
				Collection: input.Collection,
				Operation:  input.Operation,
				Filter:     input.Filter,
				Projection: input.Projection,
				Sort:       input.Sort,
				Limit:      input.Limit,
				Skip:       input.Skip,
				Field:      input.Field,
				Pipeline:   input.Pipeline,
			})
			if err != nil {
				return failure(err.Error())
			}
			return success(map[string]interface{}{"result": result})
		},
	})

	r.register(Tool{
		Name:        "save_leads",
		Description: "Save a batch of leads to the workspace. Saves are idempotent per provider id; partial failures are reported, not fatal.",
		Parameters: toolParams(map[string]interface{}{
			"leads": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "object"},
				"description": "Leads to save. Each needs the provider-assigned external_id.",
			},
		}, []string{"leads"}),
		run: func(ctx context.Context, inv Invocation, raw json.RawMessage) map[string]interface{} {
			var input saveLeadsInput
			if envelope := r.decodeInput(raw, &input); envelope != nil {
				return envelope
			}
			outcome := store.UpsertMany(ctx, inv.TenantID, input.Leads)
			envelope := success(map[string]interface{}{
				"saved":   outcome.Saved,
				"message": fmt.Sprintf("saved %d of %d leads", outcome.Saved, len(input.Leads)),
			})
			if outcome.Failed > 0 {
				envelope["failed"] = outcome.Failed
				envelope["errors"] = outcome.Errors
			}
			return envelope
		},
	})

	r.register(Tool{
		Name:        "get_lead_stats",
		Description: "Get lead totals for this workspace grouped by status.",
		Parameters:  toolParams(map[string]interface{}{}, nil),
		run: func(ctx context.Context, inv Invocation, raw json.RawMessage) map[string]interface{} {
			counts, err := store.StatusCounts(ctx, inv.TenantID)
			if err != nil {
				return failure(err.Error())
			}
			var total int64
			for _, n := range counts {
				total += n
			}
			return success(map[string]interface{}{
				"total":     total,
				"by_status": counts,
			})
		},
	})

	r.register(Tool{
		Name:        "export_leads",
		Description: "Export the workspace's leads matching a filter as a CSV download link. Links expire after 24 hours.",
		Parameters: toolParams(map[string]interface{}{
			"filter": map[string]interface{}{
				"type":        "object",
				"description": "Optional lead filter in document-store syntax.",
			},
			"filename": map[string]interface{}{
				"type":        "string",
				"description": "Download filename (default leads.csv).",
			},
		}, nil),
		run: func(ctx context.Context, inv Invocation, raw json.RawMessage) map[string]interface{} {
			var input exportLeadsInput
			if envelope := r.decodeInput(raw, &input); envelope != nil {
				return envelope
			}
			result, err := queries.Execute(ctx, inv.TenantID, inv.UserID, gateway.Query{
				Collection: gateway.Leads.Name,
				Operation:  "find",
				Filter:     input.Filter,
			})
			if err != nil {
				return failure(err.Error())
			}
			docs := make([]map[string]interface{}, 0, len(result.Documents))
			for _, doc := range result.Documents {
				docs = append(docs, map[string]interface{}(doc))
			}
			data, err := export.EncodeCSV(docs)
			if err != nil {
				return failure(err.Error())
			}
			filename := input.Filename
			if filename == "" {
				filename = "leads.csv"
			}
			url, err := artifacts.Put(ctx, inv.TenantID, filename, data)
			if err != nil {
				return failure(err.Error())
			}
			return success(map[string]interface{}{
				"url":        url,
				"rows":       len(docs),
				"expires_in": "24h",
			})
		},
	})

	r.register(Tool{
		Name:        "send_message",
		Description: "Send an outbound email to a contact through the workspace's configured channel.",
		Parameters: toolParams(map[string]interface{}{
			"to": map[string]interface{}{
				"type":        "string",
				"description": "Recipient email address.",
			},
			"subject": map[string]interface{}{"type": "string"},
			"body": map[string]interface{}{
				"type":        "string",
				"description": "Message body, HTML allowed.",
			},
		}, []string{"to", "subject", "body"}),
		run: func(ctx context.Context, inv Invocation, raw json.RawMessage) map[string]interface{} {
			var input sendMessageInput
			if envelope := r.decodeInput(raw, &input); envelope != nil {
				return envelope
			}
			err := channel.Send(ctx, input.To, input.Subject, input.Body)
			if errors.Is(err, notify.ErrChannelNotConfigured) {
				return failure("no outbound email channel is configured for this workspace; ask an admin to set one up in settings")
			}
			if err != nil {
				return failure(err.Error())
			}
			return success(map[string]interface{}{
				"message": fmt.Sprintf("email sent to %s", input.To),
			})
		},
	})
}
