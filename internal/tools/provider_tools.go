package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/akashmahlaz/rockreach-sub000/internal/provider"
)

// Bulk enrichment fans out to the external provider, so batches are capped.
const maxBulkEnrich = 25

// ProviderCaller issues outbound calls to the contact-data provider.
type ProviderCaller interface {
	Call(ctx context.Context, tenantID, userID, path, method string, query map[string]string, body interface{}) (json.RawMessage, error)
}

type searchLeadsInput struct {
	Query    string `json:"query" validate:"required"`
	Title    string `json:"title"`
	Company  string `json:"company"`
	Location string `json:"location"`
	Limit    int    `json:"limit" validate:"omitempty,min=1,max=100"`
}

type enrichLeadInput struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Company     string `json:"company"`
	LinkedInURL string `json:"linkedin_url"`
}

type bulkEnrichInput struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

// RegisterProviderTools wires the search and enrichment capabilities backed
// by the external data provider.
func (r *Registry) RegisterProviderTools(client ProviderCaller) {
	r.register(Tool{
		Name:        "search_leads",
		Description: "Search the contact-data provider for people matching a free-text query with optional title, company and location filters.",
		Parameters: toolParams(map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Free-text search, e.g. a role or skill.",
			},
			"title": map[string]interface{}{
				"type":        "string",
				"description": "Current job title filter.",
			},
			"company": map[string]interface{}{
				"type":        "string",
				"description": "Current employer filter.",
			},
			"location": map[string]interface{}{
				"type":        "string",
				"description": "Location filter, e.g. a city or country.",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of results (default 10, max 100).",
			},
		}, []string{"query"}),
		run: func(ctx context.Context, inv Invocation, raw json.RawMessage) map[string]interface{} {
			var input searchLeadsInput
			if envelope := r.decodeInput(raw, &input); envelope != nil {
				return envelope
			}
			limit := input.Limit
			if limit == 0 {
				limit = 10
			}
			body := map[string]interface{}{
				"query": map[string]string{
					"keyword":          input.Query,
					"current_title":    input.Title,
					"current_employer": input.Company,
					"location":         input.Location,
				},
				"page_size": limit,
			}
			result, err := client.Call(ctx, inv.TenantID, inv.UserID, "/api/search", http.MethodPost, nil, body)
			if err != nil {
				return providerFailure(err)
			}
			return success(map[string]interface{}{"results": result})
		},
	})

	r.register(Tool{
		Name:        "enrich_lead",
		Description: "Look up full contact details for one person by provider id, name and company, or LinkedIn URL.",
		Parameters: toolParams(map[string]interface{}{
			"id": map[string]interface{}{
				"type":        "string",
				"description": "Provider-assigned person id.",
			},
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Full name, combined with company.",
			},
			"company": map[string]interface{}{
				"type":        "string",
				"description": "Current employer, combined with name.",
			},
			"linkedin_url": map[string]interface{}{
				"type":        "string",
				"description": "LinkedIn profile URL.",
			},
		}, nil),
		run: func(ctx context.Context, inv Invocation, raw json.RawMessage) map[string]interface{} {
			var input enrichLeadInput
			if envelope := r.decodeInput(raw, &input); envelope != nil {
				return envelope
			}
			if input.ID == "" && input.Name == "" && input.LinkedInURL == "" {
				return failure("enrich_lead needs an id, a name, or a linkedin_url")
			}
			query := map[string]string{
				"id":               input.ID,
				"name":             input.Name,
				"current_employer": input.Company,
				"linkedin_url":     input.LinkedInURL,
			}
			result, err := client.Call(ctx, inv.TenantID, inv.UserID, "/api/person/lookup", http.MethodGet, query, nil)
			if err != nil {
				return providerFailure(err)
			}
			return success(map[string]interface{}{"person": result})
		},
	})

	r.register(Tool{
		Name:        "bulk_enrich",
		Description: "Look up contact details for up to " + strconv.Itoa(maxBulkEnrich) + " people by provider id in one batch. Ids beyond the cap are reported back, not enriched.",
		Parameters: toolParams(map[string]interface{}{
			"ids": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Provider-assigned person ids.",
			},
		}, []string{"ids"}),
		run: func(ctx context.Context, inv Invocation, raw json.RawMessage) map[string]interface{} {
			var input bulkEnrichInput
			if envelope := r.decodeInput(raw, &input); envelope != nil {
				return envelope
			}
			attempted := input.IDs
			var notAttempted []string
			if len(attempted) > maxBulkEnrich {
				notAttempted = attempted[maxBulkEnrich:]
				attempted = attempted[:maxBulkEnrich]
			}
			result, err := client.Call(ctx, inv.TenantID, inv.UserID, "/api/bulk_lookup", http.MethodPost, nil, map[string]interface{}{
				"ids": attempted,
			})
			if err != nil {
				return providerFailure(err)
			}
			envelope := success(map[string]interface{}{
				"people":    result,
				"attempted": len(attempted),
			})
			if len(notAttempted) > 0 {
				envelope["not_attempted"] = notAttempted
				envelope["note"] = fmt.Sprintf("%d ids beyond the batch cap of %d were not attempted; call bulk_enrich again with them", len(notAttempted), maxBulkEnrich)
			}
			return envelope
		},
	})
}

// providerFailure maps client errors onto result envelopes the model can act
// on.
func providerFailure(err error) map[string]interface{} {
	switch {
	case errors.Is(err, provider.ErrNotConfigured):
		return failure("the data provider integration is not configured for this workspace; ask an admin to connect it in settings")
	case errors.Is(err, provider.ErrMissingSecret):
		return failure("the data provider integration is missing its API key; ask an admin to re-enter it in settings")
	}
	var provErr *provider.ProviderError
	if errors.As(err, &provErr) {
		return map[string]interface{}{
			"success": false,
			"error":   fmt.Sprintf("provider returned status %d", provErr.Status),
			"detail":  provErr.Body,
		}
	}
	return failure(err.Error())
}
