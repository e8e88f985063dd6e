package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/akashmahlaz/rockreach-sub000/pkg/crypto"
)

var (
	// ErrNotConfigured means the tenant has no provider integration, or the
	// integration is switched off.
	ErrNotConfigured = errors.New("provider integration not configured")
	// ErrMissingSecret means the integration exists but carries no usable key.
	ErrMissingSecret = errors.New("provider secret key missing")
)

const (
	defaultMaxRetries     = 3
	defaultBaseDelay      = 500 * time.Millisecond
	defaultMaxDelay       = 8 * time.Second
	defaultMaxConcurrency = 2
)

// Policy is an immutable per-tenant snapshot of the outbound provider
// configuration. SecretKey is held decrypted in memory and must never be
// logged.
type Policy struct {
	TenantID       string
	BaseURL        string
	SecretKey      string
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	MaxConcurrency int
	Enabled        bool
}

// SettingsStore resolves the raw integration settings for a tenant.
type SettingsStore interface {
	FetchPolicy(ctx context.Context, tenantID string) (Policy, error)
}

type integrationDoc struct {
	TenantID            string `bson:"tenant_id"`
	Provider            string `bson:"provider"`
	BaseURL             string `bson:"base_url"`
	SecretKeyCiphertext string `bson:"secret_key"`
	MaxRetries          *int   `bson:"max_retries,omitempty"`
	BaseDelayMs         *int   `bson:"base_delay_ms,omitempty"`
	MaxDelayMs          *int   `bson:"max_delay_ms,omitempty"`
	MaxConcurrency      *int   `bson:"max_concurrency,omitempty"`
	Enabled             bool   `bson:"enabled"`
}

// MongoSettingsStore reads integration settings from the shared document
// store and decrypts the secret at read time.
type MongoSettingsStore struct {
	collection *mongo.Collection
	encryptor  *crypto.FieldEncryptor
	provider   string
}

func NewMongoSettingsStore(db *mongo.Database, encryptor *crypto.FieldEncryptor, providerName string) *MongoSettingsStore {
	return &MongoSettingsStore{
		collection: db.Collection("integrations"),
		encryptor:  encryptor,
		provider:   providerName,
	}
}

func (s *MongoSettingsStore) FetchPolicy(ctx context.Context, tenantID string) (Policy, error) {
	var doc integrationDoc
	err := s.collection.FindOne(ctx, bson.M{
		"tenant_id": tenantID,
		"provider":  s.provider,
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Policy{}, ErrNotConfigured
	}
	if err != nil {
		return Policy{}, fmt.Errorf("fetch integration settings: %w", err)
	}
	if !doc.Enabled {
		return Policy{}, ErrNotConfigured
	}
	if doc.SecretKeyCiphertext == "" {
		return Policy{}, ErrMissingSecret
	}

	secret := doc.SecretKeyCiphertext
	if crypto.IsEncrypted(secret) {
		secret, err = s.encryptor.Decrypt(secret)
		if err != nil {
			return Policy{}, fmt.Errorf("decrypt provider secret: %w", err)
		}
	}

	policy := Policy{
		TenantID:       tenantID,
		BaseURL:        doc.BaseURL,
		SecretKey:      secret,
		MaxRetries:     defaultMaxRetries,
		BaseDelay:      defaultBaseDelay,
		MaxDelay:       defaultMaxDelay,
		MaxConcurrency: defaultMaxConcurrency,
		Enabled:        true,
	}
	if doc.MaxRetries != nil && *doc.MaxRetries >= 0 {
		policy.MaxRetries = *doc.MaxRetries
	}
	if doc.BaseDelayMs != nil && *doc.BaseDelayMs > 0 {
		policy.BaseDelay = time.Duration(*doc.BaseDelayMs) * time.Millisecond
	}
	if doc.MaxDelayMs != nil && *doc.MaxDelayMs > 0 {
		policy.MaxDelay = time.Duration(*doc.MaxDelayMs) * time.Millisecond
	}
	if doc.MaxConcurrency != nil && *doc.MaxConcurrency > 0 {
		policy.MaxConcurrency = *doc.MaxConcurrency
	}
	return policy, nil
}
