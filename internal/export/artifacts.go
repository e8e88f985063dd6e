package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultTTL bounds both the stored blob and the signed handle.
const DefaultTTL = 24 * time.Hour

var ErrExpired = errors.New("export artifact expired or not found")

// Artifacts materializes query results as downloadable blobs in redis and
// hands out time-limited signed handles.
type Artifacts struct {
	redis      goredis.UniversalClient
	signingKey []byte
	baseURL    string
	ttl        time.Duration
}

func NewArtifacts(redis goredis.UniversalClient, signingKey []byte, baseURL string) *Artifacts {
	return &Artifacts{
		redis:      redis,
		signingKey: signingKey,
		baseURL:    baseURL,
		ttl:        DefaultTTL,
	}
}

type handleClaims struct {
	ArtifactID string `json:"artifact_id"`
	TenantID   string `json:"tenant_id"`
	Filename   string `json:"filename"`
	jwt.RegisteredClaims
}

// Put stores a blob under a fresh artifact id and returns a signed URL that
// expires with the blob.
func (a *Artifacts) Put(ctx context.Context, tenantID, filename string, data []byte) (string, error) {
	if a.redis == nil {
		return "", errors.New("export storage not configured")
	}
	artifactID := uuid.New().String()
	key := artifactKey(tenantID, artifactID)

	if err := a.redis.Set(ctx, key, data, a.ttl).Err(); err != nil {
		return "", fmt.Errorf("store export artifact: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, handleClaims{
		ArtifactID: artifactID,
		TenantID:   tenantID,
		Filename:   filename,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
	signed, err := token.SignedString(a.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign export handle: %w", err)
	}
	return fmt.Sprintf("%s/v1/exports/download?token=%s", a.baseURL, signed), nil
}

// Fetch validates a signed handle and returns the blob with its filename.
func (a *Artifacts) Fetch(ctx context.Context, tokenString string) ([]byte, string, error) {
	var claims handleClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.signingKey, nil
	})
	if err != nil || !token.Valid {
		return nil, "", fmt.Errorf("invalid export handle: %w", err)
	}

	data, err := a.redis.Get(ctx, artifactKey(claims.TenantID, claims.ArtifactID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, "", ErrExpired
	}
	if err != nil {
		return nil, "", fmt.Errorf("fetch export artifact: %w", err)
	}
	return data, claims.Filename, nil
}

func artifactKey(tenantID, artifactID string) string {
	return fmt.Sprintf("export:%s:%s", tenantID, artifactID)
}

// EncodeCSV renders documents as CSV with a union header of all keys.
func EncodeCSV(docs []map[string]interface{}) ([]byte, error) {
	columns := map[string]struct{}{}
	for _, doc := range docs {
		for key := range doc {
			columns[key] = struct{}{}
		}
	}
	header := make([]string, 0, len(columns))
	for key := range columns {
		header = append(header, key)
	}
	sort.Strings(header)

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(header); err != nil {
		return nil, err
	}
	for _, doc := range docs {
		row := make([]string, len(header))
		for i, key := range header {
			if value, ok := doc[key]; ok && value != nil {
				row[i] = fmt.Sprintf("%v", value)
			}
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	return buf.Bytes(), writer.Error()
}
