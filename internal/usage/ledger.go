package usage

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/akashmahlaz/rockreach-sub000/pkg/logging"
)

// Record is one audit row per outbound provider call. Append-only.
type Record struct {
	TenantID      string    `bson:"tenant_id" json:"tenant_id"`
	UserID        string    `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Provider      string    `bson:"provider" json:"provider"`
	Endpoint      string    `bson:"endpoint" json:"endpoint"`
	Method        string    `bson:"method" json:"method"`
	UnitsConsumed int       `bson:"units_consumed" json:"units_consumed"`
	Status        string    `bson:"status" json:"status"`
	DurationMs    int64     `bson:"duration_ms" json:"duration_ms"`
	Error         string    `bson:"error,omitempty" json:"error,omitempty"`
	Timestamp     time.Time `bson:"timestamp" json:"timestamp"`
}

// Recorder appends usage rows. Implementations are best-effort and must never
// surface failures to the caller.
type Recorder interface {
	Record(ctx context.Context, entry Record)
}

// Ledger writes usage rows to the usage_records collection and keeps
// aggregate counters for scraping. Write failures are logged and swallowed.
type Ledger struct {
	collection *mongo.Collection
	logger     logging.Logger

	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
}

func NewLedger(db *mongo.Database, logger logging.Logger, registry *prometheus.Registry) *Ledger {
	l := &Ledger{
		collection: db.Collection("usage_records"),
		logger:     logger,
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_calls_total",
			Help: "Outbound provider calls by endpoint and status",
		}, []string{"provider", "endpoint", "status"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provider_call_duration_seconds",
			Help:    "Outbound provider call duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "endpoint"}),
	}
	if registry != nil {
		registry.MustRegister(l.callsTotal, l.callDuration)
	} else {
		prometheus.MustRegister(l.callsTotal, l.callDuration)
	}
	return l
}

func (l *Ledger) Record(ctx context.Context, entry Record) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	l.callsTotal.WithLabelValues(entry.Provider, entry.Endpoint, entry.Status).Inc()
	l.callDuration.WithLabelValues(entry.Provider, entry.Endpoint).Observe(float64(entry.DurationMs) / 1000)

	if _, err := l.collection.InsertOne(ctx, entry); err != nil {
		l.logger.WithFields(logging.Fields{
			"tenant_id": entry.TenantID,
			"endpoint":  entry.Endpoint,
			"error":     err,
		}).Warn("Failed to append usage record")
	}
}
