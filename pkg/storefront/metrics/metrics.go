// Package metrics exposes lifecycle counters to Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/simple-storefront/pkg/storefront"
)

// Sink implements storefront.EventSink backed by Prometheus counters.
type Sink struct {
	content      *prometheus.CounterVec
	blobsStored  prometheus.Counter
	bytesStored  prometheus.Counter
	blobsDeleted *prometheus.CounterVec
}

// NewSink creates the counters and registers them with reg. A nil reg
// means the default registry.
func NewSink(namespace string, reg prometheus.Registerer) (*Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &Sink{
		content: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_operations_total",
			Help:      "Committed content operations by kind",
		}, []string{"operation"}),
		blobsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blobs_stored_total",
			Help:      "Blobs written to the chunk store",
		}),
		bytesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blob_bytes_stored_total",
			Help:      "Payload bytes written to the chunk store",
		}),
		blobsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blob_deletions_total",
			Help:      "Blob deletion attempts by result",
		}, []string{"result"}),
	}
	for _, c := range []prometheus.Collector{s.content, s.blobsStored, s.bytesStored, s.blobsDeleted} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Handler serves the metrics gathered by g, or the default gatherer when g
// is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (s *Sink) ContentCreated(ctx context.Context, record *storefront.ContentRecord) error {
	s.content.WithLabelValues("create").Inc()
	return nil
}

func (s *Sink) ContentUpdated(ctx context.Context, record *storefront.ContentRecord) error {
	s.content.WithLabelValues("update").Inc()
	return nil
}

func (s *Sink) ContentDeleted(ctx context.Context, report *storefront.DeleteReport) error {
	s.content.WithLabelValues("delete").Inc()
	return nil
}

func (s *Sink) BlobStored(ctx context.Context, blob *storefront.Blob) error {
	s.blobsStored.Inc()
	s.bytesStored.Add(float64(blob.Size))
	return nil
}

func (s *Sink) BlobDeleted(ctx context.Context, blobID uuid.UUID, err error) error {
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.blobsDeleted.WithLabelValues(result).Inc()
	return nil
}
