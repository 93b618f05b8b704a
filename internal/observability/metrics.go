package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PhotosProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "photocat",
		Name:      "photos_processed_total",
		Help:      "Total number of photos handled, by outcome",
	}, []string{"outcome"})

	BlobsUploaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "photocat",
		Name:      "blobs_uploaded_total",
		Help:      "Total number of blobs uploaded to the object store",
	}, []string{"bucket"})

	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "photocat",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected during ingestion",
	})

	GeocodeLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "photocat",
		Name:      "geocode_lookups_total",
		Help:      "Reverse-geocoding lookups, by result",
	}, []string{"result"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "photocat",
		Name:      "stage_duration_seconds",
		Help:      "Duration of per-photo processing stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"stage"})
)
