package blobstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blobWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "famvault_blob_writes_total",
		Help: "Blob writes by backend and result.",
	}, []string{"backend", "result"})

	blobWriteBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "famvault_blob_write_bytes_total",
		Help: "Bytes committed to blob storage.",
	})
)
