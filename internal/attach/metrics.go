package attach

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "famvault_uploads_total",
		Help: "Normalized uploads by encoding and result.",
	}, []string{"encoding", "result"})

	bindsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "famvault_slot_mutations_total",
		Help: "Slot bind and unbind calls by operation and result.",
	}, []string{"op", "result"})

	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "famvault_attachment_fetches_total",
		Help: "Attachment retrievals by final stage outcome.",
	}, []string{"result"})

	servedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "famvault_attachment_served_bytes_total",
		Help: "Bytes streamed to clients from attachments.",
	})

	reapedBlobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "famvault_orphan_blobs_total",
		Help: "Orphan blobs handled by the reaper by result.",
	}, []string{"result"})
)
