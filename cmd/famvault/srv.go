package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"famvault/internal/attach"
	"famvault/internal/blobstore"
	"famvault/internal/config"
	"famvault/internal/models"
	"famvault/internal/server"
	"famvault/internal/store"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the famvault API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if cfg.DBPath == "" {
				return fmt.Errorf("db path is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			logger.Info("opening database", "path", cfg.DBPath)
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			deps, err := buildDeps(ctx, cfg, st, logger)
			if err != nil {
				return err
			}
			if cfg.AdminToken == "" {
				logger.Warn("admin token not set; admin routes are disabled")
			}

			srv := server.New(addr, deps, server.Options{
				AdminToken:         cfg.AdminToken,
				UploadConcurrency:  cfg.Attachments.UploadConcurrency,
				MultipartMaxMemory: int64(cfg.Attachments.MultipartMaxMemory),
				GCGracePeriod:      cfg.Attachments.GCGracePeriod.Std(),
				GCBatchSize:        cfg.Attachments.GCBatchSize,
			}, logger)
			return srv.ListenAndServe(ctx)
		},
	}
}

// buildDeps wires the blob backend and the attachment pipeline over st.
func buildDeps(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) (server.Deps, error) {
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return server.Deps{}, err
	}
	publicSlots, err := parseSlots(cfg.Attachments.PublicSlots)
	if err != nil {
		return server.Deps{}, err
	}
	blobs := blobstore.New(backend, st, logger)
	logger.Info("blob backend ready",
		"backend", blobs.BackendName(),
		"max_upload", humanize.IBytes(uint64(cfg.Attachments.MaxUploadBytes)),
	)

	return server.Deps{
		Records: st,
		Tokens:  st,
		Normalizer: attach.NewNormalizer(blobs, attach.NormalizerConfig{
			MaxUploadBytes:    int64(cfg.Attachments.MaxUploadBytes),
			AllowedMediaTypes: cfg.Attachments.AllowedMediaTypes,
		}, logger),
		Binder:  attach.NewBinder(st, logger),
		Gateway: attach.NewGateway(st, blobs, attach.GatewayConfig{PublicSlots: publicSlots}, logger),
		Reaper:  attach.NewReaper(st, blobs, logger),
	}, nil
}

func openBackend(ctx context.Context, cfg *config.Config) (blobstore.Backend, error) {
	switch cfg.Blobs.Backend {
	case config.BlobBackendS3:
		s3 := cfg.Blobs.S3
		return blobstore.NewS3(ctx, blobstore.S3Config{
			Endpoint:       s3.Endpoint,
			Region:         s3.Region,
			Bucket:         s3.Bucket,
			Prefix:         s3.Prefix,
			AccessKey:      s3.AccessKey,
			SecretKey:      s3.SecretKey,
			Insecure:       s3.Insecure,
			ForcePathStyle: s3.PathStyle,
			PartSize:       uint64(s3.PartSize),
			CreateBucket:   s3.CreateBucket,
		})
	case config.BlobBackendLocal, "":
		return blobstore.NewLocalFS(cfg.Blobs.Root)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Blobs.Backend)
	}
}

// parseSlots returns nil for an empty list so the gateway keeps its default.
func parseSlots(raw []string) ([]models.Slot, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	slots := make([]models.Slot, 0, len(raw))
	for _, value := range raw {
		slot, err := models.ParseSlot(value)
		if err != nil {
			return nil, fmt.Errorf("attachments.public_slots: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, nil
}
