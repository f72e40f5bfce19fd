package main

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"famvault/internal/api"
	"famvault/internal/config"
	"famvault/internal/models"
)

func newRecordCmds(cfg *config.Config) []*cobra.Command {
	return []*cobra.Command{
		newListCmd(cfg),
		newShowCmd(cfg),
		newPutCmd(cfg),
		newGetCmd(cfg),
		newRemoveCmd(cfg),
		newUnbindCmd(cfg),
	}
}

func newListCmd(cfg *config.Config) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "ls <collection>",
		Short: "List your records in a collection",
		Args:  collectionArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				records, err := client.ListRecords(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				return writeRecordList(records)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum records to return")
	return cmd
}

func newShowCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show <collection> <id>",
		Short: "Show one record and its attachments",
		Args:  collectionArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				record, err := client.GetRecord(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return writeRecordDetail(record)
			})
		},
	}
}

type putOptions struct {
	name      string
	file      string
	asBase64  bool
	ifVersion int64
}

func newPutCmd(cfg *config.Config) *cobra.Command {
	var opts putOptions

	cmd := &cobra.Command{
		Use:   "put <collection> [id]",
		Short: "Create a record, or rename it and replace its file",
		Long: "Without an id a new record is created. With an id the record is updated;\n" +
			"--if-version makes the update fail if someone else changed it first.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 || len(args) > 2 {
				return fmt.Errorf("usage: put <collection> [id]")
			}
			return validateCollection(args[0])
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 2 {
				id = args[1]
			}
			if opts.name == "" && opts.file == "" {
				return fmt.Errorf("--name or --file is required")
			}
			return withClient(cfg, func(client *api.Client) error {
				record, err := putRecord(cmd, client, args[0], id, opts)
				if err != nil {
					return err
				}
				return writeRecordDetail(record)
			})
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "", "display name")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "file to attach (image or document)")
	cmd.Flags().BoolVar(&opts.asBase64, "base64", false, "send the file base64 encoded in a JSON body")
	cmd.Flags().Int64Var(&opts.ifVersion, "if-version", 0, "only update when the record is at this version")
	return cmd
}

func putRecord(cmd *cobra.Command, client *api.Client, collection, id string, opts putOptions) (api.RecordResponse, error) {
	ctx := cmd.Context()
	if opts.file != "" && !opts.asBase64 {
		f, err := os.Open(opts.file)
		if err != nil {
			return api.RecordResponse{}, err
		}
		defer f.Close()
		if info, err := f.Stat(); err == nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "uploading %s (%s)\n", filepath.Base(opts.file), humanize.IBytes(uint64(info.Size())))
		}
		return client.UploadFile(ctx, collection, id, opts.name, filepath.Base(opts.file), f, opts.ifVersion)
	}

	var req api.RecordWriteRequest
	if opts.name != "" {
		req.Name = &opts.name
	}
	if opts.file != "" {
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return api.RecordResponse{}, err
		}
		req.FileBase64 = base64.StdEncoding.EncodeToString(data)
		req.FileName = filepath.Base(opts.file)
	}
	if id == "" {
		return client.CreateRecordJSON(ctx, collection, req)
	}
	return client.UpdateRecordJSON(ctx, collection, id, req, opts.ifVersion)
}

func newGetCmd(cfg *config.Config) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "get <collection> <id> <slot>",
		Short: "Download an attachment",
		Args:  collectionArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				var w io.Writer = cmd.OutOrStdout()
				if outPath != "" && outPath != "-" {
					f, err := os.Create(outPath)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				counter := &countingWriter{w: w}
				contentType, err := client.DownloadSlot(cmd.Context(), args[0], args[1], args[2], counter)
				if err != nil {
					if outPath != "" && outPath != "-" {
						_ = os.Remove(outPath)
					}
					return err
				}
				if outPath != "" && outPath != "-" {
					fmt.Fprintf(cmd.ErrOrStderr(), "saved %s (%s, %s)\n", outPath, contentType, humanize.IBytes(uint64(counter.n)))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "O", "", "write to file instead of stdout")
	return cmd
}

func newRemoveCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <collection> <id>",
		Short: "Delete a record",
		Args:  collectionArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				if err := client.DeleteRecord(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				if structured() {
					return writeStructured(map[string]string{"deleted": args[1]})
				}
				return writePlain("deleted %s\n", args[1])
			})
		},
	}
}

func newUnbindCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "unbind <collection> <id> <slot>",
		Short: "Clear an attachment slot",
		Args:  collectionArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := models.ParseSlot(args[2]); err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				record, err := client.UnbindSlot(cmd.Context(), args[0], args[1], args[2])
				if err != nil {
					return err
				}
				return writeRecordDetail(record)
			})
		},
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
