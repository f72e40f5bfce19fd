package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"famvault/internal/api"
	"famvault/internal/format"
)

var outputFormatter format.Formatter

func setOutputFormat(name string) error {
	formatter, err := format.ForName(name)
	if err != nil {
		return err
	}
	outputFormatter = formatter
	return nil
}

// structured reports whether payloads should be written through the
// configured formatter instead of plain text.
func structured() bool {
	return outputFormatter != nil
}

func writeStructured(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeRecordList(records []api.RecordResponse) error {
	if structured() {
		return writeStructured(records)
	}
	for _, record := range records {
		if err := writePlain("%s\n", formatRecordLine(record)); err != nil {
			return err
		}
	}
	return nil
}

func writeRecordDetail(record api.RecordResponse) error {
	if structured() {
		return writeStructured(record)
	}
	lines := []string{
		fmt.Sprintf("id: %s", record.ID),
		fmt.Sprintf("kind: %s", record.Kind),
		fmt.Sprintf("name: %s", record.DisplayName),
		fmt.Sprintf("version: %d", record.Version),
		fmt.Sprintf("created_at: %s", formatTime(record.CreatedAt)),
		fmt.Sprintf("updated_at: %s", formatTime(record.UpdatedAt)),
	}
	if record.ImageURL != "" {
		lines = append(lines, fmt.Sprintf("image_url: %s", record.ImageURL))
	}
	if len(record.Attachments) > 0 {
		slots := make([]string, 0, len(record.Attachments))
		for slot := range record.Attachments {
			slots = append(slots, slot)
		}
		sort.Strings(slots)
		lines = append(lines, "attachments:")
		for _, slot := range slots {
			att := record.Attachments[slot]
			lines = append(lines, fmt.Sprintf("  - %s: %s (%s, bound %s)", slot, att.Filename, att.ContentType, humanize.Time(att.BoundAt)))
		}
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func formatRecordLine(record api.RecordResponse) string {
	marker := "○"
	if len(record.Attachments) > 0 {
		marker = "●"
	}
	return fmt.Sprintf("%s %s [v%d] %s", marker, record.ID, record.Version, record.DisplayName)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
