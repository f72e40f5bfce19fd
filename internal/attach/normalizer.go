package attach

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/dustin/go-humanize"

	"famvault/internal/blobstore"
	"famvault/internal/models"
)

const (
	// DefaultMaxUploadBytes caps a single decoded upload.
	DefaultMaxUploadBytes int64 = 10 << 20

	fallbackContentType = "application/octet-stream"
	sniffLen            = 512
	maxFilenameLen      = 255
)

var preferredExtensions = map[string]string{
	"image/jpeg":         ".jpg",
	"image/png":          ".png",
	"image/gif":          ".gif",
	"image/webp":         ".webp",
	"image/heic":         ".heic",
	"image/bmp":          ".bmp",
	"image/svg+xml":      ".svg",
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
	"text/plain": ".txt",
	"text/csv":   ".csv",
}

// BlobWriter is the write half of the blob store.
type BlobWriter interface {
	Write(ctx context.Context, r io.Reader, opts blobstore.WriteOptions) (models.BlobDescriptor, error)
}

// NormalizerConfig sets upload limits and the media type allow-list. An
// empty allow-list accepts every type.
type NormalizerConfig struct {
	MaxUploadBytes    int64
	AllowedMediaTypes []string
}

// Normalizer turns either upload encoding into exactly one stored blob.
type Normalizer struct {
	blobs    BlobWriter
	maxBytes int64
	allowed  map[string]struct{}
	logger   *slog.Logger
	now      func() time.Time
}

// NewNormalizer builds a Normalizer writing through blobs.
func NewNormalizer(blobs BlobWriter, cfg NormalizerConfig, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	maxBytes := cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	var allowed map[string]struct{}
	for _, raw := range cfg.AllowedMediaTypes {
		mediaType := normalizeMediaType(raw)
		if mediaType == "" {
			continue
		}
		if allowed == nil {
			allowed = map[string]struct{}{}
		}
		allowed[mediaType] = struct{}{}
	}
	return &Normalizer{
		blobs:    blobs,
		maxBytes: maxBytes,
		allowed:  allowed,
		logger:   logger.With("component", "normalizer"),
		now:      time.Now,
	}
}

// MaxUploadBytes returns the effective per-upload limit.
func (n *Normalizer) MaxUploadBytes() int64 {
	return n.maxBytes
}

// Normalize stores the upload and returns its descriptor.
func (n *Normalizer) Normalize(ctx context.Context, up Upload) (models.BlobDescriptor, error) {
	var (
		desc     models.BlobDescriptor
		err      error
		encoding string
	)
	switch u := up.(type) {
	case StreamedUpload:
		encoding = "stream"
		desc, err = n.normalizeStream(ctx, u)
	case Base64Upload:
		encoding = "base64"
		desc, err = n.normalizeBase64(ctx, u)
	default:
		return models.BlobDescriptor{}, fmt.Errorf("unsupported upload type %T", up)
	}
	if err != nil {
		uploadsTotal.WithLabelValues(encoding, uploadResult(err)).Inc()
		n.logger.Debug("upload rejected", "encoding", encoding, "error", err)
		return models.BlobDescriptor{}, err
	}
	uploadsTotal.WithLabelValues(encoding, "ok").Inc()
	n.logger.Debug("upload stored",
		"encoding", encoding,
		"blob_id", desc.ID,
		"content_type", desc.ContentType,
		"size", humanize.IBytes(uint64(desc.Length)),
	)
	return desc, nil
}

func (n *Normalizer) normalizeStream(ctx context.Context, u StreamedUpload) (models.BlobDescriptor, error) {
	if u.Reader == nil {
		return models.BlobDescriptor{}, fmt.Errorf("upload reader is required")
	}
	return n.store(ctx, u.Reader, u.ContentType, u.Filename, u.DeclaredSize)
}

func (n *Normalizer) normalizeBase64(ctx context.Context, u Base64Upload) (models.BlobDescriptor, error) {
	payload, dataType, err := splitDataURI(u.Data)
	if err != nil {
		return models.BlobDescriptor{}, err
	}
	contentType := u.ContentType
	if strings.TrimSpace(contentType) == "" {
		contentType = dataType
	}

	payload = stripSpace(payload)
	if payload == "" {
		return models.BlobDescriptor{}, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	enc, err := pickEncoding(payload)
	if err != nil {
		return models.BlobDescriptor{}, err
	}
	size := decodedLen(payload, enc)

	src := &decodeErrReader{r: base64.NewDecoder(enc, strings.NewReader(payload))}
	return n.store(ctx, src, contentType, u.Filename, size)
}

// store sniffs, validates and streams one payload into the blob store.
func (n *Normalizer) store(ctx context.Context, r io.Reader, declaredType, filename string, declaredSize int64) (models.BlobDescriptor, error) {
	if declaredSize > n.maxBytes {
		return models.BlobDescriptor{}, fmt.Errorf("%w: %s exceeds limit of %s", ErrPayloadTooLarge,
			humanize.IBytes(uint64(declaredSize)), humanize.IBytes(uint64(n.maxBytes)))
	}

	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return models.BlobDescriptor{}, err
	}

	contentType := resolveContentType(declaredType, head)
	if err := n.checkAllowed(contentType); err != nil {
		return models.BlobDescriptor{}, err
	}

	return n.blobs.Write(ctx, &maxBytesReader{r: br, remaining: n.maxBytes}, blobstore.WriteOptions{
		ContentType: contentType,
		Filename:    resolveFilename(filename, contentType, n.now()),
	})
}

func (n *Normalizer) checkAllowed(contentType string) error {
	if len(n.allowed) == 0 {
		return nil
	}
	if _, ok := n.allowed[contentType]; ok {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedMediaType, contentType)
}

// resolveContentType prefers the declared type unless it is missing or the
// generic binary type, in which case the sniffed type is used.
func resolveContentType(declared string, head []byte) string {
	if mediaType := normalizeMediaType(declared); mediaType != "" && mediaType != fallbackContentType {
		return mediaType
	}
	if len(head) == 0 {
		return fallbackContentType
	}
	if sniffed := normalizeMediaType(http.DetectContentType(head)); sniffed != "" {
		return sniffed
	}
	return fallbackContentType
}

func normalizeMediaType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(raw)
	if err != nil || !strings.Contains(parsed, "/") {
		return ""
	}
	return strings.ToLower(parsed)
}

// resolveFilename keeps the client's base name, or synthesizes
// <unix-millis><ext> from the content type.
func resolveFilename(raw, contentType string, now time.Time) string {
	if name := sanitizeFilename(raw); name != "" {
		return name
	}
	return strconv.FormatInt(now.UnixMilli(), 10) + extensionFor(contentType)
}

func sanitizeFilename(raw string) string {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), `\`, "/")
	if raw == "" {
		return ""
	}
	name := path.Base(raw)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" || name == ".." {
		return ""
	}
	if len(name) > maxFilenameLen {
		ext := path.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = name[:maxFilenameLen-len(ext)] + ext
	}
	return name
}

func extensionFor(contentType string) string {
	if contentType == "" || contentType == fallbackContentType {
		return ""
	}
	if ext, ok := preferredExtensions[contentType]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(contentType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}

// splitDataURI strips an optional data:<mime>;base64, prefix.
func splitDataURI(raw string) (payload, contentType string, err error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "data:") {
		return raw, "", nil
	}
	header, payload, ok := strings.Cut(raw, ",")
	if !ok {
		return "", "", fmt.Errorf("%w: data uri has no payload", ErrDecode)
	}
	params := strings.Split(strings.TrimPrefix(header, "data:"), ";")
	if len(params) < 2 || params[len(params)-1] != "base64" {
		return "", "", fmt.Errorf("%w: data uri is not base64", ErrDecode)
	}
	return payload, params[0], nil
}

func stripSpace(s string) string {
	if strings.IndexFunc(s, unicode.IsSpace) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// pickEncoding accepts padded or unpadded input in the standard or URL-safe
// alphabet.
func pickEncoding(payload string) (*base64.Encoding, error) {
	urlSafe := strings.ContainsAny(payload, "-_")
	padded := strings.HasSuffix(payload, "=")
	switch {
	case len(payload)%4 == 0 && urlSafe:
		return base64.URLEncoding, nil
	case len(payload)%4 == 0:
		return base64.StdEncoding, nil
	case padded || len(payload)%4 == 1:
		return nil, fmt.Errorf("%w: invalid length", ErrDecode)
	case urlSafe:
		return base64.RawURLEncoding, nil
	default:
		return base64.RawStdEncoding, nil
	}
}

// decodedLen returns the exact decoded size of a well-formed payload.
func decodedLen(payload string, enc *base64.Encoding) int64 {
	if enc == base64.StdEncoding || enc == base64.URLEncoding {
		pad := len(payload) - len(strings.TrimRight(payload, "="))
		return int64(len(payload)/4*3 - pad)
	}
	return int64(enc.DecodedLen(len(payload)))
}

// decodeErrReader reports base64 corruption as ErrDecode.
type decodeErrReader struct {
	r io.Reader
}

func (d *decodeErrReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	var corrupt base64.CorruptInputError
	if errors.As(err, &corrupt) {
		err = fmt.Errorf("%w: corrupt input at byte %d", ErrDecode, int64(corrupt))
	}
	return n, err
}

// maxBytesReader fails with ErrPayloadTooLarge once more than remaining
// bytes have been read.
type maxBytesReader struct {
	r         io.Reader
	remaining int64
}

func (m *maxBytesReader) Read(p []byte) (int, error) {
	if m.remaining < 0 {
		return 0, ErrPayloadTooLarge
	}
	if int64(len(p)) > m.remaining+1 {
		p = p[:m.remaining+1]
	}
	n, err := m.r.Read(p)
	m.remaining -= int64(n)
	if m.remaining < 0 {
		return n, ErrPayloadTooLarge
	}
	return n, err
}

func uploadResult(err error) string {
	switch {
	case errors.Is(err, ErrDecode):
		return "decode_error"
	case errors.Is(err, ErrPayloadTooLarge):
		return "too_large"
	case errors.Is(err, ErrUnsupportedMediaType):
		return "unsupported_type"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "failed"
	}
}
