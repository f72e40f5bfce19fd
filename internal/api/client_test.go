package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPTimeoutFromEnv(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "")
		if got := httpTimeoutFromEnv(); got != defaultHTTPTimeout {
			t.Fatalf("expected default timeout %v, got %v", defaultHTTPTimeout, got)
		}
	})

	t.Run("duration format", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "45s")
		if got := httpTimeoutFromEnv(); got != 45*time.Second {
			t.Fatalf("expected 45s timeout, got %v", got)
		}
	})

	t.Run("integer seconds", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "25")
		if got := httpTimeoutFromEnv(); got != 25*time.Second {
			t.Fatalf("expected 25s timeout, got %v", got)
		}
	})

	t.Run("invalid falls back", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "invalid")
		if got := httpTimeoutFromEnv(); got != defaultHTTPTimeout {
			t.Fatalf("expected default timeout %v, got %v", defaultHTTPTimeout, got)
		}
	})
}

func TestClientDecodesStructuredErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Message: "record version conflict", Code: "conflict", ErrorCode: 2102})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tk-abc.secret", "")
	_, err := client.GetRecord(context.Background(), "contacts", "ct-1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.ErrorCode != 2102 || apiErr.Code != "conflict" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestClientUploadFileStreamsMultipart(t *testing.T) {
	var (
		gotAuth    string
		gotIfMatch string
		gotName    string
		gotFile    string
		gotMethod  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		gotIfMatch = r.Header.Get("If-Match")
		reader, err := r.MultipartReader()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data, _ := io.ReadAll(part)
			switch part.FormName() {
			case "name":
				gotName = string(data)
			case "file":
				gotFile = part.FileName() + ":" + string(data)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(RecordResponse{ID: "ct-1", Version: 4})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tk-abc.secret", "")
	resp, err := client.UploadFile(context.Background(), "contacts", "ct-1", "Ada", "ada.jpg", strings.NewReader("jpegbytes"), 3)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.Version != 4 {
		t.Fatalf("expected version 4, got %d", resp.Version)
	}
	if gotMethod != http.MethodPut {
		t.Fatalf("expected PUT, got %s", gotMethod)
	}
	if gotAuth != "Bearer tk-abc.secret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotIfMatch != `"3"` {
		t.Fatalf("unexpected If-Match %q", gotIfMatch)
	}
	if gotName != "Ada" || gotFile != "ada.jpg:jpegbytes" {
		t.Fatalf("unexpected parts name=%q file=%q", gotName, gotFile)
	}
}

func TestClientSendsAdminTokenOnlyToAdminRoutes(t *testing.T) {
	seen := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen[r.URL.Path] = r.Header.Get("X-Admin-Token")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", "admin-secret")
	if err := client.AdminRevokeToken(context.Background(), "tk-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := client.DeleteRecord(context.Background(), "contacts", "ct-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if seen["/v1/admin/tokens/tk-1"] != "admin-secret" {
		t.Fatalf("expected admin token on admin route, got %q", seen["/v1/admin/tokens/tk-1"])
	}
	if seen["/v1/contacts/ct-1"] != "" {
		t.Fatal("admin token leaked to a non-admin route")
	}
}
