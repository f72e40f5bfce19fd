package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"famvault/internal/api"
	"famvault/internal/attach"
	internalauth "famvault/internal/auth"
	"famvault/internal/blobstore"
	"famvault/internal/store"
)

const testAdminToken = "admin-secret"

var (
	pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0x42}, 256)...)
	pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n%%EOF\n")
)

type testServer struct {
	srv     *Server
	handler http.Handler
	st      *store.Store
	blobs   *blobstore.Store
}

type testUser struct {
	id    string
	token string
}

func newTestServer(t *testing.T, cfg attach.NormalizerConfig) *testServer {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "famvault.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	backend, err := blobstore.NewLocalFS(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("new local fs: %v", err)
	}
	blobs := blobstore.New(backend, st, nil)

	srv := New("127.0.0.1:0", Deps{
		Records:    st,
		Tokens:     st,
		Normalizer: attach.NewNormalizer(blobs, cfg, nil),
		Binder:     attach.NewBinder(st, nil),
		Gateway:    attach.NewGateway(st, blobs, attach.GatewayConfig{}, nil),
		Reaper:     attach.NewReaper(st, blobs, nil),
	}, Options{AdminToken: testAdminToken}, nil)

	return &testServer{srv: srv, handler: srv.Handler(), st: st, blobs: blobs}
}

func (ts *testServer) addUser(t *testing.T, name string) testUser {
	t.Helper()
	ctx := context.Background()
	user, err := ts.srv.service.CreateUser(ctx, name)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	_, bearer, err := internalauth.IssueForUser(ctx, ts.st, user.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return testUser{id: user.ID, token: bearer}
}

func (ts *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func newRequest(method, target string, body io.Reader, user *testUser) *http.Request {
	req := httptest.NewRequest(method, target, body)
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+user.token)
	}
	return req
}

func jsonRequest(t *testing.T, method, target string, payload any, user *testUser) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := newRequest(method, target, bytes.NewReader(body), user)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest builds a form with an optional name field and an
// optional file part.
func multipartRequest(t *testing.T, method, target, name, filename string, content []byte, user *testUser) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if name != "" {
		if err := writer.WriteField("name", name); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if content != nil {
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("write form content: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := newRequest(method, target, body, user)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeRecord(t *testing.T, w *httptest.ResponseRecorder) api.RecordResponse {
	t.Helper()
	var resp api.RecordResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode record: %v (%s)", err, w.Body.String())
	}
	return resp
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status, errorCode int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected %d, got %d (%s)", status, w.Code, w.Body.String())
	}
	var errResp api.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.ErrorCode != errorCode {
		t.Fatalf("expected error_code %d, got %d (%s)", errorCode, errResp.ErrorCode, errResp.Message)
	}
}

func (ts *testServer) createContactWithImage(t *testing.T, user testUser) api.RecordResponse {
	t.Helper()
	w := ts.do(t, multipartRequest(t, http.MethodPost, "/v1/contacts", "Grandma Rose", "rose.png", pngBytes, &user))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	return decodeRecord(t, w)
}
