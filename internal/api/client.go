package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	httpTimeoutEnvKey  = "FAMVAULT_HTTP_TIMEOUT"
)

// Client is a simple HTTP client for the famvault API.
type Client struct {
	baseURL    string
	http       *http.Client
	authToken  string
	adminToken string
}

// NewClient creates a new API client. Empty tokens are not sent.
func NewClient(baseURL, authToken, adminToken string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: httpTimeoutFromEnv()},
		authToken:  strings.TrimSpace(authToken),
		adminToken: strings.TrimSpace(adminToken),
	}
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (c *Client) GetRecord(ctx context.Context, collection, id string) (RecordResponse, error) {
	var resp RecordResponse
	err := c.do(ctx, http.MethodGet, recordPath(collection, id), nil, nil, &resp)
	return resp, err
}

func (c *Client) ListRecords(ctx context.Context, collection string, limit int) ([]RecordResponse, error) {
	var resp []RecordResponse
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	err := c.do(ctx, http.MethodGet, "/v1/"+url.PathEscape(collection), query, nil, &resp)
	return resp, err
}

// CreateRecordJSON creates a record, optionally carrying a base64 file.
func (c *Client) CreateRecordJSON(ctx context.Context, collection string, req RecordWriteRequest) (RecordResponse, error) {
	var resp RecordResponse
	err := c.do(ctx, http.MethodPost, "/v1/"+url.PathEscape(collection), nil, req, &resp)
	return resp, err
}

// UpdateRecordJSON updates a record. A positive version is sent as If-Match.
func (c *Client) UpdateRecordJSON(ctx context.Context, collection, id string, req RecordWriteRequest, version int64) (RecordResponse, error) {
	var resp RecordResponse
	payload, err := json.Marshal(req)
	if err != nil {
		return resp, err
	}
	httpReq, err := c.newRequest(ctx, http.MethodPut, recordPath(collection, id), nil, bytes.NewReader(payload))
	if err != nil {
		return resp, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	setIfMatch(httpReq, version)
	err = c.send(httpReq, &resp)
	return resp, err
}

// UploadFile streams file as a multipart upload. With id empty a record is
// created in collection; otherwise the record's slot is replaced.
func (c *Client) UploadFile(ctx context.Context, collection, id, name, filename string, file io.Reader, version int64) (RecordResponse, error) {
	var resp RecordResponse
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		err := writeMultipart(writer, name, filename, file)
		pw.CloseWithError(err)
	}()

	method, path := http.MethodPost, "/v1/"+url.PathEscape(collection)
	if id != "" {
		method, path = http.MethodPut, recordPath(collection, id)
	}
	httpReq, err := c.newRequest(ctx, method, path, nil, pr)
	if err != nil {
		pr.Close()
		return resp, err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	setIfMatch(httpReq, version)
	err = c.send(httpReq, &resp)
	pr.Close()
	return resp, err
}

func writeMultipart(writer *multipart.Writer, name, filename string, file io.Reader) error {
	if name != "" {
		if err := writer.WriteField("name", name); err != nil {
			return err
		}
	}
	if file != nil {
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, file); err != nil {
			return err
		}
	}
	return writer.Close()
}

func (c *Client) DeleteRecord(ctx context.Context, collection, id string) error {
	return c.do(ctx, http.MethodDelete, recordPath(collection, id), nil, nil, nil)
}

// DownloadSlot copies the slot's bytes to w and returns the content type.
func (c *Client) DownloadSlot(ctx context.Context, collection, id, slot string, w io.Writer) (string, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, recordPath(collection, id)+"/"+url.PathEscape(slot), nil, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", decodeError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", err
	}
	return resp.Header.Get("Content-Type"), nil
}

func (c *Client) UnbindSlot(ctx context.Context, collection, id, slot string) (RecordResponse, error) {
	var resp RecordResponse
	err := c.do(ctx, http.MethodDelete, recordPath(collection, id)+"/"+url.PathEscape(slot), nil, nil, &resp)
	return resp, err
}

// AdminBlobGC runs an orphan sweep. Non-dry runs need confirm.
func (c *Client) AdminBlobGC(ctx context.Context, req BlobGCRequest, confirm bool) (BlobGCResponse, error) {
	var resp BlobGCResponse
	payload, err := json.Marshal(req)
	if err != nil {
		return resp, err
	}
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/v1/admin/blobs/gc", nil, bytes.NewReader(payload))
	if err != nil {
		return resp, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if confirm {
		httpReq.Header.Set("X-Confirm", "true")
	}
	err = c.send(httpReq, &resp)
	return resp, err
}

func (c *Client) AdminCreateUser(ctx context.Context, req UserCreateRequest) (UserCreateResponse, error) {
	var resp UserCreateResponse
	err := c.do(ctx, http.MethodPost, "/v1/admin/users", nil, req, &resp)
	return resp, err
}

func (c *Client) AdminCreateToken(ctx context.Context, userID string) (TokenCreateResponse, error) {
	var resp TokenCreateResponse
	err := c.do(ctx, http.MethodPost, "/v1/admin/users/"+url.PathEscape(userID)+"/tokens", nil, nil, &resp)
	return resp, err
}

func (c *Client) AdminRevokeToken(ctx context.Context, tokenID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/admin/tokens/"+url.PathEscape(tokenID), nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := c.newRequest(ctx, method, path, query, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	c.setAuthHeader(req)
	if strings.HasPrefix(path, "/v1/admin/") {
		c.setAdminHeader(req)
	}
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Message != "" {
		apiErr.Code = errResp.Code
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.Message = errResp.Message
		return apiErr
	}
	apiErr.Message = fmt.Sprintf("api error: %s", resp.Status)
	return apiErr
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.authToken == "" || req == nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
}

func (c *Client) setAdminHeader(req *http.Request) {
	if c.adminToken == "" || req == nil {
		return
	}
	req.Header.Set("X-Admin-Token", c.adminToken)
}

func setIfMatch(req *http.Request, version int64) {
	if version > 0 {
		req.Header.Set("If-Match", strconv.Quote(strconv.FormatInt(version, 10)))
	}
}

func recordPath(collection, id string) string {
	return "/v1/" + url.PathEscape(collection) + "/" + url.PathEscape(id)
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
