package confluence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"archpub/internal/metrics"
	"archpub/pkg/logger"
	"archpub/pkg/version"
)

var (
	ErrPageNotFound       = errors.New("page not found")
	ErrAttachmentNotFound = errors.New("attachment not found")
)

// APIError is returned for any non-2xx response.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: API request failed with status %d: %s", e.Operation, e.StatusCode, e.Body)
}

type Client struct {
	baseURL  string
	username string
	apiToken string
	client   *http.Client
	logger   *logger.Logger
}

type Page struct {
	ID    string `json:"id,omitempty"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title"`
	Body  struct {
		Storage struct {
			Value          string `json:"value"`
			Representation string `json:"representation,omitempty"`
		} `json:"storage"`
	} `json:"body,omitempty"`
	Space struct {
		Key string `json:"key"`
	} `json:"space,omitempty"`
	Version struct {
		Number int `json:"number"`
	} `json:"version,omitempty"`
}

type Attachment struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Metadata struct {
		MediaType string `json:"mediaType,omitempty"`
	} `json:"metadata,omitempty"`
	Extensions struct {
		FileSize int64 `json:"fileSize,omitempty"`
	} `json:"extensions,omitempty"`
	Links struct {
		Download string `json:"download,omitempty"`
	} `json:"_links,omitempty"`
}

// NewClient builds a client using basic auth (username + API token). The log
// may be nil.
func NewClient(baseURL, username, apiToken string, log *logger.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		apiToken: apiToken,
		client:   &http.Client{},
		logger:   log,
	}
}

// NormalizeTitle trims and NFC-normalizes a title so that visually identical
// titles resolve to the same page.
func NormalizeTitle(title string) string {
	return norm.NFC.String(strings.TrimSpace(title))
}

func (c *Client) debug(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(format, args...)
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// DoAuthenticatedRequest sends req with the client's credentials. The caller
// owns the response body.
func (c *Client) DoAuthenticatedRequest(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(c.username, c.apiToken)
	req.Header.Set("User-Agent", version.UserAgent())
	return c.client.Do(req)
}

// do executes req, records metrics, maps non-2xx responses to *APIError and
// decodes the JSON body into out when out is non-nil.
func (c *Client) do(operation string, req *http.Request, out interface{}) error {
	started := time.Now()
	c.debug("%s %s", req.Method, req.URL.Path)

	resp, err := c.DoAuthenticatedRequest(req)
	if err != nil {
		metrics.ObserveAPI(operation, 0, started)
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	metrics.ObserveAPI(operation, resp.StatusCode, started)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return &APIError{Operation: operation, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) sendJSON(ctx context.Context, operation, method, path string, payload interface{}) (*Page, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal page data: %w", err)
	}

	req, err := c.newRequest(ctx, method, path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var result Page
	if err := c.do(operation, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func storageBody(content string) map[string]interface{} {
	return map[string]interface{}{
		"storage": map[string]interface{}{
			"value":          content,
			"representation": "storage",
		},
	}
}

func (c *Client) CreatePage(ctx context.Context, spaceKey, title, content string) (*Page, error) {
	page := map[string]interface{}{
		"type":  "page",
		"title": NormalizeTitle(title),
		"space": map[string]string{"key": spaceKey},
		"body":  storageBody(content),
	}
	return c.sendJSON(ctx, "create_page", http.MethodPost, "/rest/api/content", page)
}

// UpdatePage overwrites the page body. The current version is read and
// incremented; there is no conflict detection, so the last writer wins.
func (c *Client) UpdatePage(ctx context.Context, pageID, title, content string) (*Page, error) {
	current, err := c.GetPage(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get current page version: %w", err)
	}

	page := map[string]interface{}{
		"id":      pageID,
		"type":    "page",
		"title":   NormalizeTitle(title),
		"body":    storageBody(content),
		"version": map[string]interface{}{"number": current.Version.Number + 1},
	}
	return c.sendJSON(ctx, "update_page", http.MethodPut, "/rest/api/content/"+url.PathEscape(pageID), page)
}

func (c *Client) GetPage(ctx context.Context, pageID string) (*Page, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/rest/api/content/"+url.PathEscape(pageID)+"?expand=body.storage,version", nil)
	if err != nil {
		return nil, err
	}

	var result Page
	if err := c.do("get_page", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FindPageByTitle returns nil, nil when no page with that title exists.
func (c *Client) FindPageByTitle(ctx context.Context, spaceKey, title string) (*Page, error) {
	params := url.Values{}
	params.Add("spaceKey", spaceKey)
	params.Add("title", NormalizeTitle(title))
	params.Add("type", "page")
	params.Add("expand", "body.storage,version")

	req, err := c.newRequest(ctx, http.MethodGet, "/rest/api/content?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Results []Page `json:"results"`
	}
	if err := c.do("find_page", req, &result); err != nil {
		return nil, err
	}

	if len(result.Results) == 0 {
		return nil, nil
	}
	return &result.Results[0], nil
}

func (c *Client) PageExists(ctx context.Context, spaceKey, title string) (bool, error) {
	page, err := c.FindPageByTitle(ctx, spaceKey, title)
	if err != nil {
		return false, err
	}
	return page != nil, nil
}

// GetPageID resolves a page ID by title. It wraps ErrPageNotFound when absent.
func (c *Client) GetPageID(ctx context.Context, spaceKey, title string) (string, error) {
	page, err := c.FindPageByTitle(ctx, spaceKey, title)
	if err != nil {
		return "", err
	}
	if page == nil {
		return "", fmt.Errorf("%w: '%s' in space '%s'", ErrPageNotFound, title, spaceKey)
	}
	return page.ID, nil
}

type attachmentList struct {
	Results []Attachment `json:"results"`
	Links   struct {
		Next string `json:"next"`
	} `json:"_links"`
}

// ListAttachments returns every attachment on the page, following pagination.
func (c *Client) ListAttachments(ctx context.Context, pageID string) ([]Attachment, error) {
	path := "/rest/api/content/" + url.PathEscape(pageID) + "/child/attachment?limit=100"
	var all []Attachment

	for path != "" {
		req, err := c.newRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}

		var page attachmentList
		if err := c.do("list_attachments", req, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Results...)
		path = page.Links.Next
	}

	return all, nil
}

// FindAttachmentByFilename wraps ErrAttachmentNotFound when the page has no
// attachment with that name.
func (c *Client) FindAttachmentByFilename(ctx context.Context, pageID, filename string) (*Attachment, error) {
	params := url.Values{}
	params.Add("filename", filename)

	req, err := c.newRequest(ctx, http.MethodGet, "/rest/api/content/"+url.PathEscape(pageID)+"/child/attachment?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var result attachmentList
	if err := c.do("find_attachment", req, &result); err != nil {
		return nil, err
	}

	for i := range result.Results {
		if result.Results[i].Title == filename {
			return &result.Results[i], nil
		}
	}
	return nil, fmt.Errorf("%w: attachment with filename '%s' not found", ErrAttachmentNotFound, filename)
}

// UploadAttachment posts data as a multipart file to the page's attachment
// endpoint. If Confluence rejects the upload because the filename already
// exists, the existing attachment is returned instead.
func (c *Client) UploadAttachment(ctx context.Context, pageID, filename, mediaType string, data []byte) (*Attachment, error) {
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	header.Set("Content-Type", mediaType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write attachment data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/rest/api/content/"+url.PathEscape(pageID)+"/child/attachment", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	// Confluence rejects multipart posts without this XSRF opt-out.
	req.Header.Set("X-Atlassian-Token", "no-check")

	var result attachmentList
	err = c.do("upload_attachment", req, &result)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(apiErr.Body), "same file name") {
		c.debug("Attachment '%s' already exists on page %s, resolving existing", filename, pageID)
		return c.FindAttachmentByFilename(ctx, pageID, filename)
	}
	if err != nil {
		return nil, err
	}

	if len(result.Results) == 0 {
		return nil, fmt.Errorf("upload of '%s' returned no attachment", filename)
	}
	return &result.Results[0], nil
}

// GetAttachmentDownloadURL returns the absolute download link for an attachment.
func (c *Client) GetAttachmentDownloadURL(ctx context.Context, pageID, attachmentID string) (string, error) {
	attachments, err := c.ListAttachments(ctx, pageID)
	if err != nil {
		return "", err
	}
	for _, att := range attachments {
		if att.ID == attachmentID {
			return c.DownloadURL(att), nil
		}
	}
	return "", fmt.Errorf("%w: id '%s' on page %s", ErrAttachmentNotFound, attachmentID, pageID)
}

// DownloadURL makes the relative download link of a listed attachment
// absolute. It does not call the API.
func (c *Client) DownloadURL(att Attachment) string {
	return c.baseURL + att.Links.Download
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
