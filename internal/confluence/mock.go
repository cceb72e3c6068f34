package confluence

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// UpdateCall records a single UpdatePage invocation.
type UpdateCall struct {
	PageID  string
	Title   string
	Content string
}

// UploadCall records a single UploadAttachment invocation.
type UploadCall struct {
	PageID    string
	Filename  string
	MediaType string
	Data      []byte
}

type pendingAttachment struct {
	att       Attachment
	remaining int
}

// MockClient is an in-memory implementation of ConfluenceClient for tests.
type MockClient struct {
	Pages        map[string]*Page        // pageID -> Page
	PagesByTitle map[string]*Page        // spaceKey:title -> Page
	Attachments  map[string][]Attachment // pageID -> visible attachments
	CreateCalls  []string                // titles created (for assertions)
	UpdateCalls  []UpdateCall
	Uploads      []UploadCall
	ListCalls    int

	// AttachmentVisibleAfter hides a freshly uploaded attachment from this many
	// ListAttachments calls, mimicking server-side processing delay.
	AttachmentVisibleAfter int

	FindErr   error
	CreateErr error
	UpdateErr error
	UploadErr error
	ListErr   error

	pending map[string][]pendingAttachment
	nextID  int
}

func NewMockClient() *MockClient {
	return &MockClient{
		Pages:        make(map[string]*Page),
		PagesByTitle: make(map[string]*Page),
		Attachments:  make(map[string][]Attachment),
		pending:      make(map[string][]pendingAttachment),
		nextID:       1000,
	}
}

func (m *MockClient) key(spaceKey, title string) string {
	return spaceKey + ":" + NormalizeTitle(title)
}

func (m *MockClient) newID() string {
	m.nextID++
	return strconv.Itoa(m.nextID)
}

// SeedPage stores a page without recording a create call.
func (m *MockClient) SeedPage(spaceKey, title, content string) *Page {
	p := &Page{ID: m.newID(), Type: "page", Title: NormalizeTitle(title)}
	p.Body.Storage.Value = content
	p.Body.Storage.Representation = "storage"
	p.Space.Key = spaceKey
	p.Version.Number = 1
	m.Pages[p.ID] = p
	m.PagesByTitle[m.key(spaceKey, title)] = p
	return p
}

// SeedAttachment makes an attachment immediately visible on a page.
func (m *MockClient) SeedAttachment(pageID, filename string) Attachment {
	att := Attachment{ID: "att" + m.newID(), Title: filename}
	m.Attachments[pageID] = append(m.Attachments[pageID], att)
	return att
}

func (m *MockClient) CreatePage(ctx context.Context, spaceKey, title, content string) (*Page, error) {
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	if _, exists := m.PagesByTitle[m.key(spaceKey, title)]; exists {
		return nil, &APIError{Operation: "create_page", StatusCode: http.StatusBadRequest, Body: "A page with this title already exists"}
	}
	m.CreateCalls = append(m.CreateCalls, title)
	p := m.SeedPage(spaceKey, title, content)
	copied := *p
	return &copied, nil
}

func (m *MockClient) UpdatePage(ctx context.Context, pageID, title, content string) (*Page, error) {
	if m.UpdateErr != nil {
		return nil, m.UpdateErr
	}
	p, ok := m.Pages[pageID]
	if !ok {
		return nil, &APIError{Operation: "update_page", StatusCode: http.StatusNotFound, Body: "No content found with id " + pageID}
	}
	m.UpdateCalls = append(m.UpdateCalls, UpdateCall{PageID: pageID, Title: title, Content: content})
	p.Title = NormalizeTitle(title)
	p.Body.Storage.Value = content
	p.Version.Number++
	copied := *p
	return &copied, nil
}

func (m *MockClient) FindPageByTitle(ctx context.Context, spaceKey, title string) (*Page, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	p, ok := m.PagesByTitle[m.key(spaceKey, title)]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (m *MockClient) PageExists(ctx context.Context, spaceKey, title string) (bool, error) {
	p, err := m.FindPageByTitle(ctx, spaceKey, title)
	return p != nil, err
}

func (m *MockClient) GetPageID(ctx context.Context, spaceKey, title string) (string, error) {
	p, err := m.FindPageByTitle(ctx, spaceKey, title)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "", fmt.Errorf("%w: '%s' in space '%s'", ErrPageNotFound, title, spaceKey)
	}
	return p.ID, nil
}

func (m *MockClient) GetPage(ctx context.Context, pageID string) (*Page, error) {
	p, ok := m.Pages[pageID]
	if !ok {
		return nil, &APIError{Operation: "get_page", StatusCode: http.StatusNotFound, Body: "No content found with id " + pageID}
	}
	copied := *p
	return &copied, nil
}

func (m *MockClient) UploadAttachment(ctx context.Context, pageID, filename, mediaType string, data []byte) (*Attachment, error) {
	if m.UploadErr != nil {
		return nil, m.UploadErr
	}
	if _, ok := m.Pages[pageID]; !ok {
		return nil, &APIError{Operation: "upload_attachment", StatusCode: http.StatusNotFound, Body: "No content found with id " + pageID}
	}
	m.Uploads = append(m.Uploads, UploadCall{
		PageID:    pageID,
		Filename:  filename,
		MediaType: mediaType,
		Data:      append([]byte(nil), data...),
	})

	for _, att := range m.Attachments[pageID] {
		if att.Title == filename {
			existing := att
			return &existing, nil
		}
	}
	for _, p := range m.pending[pageID] {
		if p.att.Title == filename {
			existing := p.att
			return &existing, nil
		}
	}

	att := Attachment{ID: "att" + m.newID(), Title: filename}
	att.Metadata.MediaType = mediaType
	att.Extensions.FileSize = int64(len(data))
	att.Links.Download = "/download/attachments/" + pageID + "/" + filename

	if m.AttachmentVisibleAfter > 0 {
		m.pending[pageID] = append(m.pending[pageID], pendingAttachment{att: att, remaining: m.AttachmentVisibleAfter})
	} else {
		m.Attachments[pageID] = append(m.Attachments[pageID], att)
	}
	return &att, nil
}

func (m *MockClient) ListAttachments(ctx context.Context, pageID string) ([]Attachment, error) {
	m.ListCalls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	var still []pendingAttachment
	for _, p := range m.pending[pageID] {
		if p.remaining <= 0 {
			m.Attachments[pageID] = append(m.Attachments[pageID], p.att)
			continue
		}
		p.remaining--
		still = append(still, p)
	}
	m.pending[pageID] = still

	return append([]Attachment(nil), m.Attachments[pageID]...), nil
}

func (m *MockClient) GetAttachmentDownloadURL(ctx context.Context, pageID, attachmentID string) (string, error) {
	for _, a := range m.Attachments[pageID] {
		if a.ID == attachmentID {
			return m.DownloadURL(a), nil
		}
	}
	return "", fmt.Errorf("%w: id '%s' on page %s", ErrAttachmentNotFound, attachmentID, pageID)
}

func (m *MockClient) DownloadURL(att Attachment) string {
	return "https://example.atlassian.net/wiki" + att.Links.Download
}

// Ensure MockClient implements the interface
var _ ConfluenceClient = (*MockClient)(nil)
