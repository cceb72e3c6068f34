package confluence

import "context"

// ConfluenceClient defines the interface for Confluence operations
type ConfluenceClient interface {
	CreatePage(ctx context.Context, spaceKey, title, content string) (*Page, error)
	UpdatePage(ctx context.Context, pageID, title, content string) (*Page, error)
	FindPageByTitle(ctx context.Context, spaceKey, title string) (*Page, error)
	PageExists(ctx context.Context, spaceKey, title string) (bool, error)
	GetPageID(ctx context.Context, spaceKey, title string) (string, error)
	GetPage(ctx context.Context, pageID string) (*Page, error)
	UploadAttachment(ctx context.Context, pageID, filename, mediaType string, data []byte) (*Attachment, error)
	ListAttachments(ctx context.Context, pageID string) ([]Attachment, error)
	GetAttachmentDownloadURL(ctx context.Context, pageID, attachmentID string) (string, error)
	DownloadURL(att Attachment) string
}

// Ensure Client implements the interface
var _ ConfluenceClient = (*Client)(nil)
