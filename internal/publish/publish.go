// Package publish creates or updates a Confluence page, attaches an image to
// it and embeds the image in the page body. Every step is safe to repeat.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"archpub/internal/config"
	"archpub/internal/confluence"
	"archpub/internal/images"
	"archpub/internal/metrics"
	"archpub/internal/storage"
	"archpub/internal/tracing"
	"archpub/pkg/logger"
)

// State is a step of the per-page publish state machine.
type State string

const (
	StateAbsent             State = "Absent"
	StateCreated            State = "Created"
	StateUpdated            State = "Updated"
	StateAttachmentChecked  State = "AttachmentChecked"
	StateAttachmentUploaded State = "AttachmentUploaded"
	StateAttachmentSkipped  State = "AttachmentSkipped"
	StateBodyPatched        State = "BodyPatched"
)

// ErrAttachmentNotReady is returned when an uploaded attachment does not show
// up in the page's attachment list before the settle timeout.
var ErrAttachmentNotReady = errors.New("attachment not ready")

type Options struct {
	DryRun        bool
	EmbedPolicy   string // config.EmbedAppend or config.EmbedSkipExisting
	SettleTimeout time.Duration
	PollInterval  time.Duration
}

type Request struct {
	SpaceKey  string
	Title     string
	Content   string
	ImagePath string
}

type Result struct {
	PageID             string
	Created            bool
	AttachmentUploaded bool
	Filename           string
	Body               string
	State              State
	Transitions        []State
	DryRun             bool
}

func (r *Result) advance(s State) {
	r.State = s
	r.Transitions = append(r.Transitions, s)
}

type Publisher struct {
	client confluence.ConfluenceClient
	images *images.Processor
	opts   Options
	logger *logger.Logger
}

func New(client confluence.ConfluenceClient, imgs *images.Processor, opts Options, log *logger.Logger) *Publisher {
	if opts.EmbedPolicy == "" {
		opts.EmbedPolicy = config.EmbedAppend
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if log == nil {
		log = logger.New(false)
	}
	return &Publisher{
		client: client,
		images: imgs,
		opts:   opts,
		logger: log,
	}
}

func (req Request) validate() error {
	if req.SpaceKey == "" {
		return fmt.Errorf("space key is required")
	}
	if req.Title == "" {
		return fmt.Errorf("page title is required")
	}
	if req.ImagePath == "" {
		return fmt.Errorf("image path is required")
	}
	return nil
}

// Publish drives one page through Absent -> Created|Updated ->
// AttachmentChecked -> AttachmentUploaded|AttachmentSkipped -> BodyPatched.
// The body update at the end runs on every call.
func (p *Publisher) Publish(ctx context.Context, req Request) (result *Result, err error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	// A file that can never be uploaded must fail before any page write.
	if _, err := p.images.Check(req.ImagePath); err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "publish")
	tracing.AddPageAttributes(span, req.SpaceKey, req.Title)
	span.SetAttributes(attribute.Bool("publish.dry_run", p.opts.DryRun))
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	if p.opts.DryRun {
		return p.plan(ctx, req)
	}

	result = &Result{Filename: images.AttachmentFilename(req.ImagePath)}
	result.advance(StateAbsent)

	pageID, err := p.ensurePage(ctx, req, result)
	if err != nil {
		return result, err
	}
	result.PageID = pageID
	span.SetAttributes(attribute.String("confluence.page.id", pageID))

	present, err := p.hasAttachment(ctx, pageID, result.Filename)
	if err != nil {
		return result, err
	}
	result.advance(StateAttachmentChecked)

	if present {
		p.logger.Info("Image '%s' already attached to page %s, skipping upload", result.Filename, pageID)
		metrics.AttachmentsTotal.WithLabelValues("skipped").Inc()
		result.advance(StateAttachmentSkipped)
	} else {
		if err := p.upload(ctx, pageID, req.ImagePath); err != nil {
			return result, err
		}
		metrics.AttachmentsTotal.WithLabelValues("uploaded").Inc()
		result.AttachmentUploaded = true
		result.advance(StateAttachmentUploaded)
	}

	if err := p.waitForAttachment(ctx, pageID, result.Filename); err != nil {
		return result, err
	}

	result.Body = p.embed(req.Content, result.Filename)
	if _, err := p.client.UpdatePage(ctx, pageID, req.Title, result.Body); err != nil {
		return result, fmt.Errorf("failed to embed image in page '%s': %w", req.Title, err)
	}
	result.advance(StateBodyPatched)
	p.logger.Info("Page '%s' updated with image '%s'", req.Title, result.Filename)

	return result, nil
}

// ensurePage creates or overwrites the page and returns its ID. After a
// create the ID is resolved again by title rather than taken from the
// create response.
func (p *Publisher) ensurePage(ctx context.Context, req Request, result *Result) (string, error) {
	exists, err := p.client.PageExists(ctx, req.SpaceKey, req.Title)
	if err != nil {
		return "", fmt.Errorf("failed to check page '%s': %w", req.Title, err)
	}

	if exists {
		pageID, err := p.client.GetPageID(ctx, req.SpaceKey, req.Title)
		if err != nil {
			return "", err
		}
		if _, err := p.client.UpdatePage(ctx, pageID, req.Title, req.Content); err != nil {
			return "", fmt.Errorf("failed to update page '%s': %w", req.Title, err)
		}
		p.logger.Info("Page '%s' updated (id %s)", req.Title, pageID)
		metrics.PagesTotal.WithLabelValues("updated").Inc()
		result.advance(StateUpdated)
		return pageID, nil
	}

	if _, err := p.client.CreatePage(ctx, req.SpaceKey, req.Title, req.Content); err != nil {
		return "", fmt.Errorf("failed to create page '%s': %w", req.Title, err)
	}
	pageID, err := p.client.GetPageID(ctx, req.SpaceKey, req.Title)
	if err != nil {
		return "", fmt.Errorf("page '%s' was created but could not be resolved: %w", req.Title, err)
	}
	p.logger.Info("Page '%s' created (id %s)", req.Title, pageID)
	metrics.PagesTotal.WithLabelValues("created").Inc()
	result.Created = true
	result.advance(StateCreated)
	return pageID, nil
}

func (p *Publisher) hasAttachment(ctx context.Context, pageID, filename string) (bool, error) {
	attachments, err := p.client.ListAttachments(ctx, pageID)
	if err != nil {
		return false, fmt.Errorf("failed to list attachments on page %s: %w", pageID, err)
	}
	return containsAttachment(attachments, filename), nil
}

func (p *Publisher) upload(ctx context.Context, pageID, imagePath string) error {
	info, err := p.images.Describe(imagePath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read image %s: %w", imagePath, err)
	}

	if _, err := p.client.UploadAttachment(ctx, pageID, info.Filename, info.MediaType, data); err != nil {
		return fmt.Errorf("failed to upload '%s': %w", info.Filename, err)
	}
	p.logger.Info("Image '%s' uploaded to page %s (%d bytes)", info.Filename, pageID, len(data))
	return nil
}

func (p *Publisher) embed(content, filename string) string {
	if p.opts.EmbedPolicy == config.EmbedSkipExisting && storage.ContainsImageMacro(content, filename) {
		p.logger.Debug("Body already embeds '%s', not appending macro", filename)
		return content
	}
	return storage.AppendImageMacro(content, filename)
}

func (p *Publisher) waitForAttachment(ctx context.Context, pageID, filename string) error {
	started := time.Now()
	err := WaitForAttachment(ctx, p.client, pageID, filename, p.opts.SettleTimeout, p.opts.PollInterval)
	if errors.Is(err, ErrAttachmentNotReady) {
		metrics.AttachmentWaitTimeouts.Inc()
		return err
	}
	if err != nil {
		return err
	}
	metrics.AttachmentWait.Observe(time.Since(started).Seconds())
	p.logger.Debug("Attachment '%s' visible after %s", filename, time.Since(started).Round(time.Millisecond))
	return nil
}

// WaitForAttachment polls the page's attachment list until filename appears.
// It gives up with ErrAttachmentNotReady once timeout elapses; a timeout of
// zero means a single check. Cancelling ctx stops the wait with ctx's error.
func WaitForAttachment(ctx context.Context, client confluence.ConfluenceClient, pageID, filename string, timeout, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		attachments, err := client.ListAttachments(ctx, pageID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to list attachments on page %s: %w", pageID, err)
		}
		if containsAttachment(attachments, filename) {
			return nil
		}
		if timeout <= 0 {
			return fmt.Errorf("%w: '%s' on page %s", ErrAttachmentNotReady, filename, pageID)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w: '%s' on page %s after %s", ErrAttachmentNotReady, filename, pageID, timeout)
		case <-ticker.C:
		}
	}
}

func containsAttachment(attachments []confluence.Attachment, filename string) bool {
	for _, a := range attachments {
		if a.Title == filename {
			return true
		}
	}
	return false
}
