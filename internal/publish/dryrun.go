package publish

import (
	"context"
	"fmt"

	"archpub/internal/images"
)

// plan resolves the remote state and reports the transitions a real run
// would take, without writing anything.
func (p *Publisher) plan(ctx context.Context, req Request) (*Result, error) {
	result := &Result{DryRun: true, Filename: images.AttachmentFilename(req.ImagePath)}
	result.advance(StateAbsent)

	page, err := p.client.FindPageByTitle(ctx, req.SpaceKey, req.Title)
	if err != nil {
		return result, fmt.Errorf("failed to check page '%s': %w", req.Title, err)
	}

	present := false
	if page != nil {
		result.PageID = page.ID
		result.advance(StateUpdated)
		p.logger.Info("[dry-run] would update page '%s' (id %s)", req.Title, page.ID)

		present, err = p.hasAttachment(ctx, page.ID, result.Filename)
		if err != nil {
			return result, err
		}
	} else {
		result.Created = true
		result.advance(StateCreated)
		p.logger.Info("[dry-run] would create page '%s' in space %s", req.Title, req.SpaceKey)
	}
	result.advance(StateAttachmentChecked)

	if present {
		result.advance(StateAttachmentSkipped)
		p.logger.Info("[dry-run] image '%s' already attached, would skip upload", result.Filename)
	} else {
		info, err := p.images.Describe(req.ImagePath)
		if err != nil {
			return result, err
		}
		result.AttachmentUploaded = true
		result.advance(StateAttachmentUploaded)
		p.logger.Info("[dry-run] would upload '%s' (%s, %d bytes)", info.Filename, info.MediaType, info.Size)
	}

	result.Body = p.embed(req.Content, result.Filename)
	result.advance(StateBodyPatched)
	p.logger.Info("[dry-run] would set body of '%s' (%d bytes)", req.Title, len(result.Body))

	return result, nil
}
