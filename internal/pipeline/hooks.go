package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/lexharvest/internal/harvest"
)

func (h *Harvester) runHooks(ctx context.Context, doc harvest.StoredDocument, payload []byte) {
	if h.hooks.Mirror == nil && h.hooks.Ledger == nil && h.hooks.Notifier == nil {
		return
	}
	if h.hooks.Hasher != nil {
		hash, err := h.hooks.Hasher.Hash(payload)
		if err != nil {
			h.logger.Warn("hash stored record failed", zap.String("logical_key", doc.LogicalKey), zap.Error(err))
		}
		doc.ContentHash = hash
	}

	mirrorURI := ""
	if h.hooks.Mirror != nil {
		uri, err := h.hooks.Mirror.MirrorRecord(ctx, doc, payload)
		if err != nil {
			h.logger.Warn("mirror stored record failed", zap.String("logical_key", doc.LogicalKey), zap.Error(err))
		} else {
			mirrorURI = uri
		}
	}
	if h.hooks.Ledger != nil {
		if err := h.hooks.Ledger.RecordStored(ctx, doc); err != nil {
			h.logger.Warn("ledger insert failed", zap.String("logical_key", doc.LogicalKey), zap.Error(err))
		}
	}
	h.publishStored(ctx, doc, mirrorURI)
}

func (h *Harvester) publishStored(ctx context.Context, doc harvest.StoredDocument, mirrorURI string) {
	if h.cfg.Topic == "" || h.hooks.Notifier == nil {
		return
	}
	payload := map[string]any{
		"celex_number": doc.LogicalKey,
		"identifier":   doc.Identifier.String(),
		"period":       doc.Period.String(),
		"location":     doc.Location.String(),
		"mirror_uri":   mirrorURI,
		"hash":         doc.ContentHash,
		"size":         doc.Size,
		"timestamp":    doc.StoredAt.Format(time.RFC3339),
	}
	msgID, err := h.hooks.Notifier.Publish(ctx, h.cfg.Topic, payload)
	if err != nil {
		h.logger.Warn("publish stored record failed", zap.String("logical_key", doc.LogicalKey), zap.Error(err))
		return
	}
	h.logger.Info("stored record published",
		zap.String("logical_key", doc.LogicalKey),
		zap.String("message_id", msgID),
		zap.String("hash", doc.ContentHash),
	)
}
