package gatehttp

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mailgate/mailgate/maildata"
)

// handleAttachment serves signed attachment URLs. The route carries no
// credentials and touches no session state; the signature in the path is the
// entire authorization. Failures are deliberately terse and uniform so the
// response never reveals whether an attachment exists, whose it is, or why a
// token was rejected.
func (h *Handler) handleAttachment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// ServeMux hands wildcard segments back already percent-decoded.
	messageID := r.PathValue("messageId")
	attachmentID := r.PathValue("attachmentId")
	expires := r.PathValue("expires")
	sig := r.PathValue("sig")

	if err := h.codec.VerifyString(messageID, attachmentID, expires, sig); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		h.log.InfoContext(ctx, "attachment.verify.fail", slog.String("reason", err.Error()))
		return
	}

	content, err := h.mail.GetAttachment(ctx, messageID, attachmentID)
	if err != nil {
		if errors.Is(err, maildata.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
		} else {
			http.Error(w, "internal error", http.StatusInternalServerError)
			h.log.ErrorContext(ctx, "attachment.fetch.fail", slog.String("err", err.Error()))
		}
		return
	}

	// The filename segment is cosmetic. It is echoed back into the
	// disposition without re-validation.
	filename := url.PathEscape(r.PathValue("filename"))
	contentType := content.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(int64(len(content.Data)), 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename*=UTF-8''%s", filename))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content.Data)

	h.log.InfoContext(ctx, "attachment.serve.ok",
		slog.String("message_id", messageID),
		slog.String("attachment_id", attachmentID),
		slog.Int("size", len(content.Data)),
	)
}
