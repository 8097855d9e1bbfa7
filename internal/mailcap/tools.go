package mailcap

import (
	"context"
	"fmt"

	"github.com/mailgate/mailgate/gateservice"
	"github.com/mailgate/mailgate/maildata"
	"github.com/mailgate/mailgate/mcp"
	"github.com/mailgate/mailgate/sessions"
)

type listMailboxesArgs struct{}

type listMessagesArgs struct {
	Mailbox string `json:"mailbox" jsonschema:"minLength=1,description=Mailbox path to list"`
	Offset  int    `json:"offset,omitempty" jsonschema:"description=Number of messages to skip"`
	Limit   int    `json:"limit,omitempty" jsonschema:"description=Maximum messages to return,default=50"`
}

type searchMessagesArgs struct {
	Query string `json:"query" jsonschema:"minLength=1,description=Free-text search over subject and sender"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum messages to return,default=50"`
}

type messageIDArgs struct {
	MessageID string `json:"messageId" jsonschema:"minLength=1,description=Message identifier"`
}

type attachmentURLArgs struct {
	MessageID    string `json:"messageId" jsonschema:"minLength=1,description=Message identifier"`
	AttachmentID string `json:"attachmentId" jsonschema:"minLength=1,description=Attachment identifier within the message"`
}

type markMessageArgs struct {
	MessageID string `json:"messageId" jsonschema:"minLength=1,description=Message identifier"`
	Flag      string `json:"flag" jsonschema:"description=Flag to change (seen or flagged)"`
	Set       bool   `json:"set" jsonschema:"description=True to set the flag and false to clear it,default=true"`
}

type moveMessageArgs struct {
	MessageID string `json:"messageId" jsonschema:"minLength=1,description=Message identifier"`
	Mailbox   string `json:"mailbox" jsonschema:"minLength=1,description=Destination mailbox path"`
}

func (b *binder) tools() *gateservice.ToolsContainer {
	return gateservice.NewToolsContainer(
		gateservice.NewTool("listMailboxes", b.listMailboxes,
			gateservice.WithToolDescription("List the account's mailboxes with message counts.")),
		gateservice.NewTool("listMessages", b.listMessages,
			gateservice.WithToolDescription("List messages in a mailbox, newest first, with offset/limit paging.")),
		gateservice.NewTool("searchMessages", b.searchMessages,
			gateservice.WithToolDescription("Search messages across all mailboxes by subject and sender.")),
		gateservice.NewTool("getMessage", b.getMessage,
			gateservice.WithToolDescription("Fetch a message's full body and attachment metadata.")),
		gateservice.NewTool("getThread", b.getThread,
			gateservice.WithToolDescription("List the conversation thread a message belongs to.")),
		gateservice.NewTool("getAttachmentUrl", b.getAttachmentURL,
			gateservice.WithToolDescription("Issue a time-limited download URL for an attachment. The URL needs no credentials and expires on its own.")),
		gateservice.NewTool("markMessage", b.markMessage,
			gateservice.WithToolDescription("Set or clear a message flag (seen, flagged)."),
			gateservice.WithRequiresWrite()),
		gateservice.NewTool("moveMessage", b.moveMessage,
			gateservice.WithToolDescription("Move a message to another mailbox."),
			gateservice.WithRequiresWrite()),
		gateservice.NewTool("deleteMessage", b.deleteMessage,
			gateservice.WithToolDescription("Delete a message permanently."),
			gateservice.WithRequiresWrite()),
	)
}

func (b *binder) listMailboxes(ctx context.Context, session sessions.Session, _ listMailboxesArgs) (*mcp.CallToolResult, error) {
	boxes, err := b.cfg.Service.ListMailboxes(ctx, session.Identity())
	if err != nil {
		return nil, err
	}
	return gateservice.JSONResult(map[string]any{"mailboxes": boxes})
}

func (b *binder) listMessages(ctx context.Context, session sessions.Session, args listMessagesArgs) (*mcp.CallToolResult, error) {
	if args.Mailbox == "" {
		return nil, fmt.Errorf("%w: mailbox is required", gateservice.ErrInvalidArguments)
	}
	if args.Offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", gateservice.ErrInvalidArguments)
	}
	limit := clampLimit(args.Limit)
	msgs, err := b.cfg.Service.ListMessages(ctx, session.Identity(), args.Mailbox, args.Offset, limit)
	if err != nil {
		return nil, err
	}
	return gateservice.JSONResult(map[string]any{"messages": msgs})
}

func (b *binder) searchMessages(ctx context.Context, session sessions.Session, args searchMessagesArgs) (*mcp.CallToolResult, error) {
	if args.Query == "" {
		return nil, fmt.Errorf("%w: query is required", gateservice.ErrInvalidArguments)
	}
	limit := clampLimit(args.Limit)
	msgs, err := b.cfg.Service.SearchMessages(ctx, session.Identity(), args.Query, limit)
	if err != nil {
		return nil, err
	}
	return gateservice.JSONResult(map[string]any{"messages": msgs})
}

func (b *binder) getMessage(ctx context.Context, session sessions.Session, args messageIDArgs) (*mcp.CallToolResult, error) {
	msg, err := b.cfg.Service.GetMessage(ctx, session.Identity(), args.MessageID)
	if err != nil {
		return nil, err
	}
	return gateservice.JSONResult(msg)
}

func (b *binder) getThread(ctx context.Context, session sessions.Session, args messageIDArgs) (*mcp.CallToolResult, error) {
	msgs, err := b.cfg.Service.GetThread(ctx, session.Identity(), args.MessageID)
	if err != nil {
		return nil, err
	}
	return gateservice.JSONResult(map[string]any{"messages": msgs})
}

func (b *binder) getAttachmentURL(ctx context.Context, session sessions.Session, args attachmentURLArgs) (*mcp.CallToolResult, error) {
	// Ownership check before any URL is minted. The delivery endpoint itself
	// is unauthenticated, so this is the only place identity is enforced.
	att, err := b.cfg.Service.GetOwnedAttachment(ctx, session.Identity(), args.MessageID, args.AttachmentID)
	if err != nil {
		return nil, err
	}
	url := b.cfg.Codec.Issue(args.MessageID, args.AttachmentID, att.Filename, b.cfg.PublicEndpoint, b.cfg.AttachmentTTL)
	return gateservice.JSONResult(map[string]any{
		"url":         url,
		"filename":    att.Filename,
		"contentType": att.ContentType,
		"size":        att.Size,
	})
}

func (b *binder) markMessage(ctx context.Context, session sessions.Session, args markMessageArgs) (*mcp.CallToolResult, error) {
	switch args.Flag {
	case maildata.FlagSeen, maildata.FlagFlagged:
	default:
		return nil, fmt.Errorf("%w: unknown flag %q", gateservice.ErrInvalidArguments, args.Flag)
	}
	if err := b.cfg.Service.MarkMessage(ctx, session.Identity(), args.MessageID, args.Flag, args.Set); err != nil {
		return nil, err
	}
	return gateservice.TextResult(fmt.Sprintf("flag %q updated on message %s", args.Flag, args.MessageID)), nil
}

func (b *binder) moveMessage(ctx context.Context, session sessions.Session, args moveMessageArgs) (*mcp.CallToolResult, error) {
	if args.Mailbox == "" {
		return nil, fmt.Errorf("%w: mailbox is required", gateservice.ErrInvalidArguments)
	}
	if err := b.cfg.Service.MoveMessage(ctx, session.Identity(), args.MessageID, args.Mailbox); err != nil {
		return nil, err
	}
	return gateservice.TextResult(fmt.Sprintf("message %s moved to %s", args.MessageID, args.Mailbox)), nil
}

func (b *binder) deleteMessage(ctx context.Context, session sessions.Session, args messageIDArgs) (*mcp.CallToolResult, error) {
	if err := b.cfg.Service.DeleteMessage(ctx, session.Identity(), args.MessageID); err != nil {
		return nil, err
	}
	return gateservice.TextResult(fmt.Sprintf("message %s deleted", args.MessageID)), nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
