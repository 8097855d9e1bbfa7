package mailcap

import (
	"context"
	"fmt"
	"strings"

	"github.com/mailgate/mailgate/gateservice"
	"github.com/mailgate/mailgate/mcp"
	"github.com/mailgate/mailgate/sessions"
)

func (b *binder) prompts() *gateservice.PromptsContainer {
	return gateservice.NewPromptsContainer(
		gateservice.StaticPrompt{
			Descriptor: mcp.Prompt{
				Name:        "summarize_message",
				Description: "Summarize a message's content, sender and any attachments.",
				Arguments: []mcp.PromptArgument{
					{Name: "messageId", Description: "Message identifier", Required: true},
				},
			},
			Handler: b.summarizeMessage,
		},
		gateservice.StaticPrompt{
			Descriptor: mcp.Prompt{
				Name:        "draft_reply",
				Description: "Draft a reply to a message in a given tone.",
				Arguments: []mcp.PromptArgument{
					{Name: "messageId", Description: "Message identifier", Required: true},
					{Name: "tone", Description: "Desired tone, e.g. formal or friendly", Required: false},
				},
			},
			Handler: b.draftReply,
		},
	)
}

func (b *binder) summarizeMessage(ctx context.Context, session sessions.Session, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	msg, err := b.cfg.Service.GetMessage(ctx, session.Identity(), req.Arguments["messageId"])
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Summarize the following email.\n\n")
	fmt.Fprintf(&sb, "From: %s\nSubject: %s\nDate: %s\n", msg.From, msg.Subject, msg.Date.Format("2006-01-02 15:04"))
	if len(msg.Attachments) > 0 {
		names := make([]string, 0, len(msg.Attachments))
		for _, a := range msg.Attachments {
			names = append(names, a.Filename)
		}
		fmt.Fprintf(&sb, "Attachments: %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(&sb, "\n%s", msg.Body)

	return &mcp.GetPromptResult{
		Description: "Summarize " + msg.Subject,
		Messages: []mcp.PromptMessage{
			{Role: mcp.RoleUser, Content: mcp.ContentBlock{Type: "text", Text: sb.String()}},
		},
	}, nil
}

func (b *binder) draftReply(ctx context.Context, session sessions.Session, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	msg, err := b.cfg.Service.GetMessage(ctx, session.Identity(), req.Arguments["messageId"])
	if err != nil {
		return nil, err
	}
	tone := req.Arguments["tone"]
	if tone == "" {
		tone = "neutral"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Draft a %s reply to the following email. Address the sender's points directly.\n\n", tone)
	fmt.Fprintf(&sb, "From: %s\nSubject: %s\n\n%s", msg.From, msg.Subject, msg.Body)

	return &mcp.GetPromptResult{
		Description: "Reply to " + msg.Subject,
		Messages: []mcp.PromptMessage{
			{Role: mcp.RoleUser, Content: mcp.ContentBlock{Type: "text", Text: sb.String()}},
		},
	}, nil
}
