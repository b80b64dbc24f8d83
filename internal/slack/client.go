package slack

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goslack "github.com/slack-go/slack"

	"github.com/agenthands/micromatch/internal/config"
	"github.com/agenthands/micromatch/internal/core/notify"
	"github.com/agenthands/micromatch/internal/core/provision"
)

// Client adapts the Slack Web API to the room transport and the participant
// messenger.
type Client struct {
	api *goslack.Client
}

func New(cfg config.SlackConfig) *Client {
	var opts []goslack.Option
	if cfg.APIURL != "" {
		url := cfg.APIURL
		if !strings.HasSuffix(url, "/") {
			url += "/"
		}
		opts = append(opts, goslack.OptionAPIURL(url))
	}
	return &Client{api: goslack.New(cfg.BotToken, opts...)}
}

func (c *Client) CreateRoom(ctx context.Context, name string, private bool) (string, error) {
	ch, err := c.api.CreateConversationContext(ctx, goslack.CreateConversationParams{
		ChannelName: name,
		IsPrivate:   private,
	})
	if err != nil {
		return "", mapError(err)
	}
	return ch.ID, nil
}

func (c *Client) InviteMembers(ctx context.Context, roomID string, participantIDs []string) error {
	if _, err := c.api.InviteUsersToConversationContext(ctx, roomID, participantIDs...); err != nil {
		return mapError(err)
	}
	return nil
}

func (c *Client) PostMessage(ctx context.Context, roomID, text string) error {
	if _, _, err := c.api.PostMessageContext(ctx, roomID, goslack.MsgOptionText(text, false)); err != nil {
		return mapError(err)
	}
	return nil
}

// SendText posts a direct message; Slack opens the DM when the channel is a
// user ID.
func (c *Client) SendText(ctx context.Context, userID, text string) error {
	return c.PostMessage(ctx, userID, text)
}

func (c *Client) SendOffer(ctx context.Context, userID, text string, offer notify.Offer) error {
	_, _, err := c.api.PostMessageContext(ctx, userID,
		goslack.MsgOptionText(text, false),
		goslack.MsgOptionBlocks(OfferBlocks(offer)...),
	)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// UserName resolves a display name, falling back to the user ID.
func (c *Client) UserName(ctx context.Context, userID string) string {
	u, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil || u == nil {
		return userID
	}
	for _, name := range []string{u.Profile.DisplayName, u.Profile.RealName, u.RealName, u.Name} {
		if name != "" {
			return name
		}
	}
	return userID
}

// OfferBlocks renders an offer as a section followed by one action block
// per row.
func OfferBlocks(offer notify.Offer) []goslack.Block {
	blocks := []goslack.Block{
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, offer.Prompt, false, false), nil, nil),
	}
	for i, row := range offer.Rows {
		elements := make([]goslack.BlockElement, 0, len(row))
		for _, b := range row {
			elements = append(elements, goslack.NewButtonBlockElement(
				b.ActionID, b.Value,
				goslack.NewTextBlockObject(goslack.PlainTextType, b.Label, false, false),
			))
		}
		blocks = append(blocks, goslack.NewActionBlock(fmt.Sprintf("offer_%d", i), elements...))
	}
	return blocks
}

// mapError turns Slack error codes the provisioner cares about into its
// sentinels.
func mapError(err error) error {
	var apiErr goslack.SlackErrorResponse
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Err {
	case "name_taken":
		return fmt.Errorf("slack: %s: %w", apiErr.Err, provision.ErrNameTaken)
	case "already_in_channel", "cant_invite_self":
		return fmt.Errorf("slack: %s: %w", apiErr.Err, provision.ErrAlreadyMember)
	default:
		return fmt.Errorf("slack: %w", err)
	}
}

var (
	_ provision.Transport = (*Client)(nil)
	_ notify.Messenger    = (*Client)(nil)
)
