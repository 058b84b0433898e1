// Package relay executes parsed commands against a chat service.
package relay

import (
	"context"
	"fmt"

	"pipebot/internal/command"
)

// Presence is the activity shown for the bot.
type Presence struct {
	Kind command.ActivityKind
	Name string
}

// Dispatcher is what the relay needs from the chat service.
type Dispatcher interface {
	// Send posts text to a channel.
	Send(ctx context.Context, channelID uint64, text string) error
	// SetPresence sets the activity, or clears it when p is nil. Failures are
	// the dispatcher's to report.
	SetPresence(p *Presence)
}

// Execute runs cmd against d.
func Execute(ctx context.Context, d Dispatcher, cmd command.Command) error {
	switch c := cmd.(type) {
	case command.Message:
		return d.Send(ctx, c.ChannelID, c.Content)
	case command.Status:
		d.SetPresence(&Presence{Kind: c.Kind, Name: c.Name})
		return nil
	case command.ClearStatus:
		d.SetPresence(nil)
		return nil
	default:
		return fmt.Errorf("unsupported command %T", cmd)
	}
}
