package client

import (
	"context"

	"github.com/luma/redisclient/protocol"
)

// Publish returns the number of subscribers that received the message.
// Subscribing needs a dedicated connection, see the pubsub package.
func (c *Client) Publish(ctx context.Context, channel, message string) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("PUBLISH", channel, message)))
}

// PubSubChannels lists active channels, matching pattern when it is not
// empty.
func (c *Client) PubSubChannels(ctx context.Context, pattern string) ([]string, error) {
	cmd := protocol.NewCommand("PUBSUB CHANNELS")
	if pattern != "" {
		cmd = cmd.With(pattern)
	}

	return asStrings(c.Do(ctx, cmd))
}

func (c *Client) PubSubNumSub(ctx context.Context, channels ...string) (map[string]int64, error) {
	return asIntMap(c.Do(ctx, protocol.NewCommand("PUBSUB NUMSUB", channels...)))
}

func (c *Client) PubSubNumPat(ctx context.Context) (int64, error) {
	return asInt(c.Do(ctx, protocol.NewCommand("PUBSUB NUMPAT")))
}
