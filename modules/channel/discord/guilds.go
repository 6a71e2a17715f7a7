package discord

import "sync"

// guildCache keeps the names the turn stream needs: guilds and their
// channels.
type guildCache struct {
	mu       sync.RWMutex
	guilds   map[Snowflake]string
	channels map[Snowflake]string
}

func newGuildCache() *guildCache {
	return &guildCache{
		guilds:   make(map[Snowflake]string),
		channels: make(map[Snowflake]string),
	}
}

func (c *guildCache) putGuild(g Guild) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g.Name != "" {
		c.guilds[g.ID] = g.Name
	}
	for _, ch := range g.Channels {
		c.channels[ch.ID] = ch.Name
	}
	for _, ch := range g.Threads {
		c.channels[ch.ID] = ch.Name
	}
}

func (c *guildCache) putChannel(ch Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[ch.ID] = ch.Name
}

func (c *guildCache) guildName(id Snowflake) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.guilds[id]
}

func (c *guildCache) channelName(id Snowflake) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels[id]
}

func (c *guildCache) len() (guilds, channels int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.guilds), len(c.channels)
}
