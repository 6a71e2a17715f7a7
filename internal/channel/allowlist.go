package channel

import "github.com/flemzord/sandy/pkg/message"

// AllowList limits which servers and channels are observed. Unlike a
// sender allow-list it is open by default: an empty or nil AllowList lets
// everything through, since the agent remembers the whole community.
type AllowList struct {
	servers  map[int64]struct{}
	channels map[int64]struct{}
}

// NewAllowList creates an AllowList over server and channel ids.
func NewAllowList(servers, channels []int64) *AllowList {
	a := &AllowList{
		servers:  make(map[int64]struct{}, len(servers)),
		channels: make(map[int64]struct{}, len(channels)),
	}
	for _, id := range servers {
		a.servers[id] = struct{}{}
	}
	for _, id := range channels {
		a.channels[id] = struct{}{}
	}
	return a
}

// IsAllowed reports whether turn may be observed.
//
// Rules:
//   - If both sets are empty, allow.
//   - If the channel id is listed, allow.
//   - If the server id is listed, allow.
//   - Otherwise, deny.
func (a *AllowList) IsAllowed(turn message.Turn) bool {
	if a == nil || (len(a.servers) == 0 && len(a.channels) == 0) {
		return true
	}
	if _, ok := a.channels[turn.Room.ChannelID]; ok {
		return true
	}
	_, ok := a.servers[turn.Room.ServerID]
	return ok
}
