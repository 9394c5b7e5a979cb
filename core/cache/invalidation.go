package cache

import "time"

// InvalidationMessage is the wire shape published on the InvalidationBus
// whenever a modifying operation observably changes L2's state, per §3
// and §4.2. PublisherID lets a subscriber drop its own messages.
type InvalidationMessage struct {
	PublisherID []byte     `json:"publisher_id"`
	FlushAll    bool       `json:"flush_all,omitempty"`
	Keys        []string   `json:"keys,omitempty"`
	Prefixes    []string   `json:"prefixes,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func flushMessage(publisherID []byte) InvalidationMessage {
	return InvalidationMessage{PublisherID: publisherID, FlushAll: true}
}

func keyedMessage(publisherID []byte, keys []string, expiresAt *time.Time) InvalidationMessage {
	return InvalidationMessage{PublisherID: publisherID, Keys: keys, ExpiresAt: expiresAt}
}

func prefixMessage(publisherID []byte, prefixes []string, keys []string, expiresAt *time.Time) InvalidationMessage {
	return InvalidationMessage{PublisherID: publisherID, Prefixes: prefixes, Keys: keys, ExpiresAt: expiresAt}
}
