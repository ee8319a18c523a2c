package session

import "github.com/karthikraju391/rentchat/models"

// conversation is the ordered message list of the open chat. A message whose server
// ID or client idempotency key was already seen is not added twice.
type conversation struct {
	msgs []models.Message
	seen map[string]struct{}
}

func (c *conversation) reset() {
	c.msgs = nil
	c.seen = nil
}

func (c *conversation) add(m models.Message) bool {
	if c.contains(m) {
		return false
	}
	c.msgs = append(c.msgs, m)
	c.mark(m)
	return true
}

// merge makes history the head of the list and keeps live arrivals it does not cover.
func (c *conversation) merge(history []models.Message) {
	prev := c.msgs
	c.reset()
	for _, m := range history {
		c.add(m)
	}
	for _, m := range prev {
		c.add(m)
	}
}

func (c *conversation) contains(m models.Message) bool {
	for _, k := range m.DedupKeys() {
		if _, ok := c.seen[k]; ok {
			return true
		}
	}
	return false
}

func (c *conversation) mark(m models.Message) {
	if c.seen == nil {
		c.seen = make(map[string]struct{})
	}
	for _, k := range m.DedupKeys() {
		c.seen[k] = struct{}{}
	}
}
