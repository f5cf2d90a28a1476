// Package filter builds server-side subscription filters from the wire
// types a consumer understands.
package filter

import (
	"regexp"
	"strings"

	"github.com/roach88/orderflow/internal/logstore"
)

// MessageFilter is a whitelist of wire event-type names.
type MessageFilter struct {
	messages []string
}

// New creates a filter accepting exactly the given wire types.
func New(messages ...string) MessageFilter {
	return MessageFilter{messages: append([]string(nil), messages...)}
}

// Messages returns the accepted wire types in the order given.
func (f MessageFilter) Messages() []string {
	return append([]string(nil), f.messages...)
}

// RegularExpression is the anchored alternation ^a$|^b$|... over the
// accepted names. Names are quoted, so the "." in "sent.confirm-order"
// matches only a literal dot. An empty filter matches nothing.
func (f MessageFilter) RegularExpression() string {
	if len(f.messages) == 0 {
		return `^\b$`
	}
	parts := make([]string, len(f.messages))
	for i, m := range f.messages {
		parts[i] = "^" + regexp.QuoteMeta(m) + "$"
	}
	return strings.Join(parts, "|")
}

// ToServerFilter is the descriptor a persistent subscription is created with.
func (f MessageFilter) ToServerFilter(checkpointInterval int) logstore.Filter {
	return logstore.Filter{
		CheckpointInterval: checkpointInterval,
		FilterOn:           logstore.FilterOnEventType,
		Regex:              f.RegularExpression(),
	}
}
