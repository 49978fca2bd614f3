package kafka

import (
	"regexp"
	"strings"
)

// Subscription selects the topics a Source consumes. It is either
// NamedTopics or Wildcard; no other implementations exist.
type Subscription interface {
	// Describe renders the subscription for configuration reports.
	Describe() string
	// Matches reports whether topic belongs to the subscription.
	Matches(topic string) bool

	// consumeTopics returns what the client subscribes to and whether the
	// entries are regular expressions.
	consumeTopics() ([]string, bool)
}

var (
	_ Subscription = NamedTopics{}
	_ Subscription = Wildcard{}
)

type NamedTopics struct {
	Topics []string
}

func Topics(topics ...string) NamedTopics {
	return NamedTopics{Topics: topics}
}

func (n NamedTopics) Describe() string {
	var b strings.Builder
	for _, t := range n.Topics {
		b.WriteString(t)
		b.WriteString(",")
	}
	return b.String()
}

func (n NamedTopics) Matches(topic string) bool {
	for _, t := range n.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

func (n NamedTopics) consumeTopics() ([]string, bool) { return n.Topics, false }

type Wildcard struct {
	Pattern *regexp.Regexp
}

func Pattern(expr string) (Wildcard, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Wildcard{}, err
	}
	return Wildcard{Pattern: re}, nil
}

func (w Wildcard) Describe() string {
	if w.Pattern == nil {
		return ""
	}
	return w.Pattern.String()
}

func (w Wildcard) Matches(topic string) bool {
	return w.Pattern != nil && w.Pattern.MatchString(topic)
}

func (w Wildcard) consumeTopics() ([]string, bool) { return []string{w.Describe()}, true }
