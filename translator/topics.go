package translator

import (
	"fmt"

	"github.com/hugolhafner/go-spout/kafka"
)

var _ Translator = (*ByTopic)(nil)

// ByTopic routes each record to the translator registered for its topic,
// falling back to Fallback. It lets one spout emit different topics on
// different streams.
type ByTopic struct {
	Routes   map[string]Translator
	Fallback Translator
}

func (b *ByTopic) Translate(rec kafka.ConsumerRecord) (Tuple, error) {
	if t, ok := b.Routes[rec.Topic]; ok {
		return t.Translate(rec)
	}
	if b.Fallback != nil {
		return b.Fallback.Translate(rec)
	}
	return Tuple{}, fmt.Errorf("translator: no route for topic %q", rec.Topic)
}

// DeclareOutputFields declares every distinct stream once.
func (b *ByTopic) DeclareOutputFields(d Declarer) {
	seen := make(map[string]struct{})
	dd := declarerFunc(
		func(stream string, fields ...string) {
			if _, ok := seen[stream]; ok {
				return
			}
			seen[stream] = struct{}{}
			d.Declare(stream, fields...)
		},
	)

	for _, t := range b.Routes {
		t.DeclareOutputFields(dd)
	}
	if b.Fallback != nil {
		b.Fallback.DeclareOutputFields(dd)
	}
}

type declarerFunc func(stream string, fields ...string)

func (f declarerFunc) Declare(stream string, fields ...string) { f(stream, fields...) }

// Fields collects declarations, mostly for tests and configuration reports.
type Fields map[string][]string

func (f Fields) Declare(stream string, fields ...string) {
	f[stream] = fields
}
