package spout

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hugolhafner/go-spout/translator"
)

// ComponentConfiguration reports the settings a host shows for this spout.
func (s *Spout) ComponentConfiguration() map[string]any {
	return map[string]any{
		"config.topics":                     s.subscription.Describe(),
		"config.groupid":                    s.cfg.ConsumerGroupID,
		"config.bootstrap.servers":          strings.Join(s.cfg.BootstrapServers, ","),
		"config.first.poll.offset.strategy": string(s.cfg.FirstPollOffsetStrategy),
		"config.max.uncommitted.offsets":    s.cfg.MaxUncommittedOffsets,
		"config.offsets.commit.period":      s.cfg.OffsetsCommitPeriod.String(),
		"config.auto.commit.mode":           s.cfg.AutoCommitMode,
	}
}

// DeclareOutputFields declares the streams of the configured translator.
func (s *Spout) DeclareOutputFields(d translator.Declarer) {
	s.translator.DeclareOutputFields(d)
}

func (s *Spout) String() string {
	entries := make([]*offsetEntry, 0, len(s.tracker.entries))
	for _, e := range s.tracker.entries {
		entries = append(entries, e)
	}
	sort.Slice(
		entries, func(i, j int) bool {
			return entries[i].tp.String() < entries[j].tp.String()
		},
	)

	dump := make([]string, len(entries))
	for i, e := range entries {
		dump[i] = e.String()
	}

	return fmt.Sprintf(
		"Spout{group=%s, active=%t, initialized=%t, acked=[%s], emitted=%d, uncommitted=%d}",
		s.cfg.ConsumerGroupID,
		s.active,
		s.initialized,
		strings.Join(dump, ", "),
		s.emitted.len(),
		s.uncommitted,
	)
}
