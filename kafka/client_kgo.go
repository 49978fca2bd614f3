package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hugolhafner/go-spout/logger"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

var _ Source = (*KgoSource)(nil)

type KgoSourceConfig struct {
	BootstrapServers   []string
	GroupID            string
	ClientID           string
	SessionTimeout     time.Duration
	HeartbeatInterval  time.Duration
	AutoCommit         bool
	AutoCommitInterval time.Duration
	MaxPollRecords     int

	Logger logger.Logger
}

func defaultKgoConfig() KgoSourceConfig {
	return KgoSourceConfig{
		BootstrapServers:   []string{"localhost:9092"},
		GroupID:            "go-spout",
		SessionTimeout:     45 * time.Second,
		HeartbeatInterval:  3 * time.Second,
		AutoCommitInterval: 5 * time.Second,
		MaxPollRecords:     500,
		Logger:             logger.NewNoopLogger(),
	}
}

type KgoOption func(*KgoSourceConfig)

func WithBootstrapServers(servers []string) KgoOption {
	return func(cfg *KgoSourceConfig) {
		cfg.BootstrapServers = servers
	}
}

func WithGroupID(id string) KgoOption {
	return func(cfg *KgoSourceConfig) {
		cfg.GroupID = id
	}
}

func WithClientID(id string) KgoOption {
	return func(cfg *KgoSourceConfig) {
		cfg.ClientID = id
	}
}

func WithAutoCommit(enabled bool) KgoOption {
	return func(cfg *KgoSourceConfig) {
		cfg.AutoCommit = enabled
	}
}

func WithMaxPollRecords(n int) KgoOption {
	return func(cfg *KgoSourceConfig) {
		if n > 0 {
			cfg.MaxPollRecords = n
		}
	}
}

func WithLogger(l logger.Logger) KgoOption {
	return func(cfg *KgoSourceConfig) {
		cfg.Logger = l
	}
}

// NewKgoSourceFactory adapts the spout-level SourceConfig into KgoOptions.
// Extra options are applied last.
func NewKgoSourceFactory(extra ...KgoOption) SourceFactory {
	return func(cfg SourceConfig) (Source, error) {
		opts := []KgoOption{
			WithBootstrapServers(cfg.BootstrapServers),
			WithGroupID(cfg.GroupID),
			WithAutoCommit(cfg.AutoCommit),
			WithMaxPollRecords(cfg.MaxPollRecords),
		}
		return NewKgoSource(append(opts, extra...)...), nil
	}
}

type eventKind int

const (
	eventAssigned eventKind = iota
	eventRevoked
)

type rebalanceEvent struct {
	kind       eventKind
	partitions []TopicPartition
	done       chan struct{}
}

// KgoSource is a Source backed by a franz-go group consumer.
//
// franz-go runs rebalance hooks on its own goroutine. KgoSource parks them on
// a channel, wakes the in-flight Poll and runs the listener on the owning
// goroutine from Poll or Dispatch, so listeners observe the same single-owner
// contract as the rest of the Source.
//
// franz-go fetches committed offsets after the assigned hook returns and
// starts consuming from them, so seeks made by OnPartitionsAssigned are held
// back and applied through AdjustFetchOffsetsFn instead of SetOffsets.
type KgoSource struct {
	config KgoSourceConfig

	client *kgo.Client
	admin  *kadm.Client

	mu         sync.Mutex
	listener   RebalanceListener
	pollCancel context.CancelFunc
	closed     bool
	// start offsets chosen during assignment, consumed by adjustFetchOffsets
	pending map[TopicPartition]int64

	events chan rebalanceEvent
	quit   chan struct{}

	// owned by the polling goroutine
	positions map[TopicPartition]int64
	assigning bool

	logger logger.Logger
}

// NewKgoSource builds an unconnected source. The franz-go client is created on
// Subscribe because topic matching mode is fixed at client construction.
func NewKgoSource(opts ...KgoOption) *KgoSource {
	cfg := defaultKgoConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &KgoSource{
		config:    cfg,
		pending:   make(map[TopicPartition]int64),
		events:    make(chan rebalanceEvent, 4),
		quit:      make(chan struct{}),
		positions: make(map[TopicPartition]int64),
		logger:    cfg.Logger.With("component", "kgo-source"),
	}
}

func (k *KgoSource) Subscribe(sub Subscription, listener RebalanceListener) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return ErrClosed
	}
	if k.client != nil {
		return ErrAlreadySubscribed
	}

	topics, regex := sub.consumeTopics()

	kgoOpts := []kgo.Opt{
		kgo.SeedBrokers(k.config.BootstrapServers...),
		kgo.ConsumerGroup(k.config.GroupID),
		kgo.ConsumeTopics(topics...),
		// eager: every rebalance revokes the full assignment first
		kgo.Balancers(kgo.StickyBalancer()),
		kgo.OnPartitionsAssigned(k.onAssigned),
		kgo.OnPartitionsRevoked(k.onRevoked),
		kgo.OnPartitionsLost(k.onRevoked),
		kgo.AdjustFetchOffsetsFn(k.adjustFetchOffsets),
		kgo.WithLogger(newKgoLogBridge(k.config.Logger, k.config.GroupID)),
		kgo.SessionTimeout(k.config.SessionTimeout),
		kgo.HeartbeatInterval(k.config.HeartbeatInterval),
	}
	if regex {
		kgoOpts = append(kgoOpts, kgo.ConsumeRegex())
	}
	if k.config.ClientID != "" {
		kgoOpts = append(kgoOpts, kgo.ClientID(k.config.ClientID))
	}
	if k.config.AutoCommit {
		kgoOpts = append(kgoOpts, kgo.AutoCommitInterval(k.config.AutoCommitInterval))
	} else {
		kgoOpts = append(kgoOpts, kgo.DisableAutoCommit())
	}

	client, err := kgo.NewClient(kgoOpts...)
	if err != nil {
		return fmt.Errorf("create kgo client: %w", err)
	}

	k.client = client
	k.admin = kadm.NewClient(client)
	k.listener = listener

	k.logger.Info("Subscribed", "subscription", sub.Describe(), "regex", regex, "group", k.config.GroupID)
	return nil
}

func (k *KgoSource) onAssigned(ctx context.Context, _ *kgo.Client, assigned map[string][]int32) {
	k.handoff(ctx, eventAssigned, mapToTopicPartitions(assigned))
}

func (k *KgoSource) onRevoked(ctx context.Context, _ *kgo.Client, revoked map[string][]int32) {
	k.handoff(ctx, eventRevoked, mapToTopicPartitions(revoked))
}

func (k *KgoSource) handoff(ctx context.Context, kind eventKind, tps []TopicPartition) {
	k.mu.Lock()
	closed := k.closed
	k.mu.Unlock()

	// the owner already did its final commit before closing
	if closed || len(tps) == 0 {
		return
	}

	ev := rebalanceEvent{kind: kind, partitions: tps, done: make(chan struct{})}
	select {
	case k.events <- ev:
	case <-k.quit:
		return
	case <-ctx.Done():
		return
	}

	k.wakePoll()

	// Close must not wait on an owner that stopped dispatching
	select {
	case <-ev.done:
	case <-k.quit:
	case <-ctx.Done():
	}
}

// adjustFetchOffsets runs after franz-go fetched the committed offsets of a new
// assignment and replaces them with the positions the listener sought to.
func (k *KgoSource) adjustFetchOffsets(
	_ context.Context,
	offsets map[string]map[int32]kgo.Offset,
) (map[string]map[int32]kgo.Offset, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for topic, partitions := range offsets {
		for partition := range partitions {
			tp := TopicPartition{Topic: topic, Partition: partition}
			at, ok := k.pending[tp]
			if !ok {
				continue
			}
			partitions[partition] = kgo.NewOffset().At(at).WithEpoch(-1)
			delete(k.pending, tp)
			k.logger.Debug("Starting partition at sought offset", "partition", tp.String(), "offset", at)
		}
	}
	return offsets, nil
}

func (k *KgoSource) wakePoll() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.pollCancel != nil {
		k.pollCancel()
	}
}

// dispatch runs queued rebalance events on the calling goroutine and returns
// every partition they touched.
func (k *KgoSource) dispatch(ctx context.Context) map[TopicPartition]struct{} {
	var touched map[TopicPartition]struct{}

	for {
		select {
		case ev := <-k.events:
			if touched == nil {
				touched = make(map[TopicPartition]struct{})
			}
			for _, tp := range ev.partitions {
				touched[tp] = struct{}{}
			}

			switch ev.kind {
			case eventRevoked:
				k.listener.OnPartitionsRevoked(ctx, ev.partitions)
				k.mu.Lock()
				for _, tp := range ev.partitions {
					delete(k.positions, tp)
					delete(k.pending, tp)
				}
				k.mu.Unlock()
			case eventAssigned:
				k.assigning = true
				k.listener.OnPartitionsAssigned(ctx, ev.partitions)
				k.assigning = false
			}
			close(ev.done)
		default:
			return touched
		}
	}
}

// Dispatch delivers parked rebalance callbacks without fetching. The group
// cannot finish a rebalance until they ran, so owners that skip Poll still
// call Dispatch every cycle.
func (k *KgoSource) Dispatch(ctx context.Context) {
	if k.client == nil {
		return
	}
	k.dispatch(ctx)
}

func (k *KgoSource) Poll(ctx context.Context, timeout time.Duration) ([]ConsumerRecord, error) {
	if k.client == nil {
		return nil, ErrNotSubscribed
	}

	k.dispatch(ctx)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInterrupted, err)
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	k.mu.Lock()
	k.pollCancel = cancel
	k.mu.Unlock()

	fetches := k.client.PollRecords(pollCtx, k.config.MaxPollRecords)

	k.mu.Lock()
	k.pollCancel = nil
	k.mu.Unlock()
	cancel()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	if fetches.IsClientClosed() {
		return nil, ErrClosed
	}

	var errs []error
	for _, fe := range fetches.Errors() {
		if errors.Is(fe.Err, context.DeadlineExceeded) || errors.Is(fe.Err, context.Canceled) {
			continue
		}
		errs = append(errs, fmt.Errorf("fetch %s-%d: %w", fe.Topic, fe.Partition, fe.Err))
	}

	// records of partitions that changed owner during this poll are stale:
	// they predate the listener's seek or belong to someone else now
	touched := k.dispatch(ctx)

	fetched := fetches.Records()
	records := make([]ConsumerRecord, 0, len(fetched))
	for _, r := range fetched {
		rec := convertRecord(r)
		tp := rec.TopicPartition()
		if _, stale := touched[tp]; stale {
			continue
		}
		k.positions[tp] = rec.Offset + 1
		records = append(records, rec)
	}

	if len(errs) > 0 {
		if len(records) == 0 {
			return nil, fmt.Errorf("poll: %w", errors.Join(errs...))
		}
		for _, err := range errs {
			k.logger.Warn("Partial fetch error", "error", err)
		}
	}

	return records, nil
}

func (k *KgoSource) Seek(tp TopicPartition, offset int64) {
	if k.client == nil {
		return
	}

	k.positions[tp] = offset
	if k.assigning {
		k.mu.Lock()
		k.pending[tp] = offset
		k.mu.Unlock()
		return
	}

	k.client.SetOffsets(
		map[string]map[int32]kgo.EpochOffset{
			tp.Topic: {tp.Partition: {Epoch: -1, Offset: offset}},
		},
	)
}

func (k *KgoSource) SeekToBeginning(ctx context.Context, tps ...TopicPartition) error {
	return k.seekListed(ctx, "beginning", k.admin.ListStartOffsets, tps)
}

func (k *KgoSource) SeekToEnd(ctx context.Context, tps ...TopicPartition) error {
	return k.seekListed(ctx, "end", k.admin.ListEndOffsets, tps)
}

func (k *KgoSource) seekListed(
	ctx context.Context,
	where string,
	list func(context.Context, ...string) (kadm.ListedOffsets, error),
	tps []TopicPartition,
) error {
	if k.client == nil {
		return ErrNotSubscribed
	}
	if len(tps) == 0 {
		return nil
	}

	listed, err := list(ctx, topicsOf(tps)...)
	if err != nil {
		return fmt.Errorf("list %s offsets: %w", where, err)
	}

	found := make(map[TopicPartition]kadm.ListedOffset)
	listed.Each(
		func(lo kadm.ListedOffset) {
			found[TopicPartition{Topic: lo.Topic, Partition: lo.Partition}] = lo
		},
	)

	var errs []error
	for _, tp := range tps {
		lo, ok := found[tp]
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("seek to %s %s: partition not listed", where, tp))
		case lo.Err != nil:
			errs = append(errs, fmt.Errorf("seek to %s %s: %w", where, tp, lo.Err))
		default:
			k.Seek(tp, lo.Offset)
		}
	}

	return errors.Join(errs...)
}

func (k *KgoSource) Position(ctx context.Context, tp TopicPartition) (int64, error) {
	if pos, ok := k.positions[tp]; ok {
		return pos, nil
	}

	committed, ok, err := k.Committed(ctx, tp)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("position %s: no position and no committed offset", tp)
	}
	return committed.Offset, nil
}

func (k *KgoSource) Committed(ctx context.Context, tp TopicPartition) (OffsetAndMetadata, bool, error) {
	if k.client == nil {
		return OffsetAndMetadata{}, false, ErrNotSubscribed
	}

	resps, err := k.admin.FetchOffsets(ctx, k.config.GroupID)
	if err != nil {
		return OffsetAndMetadata{}, false, fmt.Errorf("fetch committed offsets: %w", err)
	}

	resp, ok := resps.Lookup(tp.Topic, tp.Partition)
	if !ok {
		return OffsetAndMetadata{}, false, nil
	}
	if resp.Err != nil {
		return OffsetAndMetadata{}, false, fmt.Errorf("fetch committed offset %s: %w", tp, resp.Err)
	}
	if resp.At < 0 {
		return OffsetAndMetadata{}, false, nil
	}

	return OffsetAndMetadata{Offset: resp.At, Metadata: resp.Metadata}, true, nil
}

// Commit synchronously commits offsets and their metadata as the current
// group member and generation.
func (k *KgoSource) Commit(ctx context.Context, offsets map[TopicPartition]OffsetAndMetadata) error {
	if k.client == nil {
		return ErrNotSubscribed
	}
	if len(offsets) == 0 {
		return nil
	}

	member, generation := k.client.GroupMetadata()
	req := newOffsetCommitRequest(k.config.GroupID, member, generation, offsets)

	resp, err := req.RequestWith(ctx, k.client)
	if err != nil {
		return fmt.Errorf("commit offsets: %w", err)
	}

	var errs []error
	for _, t := range resp.Topics {
		for _, p := range t.Partitions {
			if perr := kerr.ErrorForCode(p.ErrorCode); perr != nil {
				errs = append(errs, fmt.Errorf("%s-%d: %w", t.Topic, p.Partition, perr))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("commit offsets: %w", errors.Join(errs...))
	}

	k.logger.Debug("Committed offsets", "partitions", len(offsets), "member", member, "generation", generation)
	return nil
}

func newOffsetCommitRequest(
	group, member string,
	generation int32,
	offsets map[TopicPartition]OffsetAndMetadata,
) *kmsg.OffsetCommitRequest {
	req := kmsg.NewPtrOffsetCommitRequest()
	req.Group = group
	req.MemberID = member
	req.Generation = generation

	byTopic := make(map[string]int)
	for tp, om := range offsets {
		i, ok := byTopic[tp.Topic]
		if !ok {
			i = len(req.Topics)
			byTopic[tp.Topic] = i
			rt := kmsg.NewOffsetCommitRequestTopic()
			rt.Topic = tp.Topic
			req.Topics = append(req.Topics, rt)
		}

		rp := kmsg.NewOffsetCommitRequestTopicPartition()
		rp.Partition = tp.Partition
		rp.Offset = om.Offset
		rp.Metadata = kmsg.StringPtr(om.Metadata)
		req.Topics[i].Partitions = append(req.Topics[i].Partitions, rp)
	}
	return req
}

// Close leaves the group. Rebalance callbacks still parked are released
// without running, the owner already committed what it could.
func (k *KgoSource) Close() {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return
	}
	k.closed = true
	client := k.client
	k.mu.Unlock()

	close(k.quit)
	if client != nil {
		client.Close()
	}
}

func convertRecord(r *kgo.Record) ConsumerRecord {
	headers := make([]Header, len(r.Headers))
	for i, h := range r.Headers {
		headers[i] = Header{Key: h.Key, Value: h.Value}
	}

	return ConsumerRecord{
		Topic:       r.Topic,
		Partition:   r.Partition,
		Offset:      r.Offset,
		Key:         r.Key,
		Value:       r.Value,
		Headers:     headers,
		Timestamp:   r.Timestamp,
		LeaderEpoch: r.LeaderEpoch,
	}
}

func topicsOf(tps []TopicPartition) []string {
	seen := make(map[string]struct{}, len(tps))
	topics := make([]string, 0, len(tps))
	for _, tp := range tps {
		if _, ok := seen[tp.Topic]; ok {
			continue
		}
		seen[tp.Topic] = struct{}{}
		topics = append(topics, tp.Topic)
	}
	return topics
}

func mapToTopicPartitions(m map[string][]int32) []TopicPartition {
	var tps []TopicPartition
	for topic, partitions := range m {
		for _, partition := range partitions {
			tps = append(
				tps, TopicPartition{
					Topic:     topic,
					Partition: partition,
				},
			)
		}
	}

	return tps
}
