package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() *Request {
	return &Request{
		RequestID:    "req-1",
		Event:        EventMessageCreate,
		Instruction:  "Movie ticket 250 Mary",
		Sender:       "bob",
		GroupMembers: `["bob","mary"]`,
		LedgerID:     "ledger-1",
		ChannelID:    "chan-1",
		MessageID:    "1319901786537390687",
	}
}

func TestRequestFromValuesTolerantOfMissingAndNonStringFields(t *testing.T) {
	req := RequestFromValues("1-0", map[string]any{
		"requestId": "r",
		"event":     EventMessageDelete,
		"messageId": 42,
		"ledgerId":  []byte("l"),
	})
	assert.Equal(t, "1-0", req.ID)
	assert.Equal(t, "r", req.RequestID)
	assert.Equal(t, EventMessageDelete, req.Event)
	assert.Equal(t, "42", req.MessageID)
	assert.Equal(t, "l", req.LedgerID)
	assert.Empty(t, req.Instruction)
}

func TestResultValuesUsesBridgeFieldNames(t *testing.T) {
	res := &Result{Result: "done", ChannelID: "c", MessageID: "m", RequestID: "r"}
	assert.Equal(t, map[string]any{"result": "done", "channelId": "c", "messageId": "m", "requestId": "r"}, res.Values())
	assert.Equal(t, res, ResultFromValues(res.Values()))
}

func TestEmptyResultHasNoResultField(t *testing.T) {
	res := &Result{ChannelID: "c", MessageID: "m", RequestID: "r"}
	assert.NotContains(t, res.Values(), "result")
	assert.Equal(t, res, ResultFromValues(res.Values()))

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"channelId":"c","messageId":"m","requestId":"r"}`, string(raw))
}

func TestRedisSinkOmitsEmptyResult(t *testing.T) {
	ctx := context.Background()
	opts := newMiniRedis(t)
	client := NewRedisClient(opts)
	defer client.Close()

	sink := NewRedisSink(client, opts)
	require.NoError(t, sink.Publish(ctx, &Result{ChannelID: "chan-1", MessageID: "m", RequestID: "a"}))

	entries, err := client.XRange(ctx, DefaultResultsStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Values, "result")
	assert.Equal(t, "chan-1", entries[0].Values["channelId"])
}

func TestDecodeRequestRejectsGarbage(t *testing.T) {
	_, err := DecodeRequest([]byte("{nope"))
	assert.Error(t, err)
}

func TestChannelStream(t *testing.T) {
	s := NewChannelStream(0)
	req := sampleRequest()
	s.Send(req)

	got, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Same(t, req, got)

	require.NoError(t, s.Commit(context.Background(), got))
	assert.Equal(t, []*Request{req}, s.Committed())

	require.NoError(t, s.Publish(context.Background(), &Result{RequestID: "req-1"}))
	assert.Equal(t, "req-1", (<-s.Results()).RequestID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

type memoryCursor struct {
	mu   sync.Mutex
	ids  map[string]string
	fail error
}

func (c *memoryCursor) Cursor(_ context.Context, stream string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ids[stream], c.fail
}

func (c *memoryCursor) SaveCursor(_ context.Context, stream, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	if c.ids == nil {
		c.ids = map[string]string{}
	}
	c.ids[stream] = id
	return nil
}

func newMiniRedis(t *testing.T) RedisOptions {
	t.Helper()
	mr := miniredis.RunT(t)
	return RedisOptions{Addr: mr.Addr(), Block: 50 * time.Millisecond}
}

func addArgs(stream string, values map[string]any) *redis.XAddArgs {
	return &redis.XAddArgs{Stream: stream, Values: values}
}

func TestRedisRoundTrip(t *testing.T) {
	ctx := context.Background()
	opts := newMiniRedis(t)
	cursor := &memoryCursor{}
	opts.Cursor = cursor
	client := NewRedisClient(opts)
	defer client.Close()

	for _, id := range []string{"a", "b"} {
		req := sampleRequest()
		req.RequestID = id
		_, err := client.XAdd(ctx, addArgs(DefaultRequestsStream, req.Values())).Result()
		require.NoError(t, err)
	}

	src, err := NewRedisSource(ctx, client, opts)
	require.NoError(t, err)

	first, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", first.RequestID)
	assert.Equal(t, "Movie ticket 250 Mary", first.Instruction)
	assert.NotEmpty(t, first.ID)
	require.NoError(t, src.Commit(ctx, first))
	assert.Equal(t, first.ID, cursor.ids[DefaultRequestsStream])

	second, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", second.RequestID)

	sink := NewRedisSink(client, opts)
	require.NoError(t, sink.Publish(ctx, &Result{Result: "ok", ChannelID: "chan-1", MessageID: "m", RequestID: "a"}))

	entries, err := client.XRange(ctx, DefaultResultsStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, &Result{Result: "ok", ChannelID: "chan-1", MessageID: "m", RequestID: "a"}, ResultFromValues(entries[0].Values))
}

func TestRedisSourceResumesFromCursor(t *testing.T) {
	ctx := context.Background()
	opts := newMiniRedis(t)
	client := NewRedisClient(opts)
	defer client.Close()

	var ids []string
	for _, id := range []string{"a", "b", "c"} {
		req := sampleRequest()
		req.RequestID = id
		entryID, err := client.XAdd(ctx, addArgs(DefaultRequestsStream, req.Values())).Result()
		require.NoError(t, err)
		ids = append(ids, entryID)
	}

	opts.Cursor = &memoryCursor{ids: map[string]string{DefaultRequestsStream: ids[1]}}
	src, err := NewRedisSource(ctx, client, opts)
	require.NoError(t, err)

	req, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c", req.RequestID)
}

func TestRedisSourceReturnsWhenContextDone(t *testing.T) {
	opts := newMiniRedis(t)
	client := NewRedisClient(opts)
	defer client.Close()

	src, err := NewRedisSource(context.Background(), client, opts)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	_, err = src.Next(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled), "got %v", err)
}

func TestRedisSourceCursorLoadFailure(t *testing.T) {
	opts := newMiniRedis(t)
	opts.Cursor = &memoryCursor{fail: errors.New("disk gone")}
	client := NewRedisClient(opts)
	defer client.Close()

	_, err := NewRedisSource(context.Background(), client, opts)
	assert.ErrorContains(t, err, "disk gone")
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type fakeWriter struct {
	written []kafka.Message
	err     error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaSourceSkipsUndecodableAndCommitsAfterProcessing(t *testing.T) {
	good, err := json.Marshal(sampleRequest())
	require.NoError(t, err)
	reader := &fakeReader{queue: []kafka.Message{
		{Topic: "requests", Partition: 0, Offset: 7, Value: []byte("not json")},
		{Topic: "requests", Partition: 0, Offset: 8, Value: good},
	}}
	src := &KafkaSource{reader: reader, topic: "requests"}

	req, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "req-1", req.RequestID)
	assert.Equal(t, "0/8", req.ID)
	require.Len(t, reader.committed, 1)
	assert.Equal(t, int64(7), reader.committed[0].Offset)

	require.NoError(t, src.Commit(context.Background(), req))
	require.Len(t, reader.committed, 2)
	assert.Equal(t, int64(8), reader.committed[1].Offset)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, src.Close())
	assert.True(t, reader.closed)
}

func TestKafkaSourceCommitIgnoresForeignRequests(t *testing.T) {
	reader := &fakeReader{}
	src := &KafkaSource{reader: reader, topic: "requests"}
	require.NoError(t, src.Commit(context.Background(), sampleRequest()))
	assert.Empty(t, reader.committed)
}

func TestKafkaSinkKeysByRequestID(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w, topic: "results"}

	require.NoError(t, sink.Publish(context.Background(), &Result{Result: "ok", RequestID: "req-9", ChannelID: "c", MessageID: "m"}))
	require.Len(t, w.written, 1)
	assert.Equal(t, "req-9", string(w.written[0].Key))
	assert.JSONEq(t, `{"result":"ok","channelId":"c","messageId":"m","requestId":"req-9"}`, string(w.written[0].Value))

	w.err = errors.New("broker down")
	assert.ErrorContains(t, sink.Publish(context.Background(), &Result{}), "broker down")
}

func TestTopicName(t *testing.T) {
	assert.Equal(t, "discord.requests", TopicName(DefaultRequestsStream))
	assert.Equal(t, "expense_results-v1.x", TopicName("expense_results-v1.x"))
	assert.Equal(t, "a.b.c", TopicName("a/b c"))
}

func TestNewKafkaSinkUsesLegalTopic(t *testing.T) {
	sink := NewKafkaSink(KafkaOptions{Brokers: "localhost:9092"})
	defer sink.Close()
	assert.Equal(t, "discord.results", sink.topic)
}
