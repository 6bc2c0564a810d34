// Package redis carries recalculation signals between the consistency stage
// and the cost-basis engine over a Redis Stream. Delivery is at-least-once;
// downstream idempotency makes redelivery harmless.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgerkit/txledger/internal/domain/model"
)

const recalcStream = "txledger:recalc"

// Stream wraps a Redis client scoped to the recalc stream.
type Stream struct {
	client *redis.Client
}

func NewStream(url string) (*Stream, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Stream{client: client}, nil
}

func (s *Stream) Close() error {
	return s.client.Close()
}

// Publish appends a recalculation signal to the stream.
func (s *Stream) Publish(ctx context.Context, sig model.RecalcSignal) error {
	values := map[string]any{"wallet_address": sig.WalletAddress}
	if sig.NetworkID != "" {
		values["network_id"] = string(sig.NetworkID)
	}
	if sig.AssetContract != "" {
		values["asset_contract"] = sig.AssetContract
	}
	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: recalcStream,
		MaxLen: 100_000,
		Approx: true,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("publish recalc signal: %w", err)
	}
	return nil
}

// EnsureGroup creates the consumer group if it does not exist yet.
func (s *Stream) EnsureGroup(ctx context.Context, group string) error {
	err := s.client.XGroupCreateMkStream(ctx, recalcStream, group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Message is one delivered recalculation signal plus its ack handle.
type Message struct {
	ID     string
	Signal model.RecalcSignal
}

// Read blocks up to the client's read timeout for the next batch of signals
// for the given group/consumer.
func (s *Stream) Read(ctx context.Context, group, consumer string, count int64) ([]Message, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{recalcStream, ">"},
		Count:    count,
		Block:    0,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read recalc stream: %w", err)
	}

	var out []Message
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			out = append(out, Message{ID: msg.ID, Signal: signalFromValues(msg.Values)})
		}
	}
	return out, nil
}

// ReclaimPending claims delivered-but-unacked entries that have been idle
// for at least minIdle, from any consumer in the group, and returns them for
// reprocessing. XREADGROUP on ">" never revisits the pending entries list,
// so failed or interrupted deliveries are only recoverable through here.
func (s *Stream) ReclaimPending(ctx context.Context, group, consumer string, minIdle time.Duration, count int64) ([]Message, error) {
	msgs, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   recalcStream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("reclaim recalc signals: %w", err)
	}

	out := make([]Message, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, Message{ID: msg.ID, Signal: signalFromValues(msg.Values)})
	}
	return out, nil
}

// Ack acknowledges a processed signal.
func (s *Stream) Ack(ctx context.Context, group, id string) error {
	if err := s.client.XAck(ctx, recalcStream, group, id).Err(); err != nil {
		return fmt.Errorf("ack recalc signal: %w", err)
	}
	return nil
}

func signalFromValues(values map[string]any) model.RecalcSignal {
	sig := model.RecalcSignal{}
	if v, ok := values["wallet_address"].(string); ok {
		sig.WalletAddress = v
	}
	if v, ok := values["network_id"].(string); ok {
		sig.NetworkID = model.Network(v)
	}
	if v, ok := values["asset_contract"].(string); ok {
		sig.AssetContract = v
	}
	return sig
}
