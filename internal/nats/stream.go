package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/ragchat/internal/model"
)

const (
	// StreamName is the JetStream stream holding turn events.
	StreamName = "CHATS"

	// SubjectPrefix is the prefix for all chat subjects.
	SubjectPrefix = "chat"
)

// TurnPublisher writes TurnCompletedEvents to the CHATS stream.
type TurnPublisher struct {
	js jetstream.JetStream
}

// NewTurnPublisher creates a publisher on the client's JetStream context.
func NewTurnPublisher(client *Client) *TurnPublisher {
	return &TurnPublisher{js: client.JetStream()}
}

// EnsureStream creates the stream if it does not exist.
func (p *TurnPublisher) EnsureStream(ctx context.Context) error {
	if _, err := p.js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Completed chat turns",
	})
	if err != nil && !errors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// subjectToken makes s safe to use as a single subject token.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

// TurnSubject returns the subject for a completed turn.
func TurnSubject(userID, chatID string) string {
	return fmt.Sprintf("%s.%s.%s.turn", SubjectPrefix, subjectToken(userID), subjectToken(chatID))
}

// UserFilter matches every turn of one subject.
func UserFilter(userID string) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, subjectToken(userID))
}

// PublishTurn publishes one event and waits for the stream ack. The
// assistant turn id doubles as the dedup id, so a retried publish is dropped
// by the server.
func (p *TurnPublisher) PublishTurn(ctx context.Context, event *model.TurnCompletedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal turn event: %w", err)
	}

	_, err = p.js.Publish(ctx, TurnSubject(event.UserID, event.ChatID), data,
		jetstream.WithMsgID(event.AssistantTurnID))
	if err != nil {
		return fmt.Errorf("failed to publish turn event: %w", err)
	}
	return nil
}

// RecentTurns reads up to limit turn events for a subject, starting after the
// given stream sequence. It returns the events and the last sequence seen.
func (p *TurnPublisher) RecentTurns(ctx context.Context, userID string, afterSequence uint64, limit int) ([]model.TurnCompletedEvent, uint64, error) {
	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: UserFilter(userID),
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	}
	if afterSequence > 0 {
		consumerConfig.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		consumerConfig.OptStartSeq = afterSequence + 1
	}

	consumer, err := p.js.CreateConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch turn events: %w", err)
	}

	var events []model.TurnCompletedEvent
	lastSequence := afterSequence
	for msg := range batch.Messages() {
		var event model.TurnCompletedEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			continue
		}
		if meta, err := msg.Metadata(); err == nil {
			lastSequence = meta.Sequence.Stream
		}
		events = append(events, event)
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, 0, fmt.Errorf("batch error: %w", err)
	}
	return events, lastSequence, nil
}
