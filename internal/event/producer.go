package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Atulx21/SevaConnect/internal/domain"
	pkgkafka "github.com/Atulx21/SevaConnect/pkg/kafka"
	"github.com/Atulx21/SevaConnect/pkg/logger"
)

// Kafka topics for session audit events.
var (
	TopicSignedIn       = pkgkafka.Topic("session", "signed_in")
	TopicSignedOut      = pkgkafka.Topic("session", "signed_out")
	TopicProfileUpdated = pkgkafka.Topic("profile", "updated")
)

// Aggregate type constants.
const (
	AggregateTypeSession = "session"
	AggregateTypeProfile = "profile"
)

// SourceAgent identifies events published by the session agent.
const SourceAgent = "kaamconnect-agent"

// SignedInData is the payload for a session.signed_in event.
type SignedInData struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

// SignedOutData is the payload for a session.signed_out event.
type SignedOutData struct {
	UserID string `json:"user_id"`
}

// ProfileUpdatedData is the payload for a profile.updated event.
type ProfileUpdatedData struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Village   string    `json:"village"`
	District  string    `json:"district,omitempty"`
	Role      string    `json:"role"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Publisher is the transport the Producer writes to.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes session audit events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new audit event producer.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishSignedIn publishes a session.signed_in event.
func (p *Producer) PublishSignedIn(ctx context.Context, user domain.User) error {
	data := SignedInData{UserID: user.ID}
	if user.Email != "" {
		data.Email = logger.RedactEmail(user.Email)
	}
	if user.Phone != "" {
		data.Phone = logger.RedactPhone(user.Phone)
	}
	return p.publish(ctx, TopicSignedIn, user.ID, AggregateTypeSession, data)
}

// PublishSignedOut publishes a session.signed_out event.
func (p *Producer) PublishSignedOut(ctx context.Context, userID string) error {
	return p.publish(ctx, TopicSignedOut, userID, AggregateTypeSession, SignedOutData{UserID: userID})
}

// PublishProfileUpdated publishes a profile.updated event.
func (p *Producer) PublishProfileUpdated(ctx context.Context, profile *domain.Profile) error {
	data := ProfileUpdatedData{
		ID:        profile.ID,
		FullName:  profile.FullName,
		Village:   profile.Village,
		District:  profile.District,
		Role:      string(profile.Role),
		UpdatedAt: profile.UpdatedAt,
	}
	return p.publish(ctx, TopicProfileUpdated, profile.ID, AggregateTypeProfile, data)
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceAgent, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published audit event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}
