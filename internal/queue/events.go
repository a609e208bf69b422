package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitPublisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(url string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	return &RabbitPublisher{conn: conn, ch: ch}, nil
}

func (p *RabbitPublisher) Close() error {
	_ = p.ch.Close()
	return p.conn.Close()
}

func (p *RabbitPublisher) Publish(ctx context.Context, exchange, key string, event any, reqID string) error {
	body, _ := json.Marshal(event)
	return p.ch.PublishWithContext(ctx, exchange, key, false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			MessageId:   uuid.NewString(),
			Timestamp:   time.Now(),
			Headers: amqp.Table{
				"X-Request-ID": reqID,
			},
		})
}

type UserRegistered struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}
type FeatureCreated struct {
	FeatureID string `json:"feature_id"`
	Title     string `json:"title"`
	CreatedBy string `json:"created_by"`
}
type FeatureLiked struct {
	FeatureID string `json:"feature_id"`
	UserID    string `json:"user_id"`
	Liked     bool   `json:"liked"` // false = лайк снят
}
type CommentAdded struct {
	FeatureID string `json:"feature_id"`
	CommentID string `json:"comment_id"`
	UserID    string `json:"user_id"`
}
