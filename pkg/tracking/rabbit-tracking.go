package tracking

import (
	"log"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shtetl-dev/shtetl-browse/pkg/filters"
	"github.com/shtetl-dev/shtetl-browse/pkg/messaging"
	"github.com/shtetl-dev/shtetl-browse/pkg/types"
)

const trackingTopic messaging.Topic = "browse_tracking"

// RabbitTracking publishes browse events on a topic exchange. Each process
// gets one uuid session id so downstream analytics can stitch a browse
// session together.
type RabbitTracking struct {
	sessionId  string
	region     string
	connection *amqp.Connection
}

func NewRabbitTracking(url, region string) (*RabbitTracking, error) {
	rt := &RabbitTracking{
		sessionId: uuid.NewString(),
		region:    region,
	}
	if err := rt.connect(url); err != nil {
		return nil, err
	}
	return rt, nil
}

func (t *RabbitTracking) connect(url string) error {
	conn, err := amqp.Dial(url)
	if err != nil {
		return err
	}
	t.connection = conn
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	return messaging.DefineTopic(ch, "global", trackingTopic)
}

func (t *RabbitTracking) Close() error {
	return t.connection.Close()
}

func (t *RabbitTracking) send(data any) error {
	return messaging.Publish(t.connection, "global", trackingTopic, data)
}

type baseEvent struct {
	SessionId string `json:"session_id"`
	Region    string `json:"region,omitempty"`
	Event     uint16 `json:"event"`
}

type sessionEvent struct {
	*baseEvent
}

type searchEvent struct {
	*baseEvent
	filters.Filters
	Domain  string `json:"domain"`
	Query   string `json:"query,omitempty"`
	Page    int    `json:"page"`
	Results int    `json:"noi"`
}

func (t *RabbitTracking) TrackSession() {
	err := t.send(&sessionEvent{
		baseEvent: &baseEvent{Event: 0, SessionId: t.sessionId, Region: t.region},
	})
	if err != nil {
		log.Println("Error sending session event: ", err)
	}
}

func (t *RabbitTracking) TrackSearch(domain types.Domain, f filters.Filters, query string, page int, results int) {
	err := t.send(&searchEvent{
		baseEvent: &baseEvent{Event: 1, SessionId: t.sessionId, Region: t.region},
		Filters:   f,
		Domain:    string(domain),
		Query:     query,
		Page:      page,
		Results:   results,
	})
	if err != nil {
		log.Println("Error sending search event: ", err)
	}
}
