// Package amqp implements the message broker interface for AMQP compliant brokers (ie RabbitMQ)
package amqp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/tarancss/walletboot/lib/msg"
)

// Exchanges declared by Setup.
const (
	ExchangeRequests = "wr" // wallet requests
	ExchangeStates   = "bs" // bootstrap states
)

// Amqp implements a connection to a broker and a publishing channel for reuse.
type Amqp struct {
	l    sync.Mutex // guards ch, amqp channels are not safe for concurrent publishing
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *zap.Logger
}

// New instantiates a new amqp broker.
func New(uri string, log *zap.Logger) (*Amqp, error) {
	if log == nil {
		log = zap.NewNop()
	}

	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to amqp broker: %w", err)
	}

	log.Info("connected to amqp broker")

	return &Amqp{conn: conn, log: log}, nil
}

// Setup obtains an amqp channel and declares the message broker exchanges:
//
// - wr ("wallet requests"): the bootstrap service publishes listen/unlisten requests to this exchange
//
// - bs ("bootstrap states"): the bootstrap service publishes terminal state events to this exchange
func (r *Amqp) Setup() error {
	// obtain a one-use channel
	channel, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()
	// declare exchanges
	if err = channel.ExchangeDeclare(ExchangeRequests, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	return channel.ExchangeDeclare(ExchangeStates, "topic", true, false, false, false, nil)
}

// Close terminates gracefully the connection to the AMQP message broker
func (r *Amqp) Close() error {
	r.l.Lock()
	defer r.l.Unlock()

	if r.ch != nil {
		if err := r.ch.Close(); err != nil {
			r.log.Warn("error closing amqp channel", zap.Error(err))
		}

		r.ch = nil
	}

	return r.conn.Close()
}

// publish sends body to exchange with the routing key, obtaining a channel if not present.
func (r *Amqp) publish(exchange, key string, headers amqp.Table, body []byte) (err error) {
	r.l.Lock()
	defer r.l.Unlock()

	if r.ch == nil {
		if r.ch, err = r.conn.Channel(); err != nil {
			return err
		}
	}

	msg := amqp.Publishing{
		Headers:      headers,
		Body:         body,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
	}

	if err = r.ch.Publish(exchange, key, false, false, msg); err != nil {
		// drop the channel, a failed publish may have closed it
		_ = r.ch.Close()
		r.ch = nil

		return err
	}

	return nil
}

// SendRequest publishes a new wallet request to the "wr" exchange
func (r *Amqp) SendRequest(net string, wr msg.WalletReq) error {
	jsonDoc, err := json.Marshal(wr)
	if err != nil {
		return err
	}

	err = r.publish(ExchangeRequests, net+"."+strconv.Itoa(wr.Type)+"."+wr.Obj,
		amqp.Table{"x-wreq-name": net + "." + wr.Obj}, jsonDoc)
	if err != nil {
		r.log.Warn("error sending request to message broker", zap.String("net", net), zap.Error(err))
	}

	return err
}

// SendState publishes a bootstrap state event to the "bs" exchange
func (r *Amqp) SendState(e msg.StateEvent) error {
	jsonDoc, err := json.Marshal(e)
	if err != nil {
		return err
	}

	err = r.publish(ExchangeStates, "state."+e.State, amqp.Table{"x-attempt": e.Attempt}, jsonDoc)
	if err != nil {
		r.log.Warn("error sending state to message broker", zap.String("state", e.State), zap.Error(err))
	}

	return err
}

// GetStates consumes bootstrap state events from the "bs" exchange through an exclusive queue, pushing them to the
// returned channel. Both returned channels are closed when the broker connection closes.
func (r *Amqp) GetStates() (<-chan msg.StateEvent, <-chan error, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, nil, err
	}
	// declare an exclusive, server-named queue
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, nil, err
	}
	// bind queue to exchange
	if err = ch.QueueBind(q.Name, "state.*", ExchangeStates, false, nil); err != nil {
		return nil, nil, err
	}
	// create channel for receiving events
	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, nil, err
	}
	// define channels to return
	eves := make(chan msg.StateEvent)
	errs := make(chan error, 1)
	// start routine to consume messages from broker
	go func() {
		defer close(eves)
		defer close(errs)

		for m := range msgs {
			var e msg.StateEvent
			if err := json.Unmarshal(m.Body, &e); err != nil {
				select {
				case errs <- err:
				default:
				}

				continue
			}

			eves <- e
		}
	}()

	return eves, errs, nil
}
