// Package lemmaserver shares lemmas, results and commands between solver
// instances through Redis.
package lemmaserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/usi-verification-and-security/ptplib/pkg/channel"
	"github.com/usi-verification-and-security/ptplib/pkg/header"
	"github.com/usi-verification-and-security/ptplib/pkg/lemma"
)

// Entry is one shared lemma as stored in a lemma list.
type Entry struct {
	Solver string `json:"solver"`
	Level  int    `json:"level"`
	Clause string `json:"clause"`
}

// Client provides instance-scoped Redis operations for one solver.
// All keys and channels are namespaced with the instance name.
// The client is safe for concurrent use.
type Client struct {
	rdb          *redis.Client
	instanceName string
	solverID     string
}

// NewClient creates a lemma server client for the given instance.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: solving session identifier (must not be empty)
//   - solverID: identifies this solver's entries; a random UUID when empty
//
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName, solverID string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}
	if solverID == "" {
		solverID = uuid.NewString()
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
		solverID:     solverID,
	}, nil
}

// SolverID returns the identity written into every entry this client pushes.
func (c *Client) SolverID() string { return c.solverID }

// InstanceName returns the namespace of this client.
func (c *Client) InstanceName() string { return c.instanceName }

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func ownerName(owner header.Header) (string, error) {
	name := owner.Name()
	if name == "" {
		return "", fmt.Errorf("owner %s has no %q", owner, header.KeyName)
	}
	return name, nil
}

// WriteLemmas appends every lemma of the ledger to the list of its node,
// under the owner's instance name. It returns the number of lemmas written.
// All lists are written in one pipeline.
func (c *Client) WriteLemmas(ctx context.Context, owner header.Header, ledger lemma.Ledger) (int, error) {
	name, err := ownerName(owner)
	if err != nil {
		return 0, err
	}
	if ledger.Count() == 0 {
		return 0, nil
	}

	pipe := c.rdb.Pipeline()
	written := 0
	for _, node := range ledger.Owners() {
		values := make([]any, 0, len(ledger[node]))
		for _, l := range ledger[node] {
			data, err := json.Marshal(Entry{Solver: c.solverID, Level: l.Level, Clause: l.Clause})
			if err != nil {
				return 0, fmt.Errorf("failed to marshal lemma: %w", err)
			}
			values = append(values, data)
		}
		if len(values) == 0 {
			continue
		}
		pipe.RPush(ctx, LemmasKey(c.instanceName, name, node), values...)
		written += len(values)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to write lemmas to Redis: %w", err)
	}
	return written, nil
}

// ReadLemmas returns the lemmas shared for the owner's node since the last
// read by this solver, skipping the ones this solver wrote, and advances
// the read cursor. Malformed entries are logged and skipped.
func (c *Client) ReadLemmas(ctx context.Context, owner header.Header) ([]lemma.Lemma, error) {
	name, err := ownerName(owner)
	if err != nil {
		return nil, err
	}
	node := owner.Node()
	field := OwnerField(name, node)
	cursorKey := CursorKey(c.instanceName, c.solverID)

	start, err := c.rdb.HGet(ctx, cursorKey, field).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read cursor: %w", err)
	}

	raw, err := c.rdb.LRange(ctx, LemmasKey(c.instanceName, name, node), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read lemmas from Redis: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var lemmas []lemma.Lemma
	for _, r := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			log.Printf("[LemmaServer] skipping malformed entry for %s: %v", field, err)
			continue
		}
		if e.Solver == c.solverID {
			continue
		}
		lemmas = append(lemmas, lemma.New(e.Clause, e.Level))
	}

	next := strconv.FormatInt(start+int64(len(raw)), 10)
	if err := c.rdb.HSet(ctx, cursorKey, field, next).Err(); err != nil {
		return nil, fmt.Errorf("failed to advance cursor: %w", err)
	}
	return lemmas, nil
}

// ReportResult records the result reached for the owner's (name, node).
func (c *Client) ReportResult(ctx context.Context, owner header.Header, result string) error {
	name, err := ownerName(owner)
	if err != nil {
		return err
	}
	if err := c.rdb.HSet(ctx, ReportsKey(c.instanceName), OwnerField(name, owner.Node()), result).Err(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// GetResult returns the result reported for the owner's (name, node).
// Returns redis.Nil when nothing was reported; use IsNotFound to check.
func (c *Client) GetResult(ctx context.Context, owner header.Header) (string, error) {
	name, err := ownerName(owner)
	if err != nil {
		return "", err
	}
	result, err := c.rdb.HGet(ctx, ReportsKey(c.instanceName), OwnerField(name, owner.Node())).Result()
	if errors.Is(err, redis.Nil) {
		return "", redis.Nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read report: %w", err)
	}
	return result, nil
}

// EncodeMessage returns the wire form of msg: the encoded header
// immediately followed by the body.
func EncodeMessage(msg channel.Message) string {
	return msg.String()
}

// DecodeMessage parses the wire form produced by EncodeMessage.
func DecodeMessage(payload string) (channel.Message, error) {
	h, body, err := header.Decode(payload)
	if err != nil {
		return channel.Message{}, err
	}
	return channel.NewMessage(h, body), nil
}

// PublishCommand publishes msg on the instance's command channel.
func (c *Client) PublishCommand(ctx context.Context, msg channel.Message) error {
	if err := c.rdb.Publish(ctx, CommandsChannel(c.instanceName), EncodeMessage(msg)).Err(); err != nil {
		return fmt.Errorf("failed to publish command: %w", err)
	}
	return nil
}

// CommandSubscription is an active subscription to the command channel.
// Caller must call Close() when done.
type CommandSubscription struct {
	messages <-chan channel.Message
	errors   <-chan error
	cancel   func()
	once     sync.Once
}

// Messages returns the channel of decoded commands. It is closed when the
// subscription is closed or its context is cancelled.
func (s *CommandSubscription) Messages() <-chan channel.Message {
	return s.messages
}

// Errors returns the channel of decoding failures. The subscription
// continues after an error; the offending payload is skipped.
func (s *CommandSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *CommandSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeCommands subscribes to the instance's command channel. The
// subscription is confirmed by Redis before SubscribeCommands returns, so
// commands published afterwards are delivered.
//
// Delivery is at-most-once: a slow subscriber may miss messages.
func (c *Client) SubscribeCommands(ctx context.Context) (*CommandSubscription, error) {
	pubsub := c.rdb.Subscribe(ctx, CommandsChannel(c.instanceName))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to commands: %w", err)
	}

	messagesChan := make(chan channel.Message, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(messagesChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}

				msg, err := DecodeMessage(m.Payload)
				if err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to decode command: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case messagesChan <- msg:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &CommandSubscription{
		messages: messagesChan,
		errors:   errorsChan,
		cancel:   cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
