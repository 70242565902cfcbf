package listener

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/usi-verification-and-security/ptplib/internal/stopwatch"
	"github.com/usi-verification-and-security/ptplib/pkg/channel"
	"github.com/usi-verification-and-security/ptplib/pkg/header"
)

const (
	maxRandomGap = 5 * time.Second
	// a session is cut short after commands*overrunFactor seconds
	overrunFactor = 5
	// without a waiting duration the last command waits until commands*lingerFactor seconds
	lingerFactor = 10
)

// Generator produces a synthetic command sequence for one instance: solve,
// then alternating incremental and partition commands, ending with stop.
type Generator struct {
	instance int
	commands int
	waiting  time.Duration
	rng      *rand.Rand
	watch    *stopwatch.Watch
	sleep    func(ctx context.Context, d time.Duration) bool
}

// NewGenerator returns a Generator for instance number instance emitting
// commands messages. With waiting set every gap between commands is
// exactly waiting; otherwise gaps are random up to five seconds.
func NewGenerator(instance, commands int, waiting time.Duration, seed int64) *Generator {
	return &Generator{
		instance: instance,
		commands: commands,
		waiting:  waiting,
		rng:      rand.New(rand.NewSource(seed)),
		watch:    stopwatch.New(true),
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// InstanceName returns the name carried by every generated header.
func (g *Generator) InstanceName() string {
	return fmt.Sprintf("instance%d.smt2", g.instance)
}

// Next waits for the gap preceding command counter (1-based) and returns it.
// It returns false if ctx is done while waiting.
func (g *Generator) Next(ctx context.Context, counter int) (channel.Message, bool) {
	if counter > 1 {
		gap := g.waiting
		if gap == 0 {
			gap = time.Duration(g.rng.Int63n(int64(maxRandomGap/time.Millisecond)+1)) * time.Millisecond
		}
		if !g.sleep(ctx, gap) {
			return channel.Message{}, false
		}
	}

	name := g.InstanceName()
	h := header.New(
		header.KeyName, name,
		header.KeyNode, fmt.Sprintf("[%d]", counter),
		header.KeyQuery, "(check-sat)",
	)
	body := ""
	elapsed := g.watch.Elapsed()

	switch {
	case elapsed > time.Duration(g.commands*overrunFactor)*time.Second:
		h.Set(header.KeyCommand, header.CommandStop)
	case counter >= g.commands:
		if g.waiting == 0 {
			if !g.sleep(ctx, time.Duration(g.commands*lingerFactor)*time.Second-elapsed) {
				return channel.Message{}, false
			}
		}
		h.Set(header.KeyCommand, header.CommandStop)
	case counter == 1:
		h.Set(header.KeyCommand, header.CommandSolve)
		body = "solve( " + name + " )"
	case counter%2 == 0:
		h.Set(header.KeyCommand, header.CommandIncremental)
		h.Set(header.KeyNodeNext, fmt.Sprintf("[%d]", counter+1))
		body = "move ( " + name + " )"
	default:
		h.Set(header.KeyCommand, header.CommandPartition)
		h.Set(header.KeyPartitions, "2")
	}
	return channel.NewMessage(h, body), true
}

// Events emits the sequence on the returned channel, closing it after the
// stop command or when ctx is done.
func (g *Generator) Events(ctx context.Context) <-chan channel.Message {
	out := make(chan channel.Message)
	go func() {
		defer close(out)
		for counter := 1; ; counter++ {
			msg, ok := g.Next(ctx, counter)
			if !ok {
				return
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
			if msg.Command() == header.CommandStop {
				return
			}
		}
	}()
	return out
}
