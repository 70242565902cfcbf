package channel

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/usi-verification-and-security/ptplib/pkg/header"
	"github.com/usi-verification-and-security/ptplib/pkg/lemma"
)

func msg(command, node string) Message {
	return NewMessage(header.New(
		header.KeyNode, node,
		header.KeyName, "instance1.smt2",
		header.KeyCommand, command,
		header.KeyQuery, "(check-sat)",
	), "")
}

func TestQueueOrder(t *testing.T) {
	c := New()
	c.Lock()
	defer c.Unlock()

	c.Push(msg(header.CommandSolve, "[1]"))
	c.Push(msg(header.CommandPartition, "[2]"))
	c.Enqueue(msg(header.CommandIncremental, "[3]"))
	c.Enqueue(msg(header.CommandStop, "[4]"))

	require.Equal(t, 4, c.Size())
	assert.Equal(t, header.CommandStop, c.FrontCommand())

	var got []string
	for !c.IsEmpty() {
		got = append(got, c.PopFront().Header.Node())
	}
	assert.Equal(t, []string{"[4]", "[1]", "[2]", "[3]"}, got)
	assert.Equal(t, "", c.FrontCommand())
}

func TestQueueJumpProperty(t *testing.T) {
	commands := []string{
		header.CommandSolve, header.CommandStop, header.CommandInject,
		header.CommandIncremental, header.CommandPartition,
	}

	rapid.Check(t, func(t *rapid.T) {
		c := New()
		c.Lock()
		defer c.Unlock()

		var model []Message
		n := rapid.IntRange(0, 40).Draw(t, "n")
		for i := 0; i < n; i++ {
			m := msg(rapid.SampledFrom(commands).Draw(t, "command"), "["+strconv.Itoa(i)+"]")
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				c.Push(m)
				model = append(model, m)
			case 1:
				c.PushFront(m)
				model = append([]Message{m}, model...)
			case 2:
				c.Enqueue(m)
				if m.Command() == header.CommandStop {
					model = append([]Message{m}, model...)
				} else {
					model = append(model, m)
				}
				if m.Command() == header.CommandStop && c.FrontCommand() != header.CommandStop {
					t.Fatalf("enqueued stop is not at the front")
				}
			}
		}

		if c.Size() != len(model) {
			t.Fatalf("size %d, model %d", c.Size(), len(model))
		}
		for i, want := range model {
			got := c.PopFront()
			if got.Header.Node() != want.Header.Node() {
				t.Fatalf("position %d: got %s want %s", i, got.Header.Node(), want.Header.Node())
			}
		}
	})
}

func TestQueuePreconditions(t *testing.T) {
	c := New()
	c.Lock()
	defer c.Unlock()

	assert.Panics(t, func() { c.PopFront() })
	assert.Panics(t, func() { c.Front() })
	assert.Panics(t, func() {
		c.Push(NewMessage(header.New(header.KeyName, "x", header.KeyCommand, header.CommandSolve), ""))
	})
	assert.Panics(t, func() {
		c.PushFront(NewMessage(header.New(header.KeyNode, "[0]"), ""))
	})
	assert.True(t, c.IsEmpty())
}

func TestCurrentOwner(t *testing.T) {
	c := New()
	c.Lock()
	defer c.Unlock()

	m := msg(header.CommandSolve, "[1]")
	c.SetCurrentOwnerKeys(m.Header, header.OwnerKeys)
	assert.Equal(t, []string{header.KeyNode, header.KeyName}, c.CurrentOwner().Keys())

	c.SetCurrentOwner(m.Header)
	assert.Equal(t, 4, c.CurrentOwner().Len())
	assert.Equal(t, 1, c.CurrentOwnerKeys([]string{header.KeyQuery}).Len())

	returned := c.CurrentOwner()
	returned.Set(header.KeyNode, "[9]")
	assert.Equal(t, "[1]", c.CurrentOwner().Node())

	c.ClearCurrentOwner()
	assert.True(t, c.CurrentOwner().Empty())

	assert.Panics(t, func() {
		c.SetCurrentOwnerKeys(header.New(header.KeyNode, "[1]", header.KeyName, "x"), header.OwnerKeys)
	})
	assert.Panics(t, func() { c.InsertLearned(lemma.New("a", 0)) })
	assert.Panics(t, func() { c.InsertPulled(lemma.New("a", 0)) })
}

func TestDrainIsIdempotent(t *testing.T) {
	c := New()
	c.Lock()
	defer c.Unlock()

	c.SetCurrentOwner(msg(header.CommandSolve, "[1]").Header)
	c.InsertLearned(lemma.New("a", 0), lemma.New("b", 1))
	c.InsertPulled(lemma.New("c", 2))

	learned := c.DrainLearned()
	assert.Equal(t, []lemma.Lemma{lemma.New("a", 0), lemma.New("b", 1)}, learned["[1]"])
	assert.Equal(t, 0, c.DrainLearned().Count())
	assert.Equal(t, 0, c.DrainLearned().Count())
	assert.True(t, c.LearnedEmpty())

	pulled := c.DrainPulled()
	assert.Equal(t, []lemma.Lemma{lemma.New("c", 2)}, pulled["[1]"])
	assert.Equal(t, 0, c.DrainPulled().Count())

	// drained ledgers are detached from the channel
	c.InsertLearned(lemma.New("d", 0))
	assert.Equal(t, 2, learned.Count())
}

func TestConcurrentInserts(t *testing.T) {
	c := New()
	c.Lock()
	c.SetCurrentOwner(msg(header.CommandSolve, "[0, 1]").Header)
	c.Unlock()

	var wg sync.WaitGroup
	for _, n := range []int{5, 7} {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			batch := make([]lemma.Lemma, n)
			for i := range batch {
				batch[i] = lemma.New("assert(true)", i%3)
			}
			c.Lock()
			c.InsertLearned(batch...)
			c.Unlock()
		}(n)
	}
	wg.Wait()

	c.Lock()
	defer c.Unlock()
	assert.Equal(t, 12, c.LearnedCount())
	drained := c.DrainLearned()
	assert.Equal(t, 1, drained.Len())
	assert.Len(t, drained["[0, 1]"], 12)
}

func TestReset(t *testing.T) {
	c := New()
	c.Lock()
	defer c.Unlock()

	c.SetClauseShareMode()
	c.SetParallelMode()
	c.SetShouldLearnClauses()
	c.SetCurrentOwner(msg(header.CommandSolve, "[1]").Header)
	c.InsertLearned(lemma.New("a", 0))
	c.InsertPulled(lemma.New("b", 0))
	c.Push(msg(header.CommandPartition, "[1]"))
	c.SetShouldStop()
	c.SetShallStop()
	c.SetReset()
	assert.Equal(t, Resetting, c.State())

	c.Reset()

	assert.True(t, c.IsEmpty())
	assert.True(t, c.LearnedEmpty())
	assert.Equal(t, 0, c.PulledCount())
	assert.True(t, c.CurrentOwner().Empty())
	assert.False(t, c.ShouldStop())
	assert.False(t, c.ShallStop())
	assert.False(t, c.ShouldReset())
	assert.False(t, c.ClauseShareMode())
	assert.False(t, c.ShouldLearnClauses())
	assert.False(t, c.ParallelMode())
	assert.Equal(t, Idle, c.State())
}

func TestState(t *testing.T) {
	c := New()
	c.Lock()
	defer c.Unlock()

	assert.Equal(t, Idle, c.State())
	c.Push(msg(header.CommandSolve, "[1]"))
	assert.Equal(t, Dispatching, c.State())
	c.SetShouldStop()
	assert.Equal(t, Stopping, c.State())
	c.SetReset()
	assert.Equal(t, Resetting, c.State())
	assert.Equal(t, "resetting", c.State().String())
}

func TestWaitForReset(t *testing.T) {
	t.Run("times out without reset", func(t *testing.T) {
		c := New()
		c.Lock()
		defer c.Unlock()

		start := time.Now()
		assert.False(t, c.WaitForReset(20*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("notify without reset keeps waiting", func(t *testing.T) {
		c := New()
		go func() {
			time.Sleep(5 * time.Millisecond)
			c.NotifyAll()
		}()

		c.Lock()
		defer c.Unlock()
		start := time.Now()
		assert.False(t, c.WaitForReset(40*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	})

	t.Run("wakes on reset", func(t *testing.T) {
		c := New()
		go func() {
			time.Sleep(10 * time.Millisecond)
			c.Lock()
			c.SetReset()
			c.NotifyAll()
			c.Unlock()
		}()

		c.Lock()
		defer c.Unlock()
		start := time.Now()
		assert.True(t, c.WaitForReset(5*time.Second))
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("returns immediately when reset is pending", func(t *testing.T) {
		c := New()
		c.Lock()
		defer c.Unlock()
		c.SetReset()
		assert.True(t, c.WaitForReset(time.Hour))
	})
}

func TestWaitForEventOrStop(t *testing.T) {
	cases := []struct {
		name    string
		trigger func(c *Channel)
		check   func(t *testing.T, c *Channel)
	}{
		{
			name:    "message",
			trigger: func(c *Channel) { c.Push(msg(header.CommandSolve, "[1]")) },
			check:   func(t *testing.T, c *Channel) { assert.False(t, c.IsEmpty()) },
		},
		{
			name:    "search stopped",
			trigger: func(c *Channel) { c.SetShallStop() },
			check:   func(t *testing.T, c *Channel) { assert.True(t, c.ShallStop()) },
		},
		{
			name:    "reset",
			trigger: func(c *Channel) { c.SetReset() },
			check:   func(t *testing.T, c *Channel) { assert.True(t, c.ShouldReset()) },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := New()
			done := make(chan struct{})
			go func() {
				c.Lock()
				c.WaitForEventOrStop()
				tc.check(t, c)
				c.Unlock()
				close(done)
			}()

			time.Sleep(10 * time.Millisecond)
			c.Lock()
			tc.trigger(c)
			c.NotifyAll()
			c.Unlock()

			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("waiter did not wake up")
			}
		})
	}
}
