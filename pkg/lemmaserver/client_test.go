package lemmaserver

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usi-verification-and-security/ptplib/pkg/channel"
	"github.com/usi-verification-and-security/ptplib/pkg/header"
	"github.com/usi-verification-and-security/ptplib/pkg/lemma"
)

// setupTestClient creates a client connected to a miniredis instance.
func setupTestClient(t *testing.T, solverID string) (*Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	return newTestClient(t, mr, solverID), mr
}

func newTestClient(t *testing.T, mr *miniredis.Miniredis, solverID string) *Client {
	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance", solverID)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

var owner = header.New(header.KeyName, "i1", header.KeyNode, "[]")

func TestNewClient(t *testing.T) {
	t.Run("creates client successfully", func(t *testing.T) {
		client, _ := setupTestClient(t, "s1")
		assert.Equal(t, "test-instance", client.InstanceName())
		assert.Equal(t, "s1", client.SolverID())
	})

	t.Run("generates a solver id", func(t *testing.T) {
		client, _ := setupTestClient(t, "")
		assert.Len(t, client.SolverID(), 36)
	})

	t.Run("rejects empty instance name", func(t *testing.T) {
		_, err := NewClient(&redis.Options{Addr: "localhost:6379"}, "", "s1")
		assert.ErrorContains(t, err, "instance name cannot be empty")
	})
}

func TestPing(t *testing.T) {
	client, _ := setupTestClient(t, "s1")
	assert.NoError(t, client.Ping(context.Background()))
}

func TestWriteLemmas(t *testing.T) {
	client, mr := setupTestClient(t, "s1")
	ctx := context.Background()

	ledger := lemma.Ledger{}
	ledger.Append("[]", lemma.New("(a)", 0), lemma.New("(b)", 0))
	ledger.Append("[0]", lemma.New("(c)", 1))

	n, err := client.WriteLemmas(ctx, owner, ledger)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	root, err := mr.List(LemmasKey("test-instance", "i1", "[]"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		`{"solver":"s1","level":0,"clause":"(a)"}`,
		`{"solver":"s1","level":0,"clause":"(b)"}`,
	}, root)

	child, err := mr.List(LemmasKey("test-instance", "i1", "[0]"))
	require.NoError(t, err)
	assert.Len(t, child, 1)

	t.Run("empty ledger writes nothing", func(t *testing.T) {
		n, err := client.WriteLemmas(ctx, owner, lemma.Ledger{})
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("owner without name is rejected", func(t *testing.T) {
		_, err := client.WriteLemmas(ctx, header.New(header.KeyNode, "[]"), ledger)
		assert.Error(t, err)
	})
}

func TestReadLemmas(t *testing.T) {
	mr := miniredis.RunT(t)
	alice := newTestClient(t, mr, "alice")
	bob := newTestClient(t, mr, "bob")
	ctx := context.Background()

	ledger := lemma.Ledger{}
	ledger.Append("[]", lemma.New("(a)", 0), lemma.New("(b)", 2))
	_, err := alice.WriteLemmas(ctx, owner, ledger)
	require.NoError(t, err)

	t.Run("own lemmas are skipped", func(t *testing.T) {
		got, err := alice.ReadLemmas(ctx, owner)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("peer lemmas are read once", func(t *testing.T) {
		got, err := bob.ReadLemmas(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, []lemma.Lemma{lemma.New("(a)", 0), lemma.New("(b)", 2)}, got)

		got, err = bob.ReadLemmas(ctx, owner)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("cursor advances past new entries", func(t *testing.T) {
		more := lemma.Ledger{}
		more.Append("[]", lemma.New("(c)", 1))
		_, err := alice.WriteLemmas(ctx, owner, more)
		require.NoError(t, err)

		got, err := bob.ReadLemmas(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, []lemma.Lemma{lemma.New("(c)", 1)}, got)
	})

	t.Run("malformed entries are skipped", func(t *testing.T) {
		other := header.New(header.KeyName, "i2", header.KeyNode, "[]")
		key := LemmasKey("test-instance", "i2", "[]")
		_, err := mr.RPush(key, "not json", `{"solver":"alice","level":0,"clause":"(d)"}`)
		require.NoError(t, err)

		got, err := bob.ReadLemmas(ctx, other)
		require.NoError(t, err)
		assert.Equal(t, []lemma.Lemma{lemma.New("(d)", 0)}, got)
	})
}

func TestReports(t *testing.T) {
	client, _ := setupTestClient(t, "s1")
	ctx := context.Background()

	_, err := client.GetResult(ctx, owner)
	assert.True(t, IsNotFound(err))

	require.NoError(t, client.ReportResult(ctx, owner, "sat"))
	result, err := client.GetResult(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "sat", result)
}

func TestMessageCodec(t *testing.T) {
	msg := channel.NewMessage(header.New(header.KeyCommand, "solve", header.KeyName, "i1", header.KeyNode, "[]"), "(assert x)")
	wire := EncodeMessage(msg)
	assert.Equal(t, `{"command":"solve","name":"i1","node":"[]"}(assert x)`, wire)

	decoded, err := DecodeMessage(wire)
	require.NoError(t, err)
	assert.True(t, msg.Header.Equal(decoded.Header))
	assert.Equal(t, "(assert x)", decoded.Body)

	_, err = DecodeMessage(`{"command":`)
	assert.ErrorIs(t, err, header.ErrSyntax)
}

func TestSubscribeCommands(t *testing.T) {
	client, _ := setupTestClient(t, "s1")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := client.SubscribeCommands(ctx)
	require.NoError(t, err)
	defer sub.Close()

	msg := channel.NewMessage(header.New(header.KeyCommand, "stop", header.KeyName, "i1", header.KeyNode, "[]"), "")
	require.NoError(t, client.PublishCommand(ctx, msg))

	select {
	case got := <-sub.Messages():
		assert.Equal(t, "stop", got.Command())
	case <-ctx.Done():
		t.Fatal("timeout waiting for command")
	}

	t.Run("undecodable payload goes to errors", func(t *testing.T) {
		require.NoError(t, client.rdb.Publish(ctx, CommandsChannel("test-instance"), "garbage").Err())
		select {
		case err := <-sub.Errors():
			assert.ErrorContains(t, err, "failed to decode command")
		case <-ctx.Done():
			t.Fatal("timeout waiting for error")
		}
	})

	t.Run("close is idempotent", func(t *testing.T) {
		assert.NoError(t, sub.Close())
		assert.NoError(t, sub.Close())
	})
}
