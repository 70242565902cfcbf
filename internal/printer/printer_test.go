package printer

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	var out, errOut bytes.Buffer
	restore := SetOutput(&out, &errOut)
	t.Cleanup(func() {
		restore()
		color.NoColor = prev
	})
	return &out, &errOut
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("Test Error", "This is a test error", []string{})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
		assert.Equal(t, "Test Error\n\nThis is a test error\n", errOut.String())
	})

	t.Run("single suggestion is printed plainly", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("Test Error", "Explanation", []string{"Try this fix"})
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, errOut.String(), "\nTry this fix\n")
		assert.NotContains(t, errOut.String(), "Either:")
	})

	t.Run("multiple suggestions are numbered", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("Test Error", "Explanation", []string{"First option", "Second option"})
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, errOut.String(), "Either:\n  1. First option\n  2. Second option\n")
	})
}

func TestErrorWithContext(t *testing.T) {
	_, errOut := capture(t)
	context := map[string]string{
		"Redis":    "redis://localhost:6379",
		"Instance": "default",
	}
	err := ErrorWithContext("Connection failed", "", context, []string{"Start Redis"})
	require.Equal(t, "Connection failed", err.Error())

	text := errOut.String()
	assert.True(t, strings.Index(text, "Instance") < strings.Index(text, "Redis:"), "context keys are sorted")
	assert.Contains(t, text, "  Redis: redis://localhost:6379\n")
}

func TestMessages(t *testing.T) {
	out, _ := capture(t)
	Success("done\n")
	Warning("careful\n")
	Step("next\n")
	Info("plain %d\n", 1)

	assert.Equal(t, "✓ done\n⚠️  careful\n→ next\nplain 1\n", out.String())
}

func TestStream(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf, false)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Println(color.FgCyan, "[Communicator] ", "updating the channel with ", "solve")
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 20)
	for _, l := range lines {
		assert.Equal(t, "[Communicator] updating the channel with solve", l)
	}

	buf.Reset()
	s.Logf(color.FgBlue)("[ClausePush] pushed %d clauses\n", 3)
	assert.Equal(t, "[ClausePush] pushed 3 clauses\n", buf.String())
}

func TestStreamColored(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf, true)
	s.Printf(color.FgGreen, "[Search] %s", "sat")
	assert.Contains(t, buf.String(), "\x1b[32m")
	assert.Contains(t, buf.String(), "[Search] sat")
}
