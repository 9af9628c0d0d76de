package app

import (
	"bytes"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/recipegrid/internal/fetch"
	"github.com/vk/recipegrid/internal/hcl"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// SetupAppTest creates a new app instance reading HCL environment files,
// with debug logging captured in the returned buffer.
func SetupAppTest(t *testing.T, cfg Config, opts ...Option) (*App, *SafeBuffer) {
	t.Helper()

	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = 2
	}
	cfg.LogLevel = "debug"
	appConfig, err := NewConfig(cfg)
	require.NoError(t, err)

	f, err := fetch.New(nil, 0)
	require.NoError(t, err)

	logBuffer := &SafeBuffer{}
	testApp := NewApp(logBuffer, appConfig, hcl.NewLoader(f), opts...)

	t.Cleanup(func() {
		if os.Getenv("RECIPEGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
