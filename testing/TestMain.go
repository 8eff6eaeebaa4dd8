package testing

import (
	"os"
	"sync"
	stdtesting "testing"

	_ "github.com/carbonledger/carbonledger/internal/testing/guard"
)

var once sync.Once

func ensureDefaults() {
	once.Do(func() {
		if os.Getenv("LEDGER_ROOT_AUTHORITY") == "" {
			_ = os.Setenv("LEDGER_ROOT_AUTHORITY", "0xroot")
		}
	})
}

func init() {
	ensureDefaults()
}

// TestMain lets packages delegate their TestMain here after importing this
// package for its side effects.
func TestMain(m *stdtesting.M) {
	ensureDefaults()
	os.Exit(m.Run())
}
