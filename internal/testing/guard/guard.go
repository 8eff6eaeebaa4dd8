// Package guard flips the runtime into test mode when imported, so binaries
// linked into tests never dial Postgres or Redis.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("CARBONLEDGER_TEST_MODE") == "" {
			_ = os.Setenv("CARBONLEDGER_TEST_MODE", "1")
		}
	})
}
