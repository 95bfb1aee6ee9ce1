// Package guard flips the runtime into test mode when blank-imported from a
// test file, before any package init can read the flag.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("QUARRY_TEST_MODE") == "" {
			_ = os.Setenv("QUARRY_TEST_MODE", "1")
		}
	})
}
