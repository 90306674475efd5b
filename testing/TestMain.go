// Package testing forces test mode for packages that import it, so app
// wiring never dials real services from a test binary.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("PLAYBOOK_TEST_MODE", "1")
		if os.Getenv("LOG_FORMAT") == "" {
			_ = os.Setenv("LOG_FORMAT", "text")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
