// Package guard flips the service into test mode for any test binary that
// imports it, keeping side effects such as detached session writes synchronous.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("ONBOARDING_TEST_MODE") == "" {
			_ = os.Setenv("ONBOARDING_TEST_MODE", "1")
		}
	})
}
