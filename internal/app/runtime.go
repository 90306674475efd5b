package app

import "os"

// TestModeEnv, set to "1", makes the binaries exit before dialing any
// backing service. The testing package sets it for every test binary.
const TestModeEnv = "PLAYBOOK_TEST_MODE"

// InTestMode reports whether binaries should skip runtime side effects.
func InTestMode() bool {
	return os.Getenv(TestModeEnv) == "1"
}
