// Package guard switches the process into test mode when imported for its
// side effects. Binaries then skip startup and the console reads passwords
// as plain lines instead of from the terminal.
package guard

import (
	"os"

	"github.com/odyssey-erp/odyssey-rbac/internal/app"
)

func init() {
	if os.Getenv(app.TestModeEnv) == "" {
		_ = os.Setenv(app.TestModeEnv, "1")
	}
	app.RefreshTestMode()
}
