package guard

import (
	"os"
	"testing"

	"github.com/odyssey-erp/odyssey-rbac/internal/app"
)

func TestImportEnablesTestMode(t *testing.T) {
	if os.Getenv(app.TestModeEnv) != "1" {
		t.Fatalf("%s not set", app.TestModeEnv)
	}
	if !app.InTestMode() {
		t.Fatal("expected test mode")
	}
}
