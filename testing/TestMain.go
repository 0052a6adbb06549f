package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("HEMODASH_TEST_MODE", "1")
		if os.Getenv("SHEET_CSV_URL") == "" {
			_ = os.Setenv("SHEET_CSV_URL", "http://127.0.0.1:0/export.csv")
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
