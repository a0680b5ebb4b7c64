//go:build integration
// +build integration

package integration

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
)

var (
	logger  = log.NewLogger()
	envRepo = env.NewRepository()
)

func checksumOf(bytes []byte) string {
	hash := sha256.New()
	hash.Write(bytes)
	return hex.EncodeToString(hash.Sum(nil))
}

// requireEnv returns the value of key or skips the test when it is not set.
func requireEnv(t *testing.T, key string) string {
	value := envRepo.Get(key)
	if value == "" {
		t.Skipf("%s is not set", key)
	}
	return value
}

func writeRandomFile(t *testing.T, size int) (string, []byte) {
	content := make([]byte, size)
	if _, err := rand.Read(content); err != nil {
		t.Fatalf("generate content: %s", err)
	}

	pth := filepath.Join(t.TempDir(), "random.bin")
	if err := os.WriteFile(pth, content, 0644); err != nil {
		t.Fatalf("write file: %s", err)
	}
	return pth, content
}
