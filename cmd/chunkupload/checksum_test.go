package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	dir := t.TempDir()
	first, firstContent := writeTestFile(t, dir, "a.bin", 100)
	second, secondContent := writeTestFile(t, dir, "b.bin", 7)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs([]string{"checksum", first, second, "--window-size", "16"})
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	firstSum := sha256.Sum256(firstContent)
	secondSum := sha256.Sum256(secondContent)
	assert.Equal(t,
		hex.EncodeToString(firstSum[:])+"  "+first+"\n"+hex.EncodeToString(secondSum[:])+"  "+second+"\n",
		out.String())
}

func TestChecksumCommand_Errors(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	pth, _ := writeTestFile(t, t.TempDir(), "a.bin", 4)

	assert.Error(t, executeRoot("checksum", pth, "--window-size", "0"))
	assert.Error(t, executeRoot("checksum", pth, "--window-size", "huge"))
	assert.Error(t, executeRoot("checksum", filepath.Join(t.TempDir(), "missing.bin")))
	assert.Error(t, executeRoot("checksum"))
}
