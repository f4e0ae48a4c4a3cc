package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLIKeyLifecycle(t *testing.T) {
	db := filepath.Join(t.TempDir(), "rsa.db")

	out, err := run(t, "", "--db", db, "import", "--p", "257", "--q", "263", "--e", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "id: 1")
	assert.Contains(t, out, "n = 67591")
	assert.Contains(t, out, "d = 11179")

	out, err = run(t, "", "--db", db, "encrypt", "--key", "1", "--text", "hello")
	require.NoError(t, err)
	cipher := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(cipher, `\x`))

	out, err = run(t, "", "--db", db, "decrypt", "--key", "1", "--cipher", cipher)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)

	out, err = run(t, "", "--db", db, "keys", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "total: 1")

	out, err = run(t, "", "--db", db, "keys", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "keys: 1")

	out, err = run(t, "no\n", "--db", db, "keys", "delete", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "cancelled")

	out, err = run(t, "yes\n", "--db", db, "keys", "delete", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "key 1 deleted")

	out, err = run(t, "", "--db", db, "keys", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no keys")
}

func TestCLIRejectsBadInput(t *testing.T) {
	db := filepath.Join(t.TempDir(), "rsa.db")

	_, err := run(t, "", "--db", db, "keygen", "--bits", "1")
	assert.ErrorContains(t, err, "invalid parameter")

	_, err = run(t, "", "--db", db, "import", "--p", "8", "--q", "9", "--e", "3")
	assert.ErrorContains(t, err, "invalid key material")

	_, err = run(t, "", "--db", db, "import", "--p", "abc", "--q", "9", "--e", "3")
	assert.ErrorContains(t, err, "not a decimal integer")

	_, err = run(t, "", "--db", db, "keys", "show", "x")
	assert.ErrorContains(t, err, "invalid key id")
}

func TestCLIKeygen(t *testing.T) {
	db := filepath.Join(t.TempDir(), "rsa.db")

	out, err := run(t, "", "--db", db, "keygen", "--bits", "16")
	require.NoError(t, err)
	assert.Contains(t, out, "bit length: 16")
	assert.Contains(t, out, "fingerprint:")
}
