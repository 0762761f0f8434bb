package cryptox_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/stockpanel/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	s, err := cryptox.NewSealer([]byte("test-master-key-for-encryption-12345"))
	require.NoError(t, err)

	plaintext := []byte("eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxIn0.c2ln")

	sealed, err := s.Seal(plaintext, []byte("access_token"))
	require.NoError(t, err)
	require.NotContains(t, string(sealed), string(plaintext))

	opened, err := s.Open(sealed, []byte("access_token"))
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestSealUsesFreshNonce(t *testing.T) {
	s, err := cryptox.NewSealer([]byte("k"))
	require.NoError(t, err)

	a, err := s.Seal([]byte("same"), nil)
	require.NoError(t, err)
	b, err := s.Seal([]byte("same"), nil)
	require.NoError(t, err)

	require.NotEqual(t, a, b)
}

func TestOpenFailures(t *testing.T) {
	s, err := cryptox.NewSealer([]byte("key-one"))
	require.NoError(t, err)
	other, err := cryptox.NewSealer([]byte("key-two"))
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("secret"), []byte("refresh_token"))
	require.NoError(t, err)

	t.Run("wrong key", func(t *testing.T) {
		_, err := other.Open(sealed, []byte("refresh_token"))
		require.Error(t, err)
	})

	t.Run("wrong additional data", func(t *testing.T) {
		_, err := s.Open(sealed, []byte("access_token"))
		require.Error(t, err)
	})

	t.Run("tampered", func(t *testing.T) {
		tampered := append([]byte(nil), sealed...)
		tampered[len(tampered)-1] ^= 0xff
		_, err := s.Open(tampered, []byte("refresh_token"))
		require.Error(t, err)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := s.Open([]byte("short"), nil)
		require.ErrorIs(t, err, cryptox.ErrCiphertextTooShort)
	})
}

func TestNewSealerRequiresMaterial(t *testing.T) {
	_, err := cryptox.NewSealer(nil)
	require.ErrorIs(t, err, cryptox.ErrNoKeyMaterial)
}

func TestLoadKeyMaterial(t *testing.T) {
	t.Run("file wins", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "master.key")
		require.NoError(t, os.WriteFile(path, []byte("from-file"), 0o600))
		t.Setenv("STOCKPANEL_TEST_KEY", "from-env")

		got, err := cryptox.LoadKeyMaterial(path, "STOCKPANEL_TEST_KEY")
		require.NoError(t, err)
		require.Equal(t, []byte("from-file"), got)
	})

	t.Run("env fallback", func(t *testing.T) {
		t.Setenv("STOCKPANEL_TEST_KEY", "from-env")
		got, err := cryptox.LoadKeyMaterial("", "STOCKPANEL_TEST_KEY")
		require.NoError(t, err)
		require.Equal(t, []byte("from-env"), got)
	})

	t.Run("nothing", func(t *testing.T) {
		t.Setenv("STOCKPANEL_TEST_KEY", "")
		_, err := cryptox.LoadKeyMaterial("", "STOCKPANEL_TEST_KEY")
		require.ErrorIs(t, err, cryptox.ErrNoKeyMaterial)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := cryptox.LoadKeyMaterial(filepath.Join(t.TempDir(), "nope"), "STOCKPANEL_TEST_KEY")
		require.Error(t, err)
	})
}
