package identity

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/picoclaw-bridge/bridge/pkg/bridge"
)

func TestBuildCanonicalID(t *testing.T) {
	tests := []struct {
		platform string
		originID string
		want     string
	}{
		{"telegram", "123456", "telegram:123456"},
		{"Discord", "98765432", "discord:98765432"},
		{"", "123", ""},
		{"telegram", "", ""},
		{"  telegram  ", "  123  ", "telegram:123"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, BuildCanonicalID(tt.platform, tt.originID))
	}
}

func TestParseCanonicalID(t *testing.T) {
	platform, id, ok := ParseCanonicalID("telegram:123456")
	require.True(t, ok)
	require.Equal(t, "telegram", platform)
	require.Equal(t, "123456", id)

	_, _, ok = ParseCanonicalID("nocolon")
	require.False(t, ok)

	_, _, ok = ParseCanonicalID(":missing")
	require.False(t, ok)

	_, _, ok = ParseCanonicalID("missing:")
	require.False(t, ok)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "bridge_user.json"))
	require.NoError(t, err)
	return s
}

func TestFindOrCreateIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	u1, err := s.FindOrCreate(bridge.Discord, "111", "Alice")
	require.NoError(t, err)

	u2, err := s.FindOrCreate(bridge.Discord, "111", "Alice (ignored)")
	require.NoError(t, err)

	require.Equal(t, u1.ID, u2.ID)
	require.Equal(t, "Alice", u2.DisplayText)
}

func TestCreateReturnsExistingRecordOnDuplicateOrigin(t *testing.T) {
	s := newTestStore(t)
	first, err := s.Create(bridge.QQ, "222", "Bob")
	require.NoError(t, err)

	second, err := s.Create(bridge.QQ, "222", "Bob Again")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "Bob", second.DisplayText)
}

func TestFindCounterpartSkipsUnlinkedUsers(t *testing.T) {
	s := newTestStore(t)

	unlinked, err := s.Create(bridge.Discord, "1", "Unlinked")
	require.NoError(t, err)
	linked, err := s.Create(bridge.QQ, "2", "Linked")
	require.NoError(t, err)

	refID := "ref-abc"
	linked.RefID = &refID
	_, err = s.BatchUpdate(unlinked, linked)
	require.NoError(t, err)

	got, ok := s.FindCounterpart(refID, bridge.QQ)
	require.True(t, ok)
	require.Equal(t, linked.ID, got.ID)

	_, ok = s.FindCounterpart(refID, bridge.Discord)
	require.False(t, ok)
}

func TestStorePersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge_user.json")

	s, err := Open(path)
	require.NoError(t, err)
	created, err := s.Create(bridge.Telegram, "333", "Carol")
	require.NoError(t, err)

	reopened, err := Open(path)
	require.NoError(t, err)
	got, ok := reopened.Get(created.ID)
	require.True(t, ok)
	require.Equal(t, "Carol", got.DisplayText)
}
