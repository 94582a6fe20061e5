package correlation

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/picoclaw-bridge/bridge/pkg/bridge"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "bridge_message.json"))
	require.NoError(t, err)
	return s
}

func TestSaveSeedsOneRef(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Save(bridge.SaveForm{
		SenderID:       "u1",
		Chain:          bridge.MessageChain{bridge.Plain("hello")},
		OriginPlatform: bridge.Discord,
		OriginID:       "111",
	})
	require.NoError(t, err)

	record, ok := s.Get(id)
	require.True(t, ok)
	require.Len(t, record.Refs, 1)
	require.Equal(t, bridge.Discord, record.Refs[0].Platform)
	require.Equal(t, "111", record.Refs[0].OriginID)
}

func TestAddRefIsIdempotentPerPlatform(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Save(bridge.SaveForm{OriginPlatform: bridge.Discord, OriginID: "111"})
	require.NoError(t, err)

	require.NoError(t, s.AddRef(id, bridge.QQ, "222"))
	require.NoError(t, s.AddRef(id, bridge.QQ, "333")) // same platform again: no-op

	record, _ := s.Get(id)
	require.Len(t, record.Refs, 2)

	qqRefs := 0
	for _, ref := range record.Refs {
		if ref.Platform == bridge.QQ {
			qqRefs++
			require.Equal(t, "222", ref.OriginID) // first write wins
		}
	}
	require.Equal(t, 1, qqRefs)
}

func TestFindByRefAmbiguous(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Save(bridge.SaveForm{OriginPlatform: bridge.Discord, OriginID: "dup"})
	require.NoError(t, err)
	_, err = s.Save(bridge.SaveForm{OriginPlatform: bridge.Discord, OriginID: "dup"})
	require.NoError(t, err)

	_, err = s.FindByRef(bridge.Discord, "dup")
	require.ErrorIs(t, err, ErrAmbiguousRef)
}

func TestFindByRefNotFound(t *testing.T) {
	s := newTestStore(t)
	record, err := s.FindByRef(bridge.Telegram, "nope")
	require.NoError(t, err)
	require.Nil(t, record)
}

func TestStorePersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge_message.json")

	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.Save(bridge.SaveForm{SenderID: "u9", OriginPlatform: bridge.Cmd, OriginID: "x"})
	require.NoError(t, err)

	reopened, err := Open(path)
	require.NoError(t, err)
	record, ok := reopened.Get(id)
	require.True(t, ok)
	require.Equal(t, "u9", record.SenderID)
}
