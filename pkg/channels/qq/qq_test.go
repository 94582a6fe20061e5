package qq

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/picoclaw-bridge/bridge/pkg/bridge"
	"github.com/picoclaw-bridge/bridge/pkg/channels"
)

func TestIsDuplicateRejectsRepeatedID(t *testing.T) {
	c := &Channel{processedIDs: make(map[string]struct{})}

	require.False(t, c.isDuplicate("msg-1"))
	require.True(t, c.isDuplicate("msg-1"))
	require.False(t, c.isDuplicate("msg-2"))
}

func TestIsDuplicateCapsMapSize(t *testing.T) {
	c := &Channel{processedIDs: make(map[string]struct{})}

	for i := 0; i < 10001; i++ {
		c.isDuplicate(string(rune(i)))
	}
	require.LessOrEqual(t, len(c.processedIDs), 10001)
}

func TestBotMentionPatternStripsLeadingMention(t *testing.T) {
	require.Equal(t, "hello", botMentionPattern.ReplaceAllString("<@!12345> hello", ""))
	require.Equal(t, "hello", botMentionPattern.ReplaceAllString("<@12345>hello", ""))
	require.Equal(t, "no mention here", botMentionPattern.ReplaceAllString("no mention here", ""))
}

func TestClassifyQQErrMapsRateLimit(t *testing.T) {
	err := classifyQQErr(errors.New("429 frequency limit exceeded"))
	require.ErrorIs(t, err, channels.ErrRateLimit)
}

func TestClassifyQQErrFallsBackToNetworkError(t *testing.T) {
	err := classifyQQErr(errors.New("dial tcp: connection refused"))
	require.ErrorIs(t, err, channels.ErrTemporary)
}

func TestResolveImagePassesThroughPath(t *testing.T) {
	c := &Channel{}
	seg := bridge.MessageSegment{Kind: bridge.SegmentImage, ImageSource: bridge.ImagePath, ImagePath: "/tmp/pic.png"}
	path, err := c.resolveImage(nil, seg)
	require.NoError(t, err)
	require.Equal(t, "/tmp/pic.png", path)
}
