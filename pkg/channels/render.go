package channels

import (
	"strings"

	"github.com/picoclaw-bridge/bridge/pkg/bridge"
	"github.com/picoclaw-bridge/bridge/pkg/bridgecore"
)

// Rendered is one message chain flattened for a specific outbound
// platform: plain text with mentions substituted, plus any image
// segments and reply target left for the adapter to attach through its
// own native API.
type Rendered struct {
	Text     string
	Images   []bridge.MessageSegment
	ReplyTo  string // bridge-message ID from a SegmentReply, if any
	HasReply bool
}

// MentionFormatter renders a resolved bridge user as platform-native
// mention markup. nativeID is empty when the user has no known
// counterpart account on the rendering platform, in which case the
// formatter should fall back to plain display text.
type MentionFormatter func(user *bridge.User, nativeID string) string

// Render flattens chain into platform-native text plus separated
// image/reply segments. own is the platform doing the rendering, used
// to resolve each SegmentAt's target into its counterpart account (if
// any) on that platform via handle.FindCounterpart.
func Render(handle *bridgecore.Handle, own bridge.Platform, chain bridge.MessageChain, mention MentionFormatter, everyoneText string) Rendered {
	var out Rendered
	var b strings.Builder

	for _, seg := range chain {
		switch seg.Kind {
		case bridge.SegmentPlain, bridge.SegmentErr, bridge.SegmentOther:
			b.WriteString(seg.Text)
		case bridge.SegmentAt:
			b.WriteString(renderMention(handle, own, seg.AtID, mention))
		case bridge.SegmentAtAll:
			b.WriteString(everyoneText)
		case bridge.SegmentImage:
			out.Images = append(out.Images, seg)
		case bridge.SegmentReply:
			out.ReplyTo = seg.ReplyID
			out.HasReply = true
		}
	}

	out.Text = b.String()
	return out
}

func renderMention(handle *bridgecore.Handle, own bridge.Platform, atID string, mention MentionFormatter) string {
	user, ok := handle.GetUser(atID)
	if !ok {
		return "@someone"
	}

	var nativeID string
	switch {
	case user.Platform == own:
		nativeID = user.OriginID
	case user.RefID != nil:
		if counterpart, ok := handle.FindCounterpart(*user.RefID, own); ok {
			nativeID = counterpart.OriginID
		}
	}
	return mention(user, nativeID)
}
