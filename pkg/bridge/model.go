package bridge

// User is a bridge-wide identity record: one row per (Platform, OriginID)
// pair, optionally linked to a counterpart on another platform via RefID.
type User struct {
	ID          string   `json:"id"`
	Platform    Platform `json:"platform"`
	OriginID    string   `json:"origin_id"`
	DisplayText string   `json:"display_text"`
	RefID       *string  `json:"ref_id,omitempty"`
}

// SegmentKind discriminates the variant held by a MessageSegment.
type SegmentKind int

const (
	SegmentPlain SegmentKind = iota
	SegmentAt
	SegmentAtAll
	SegmentImage
	SegmentReply
	SegmentErr
	SegmentOther
)

// ImageSource discriminates how an image segment's bytes can be obtained.
type ImageSource int

const (
	ImageNone ImageSource = iota
	ImageURL
	ImagePath
	ImageBytes
)

// MessageSegment is one piece of a canonical message chain. Exactly the
// fields relevant to Kind are populated; the rest are zero values.
type MessageSegment struct {
	Kind SegmentKind `json:"kind"`

	// SegmentPlain, SegmentErr
	Text string `json:"text,omitempty"`

	// SegmentAt: the bridge user ID being mentioned. Empty AtID with
	// Kind==SegmentAt is not valid; use SegmentAtAll for "mention everyone".
	AtID string `json:"at_id,omitempty"`

	// SegmentImage
	ImageSource ImageSource `json:"image_source,omitempty"`
	ImageURL    string      `json:"image_url,omitempty"`
	ImagePath   string      `json:"image_path,omitempty"`
	ImageBytes  []byte      `json:"image_bytes,omitempty"`

	// SegmentReply: the bridge-message ID being replied to.
	ReplyID string `json:"reply_id,omitempty"`
}

// Plain builds a plain-text segment.
func Plain(text string) MessageSegment { return MessageSegment{Kind: SegmentPlain, Text: text} }

// At builds a mention segment addressed to a bridge user ID.
func At(bridgeUserID string) MessageSegment {
	return MessageSegment{Kind: SegmentAt, AtID: bridgeUserID}
}

// AtAll builds a "mention everyone" segment.
func AtAll() MessageSegment { return MessageSegment{Kind: SegmentAtAll} }

// ImageFromURL builds an image segment backed by a remote URL.
func ImageFromURL(url string) MessageSegment {
	return MessageSegment{Kind: SegmentImage, ImageSource: ImageURL, ImageURL: url}
}

// ImageFromPath builds an image segment backed by a local file path.
func ImageFromPath(path string) MessageSegment {
	return MessageSegment{Kind: SegmentImage, ImageSource: ImagePath, ImagePath: path}
}

// ImageFromBytes builds an image segment backed by raw bytes already
// held in memory (e.g. a platform SDK handed us a byte slice directly).
func ImageFromBytes(b []byte) MessageSegment {
	return MessageSegment{Kind: SegmentImage, ImageSource: ImageBytes, ImageBytes: b}
}

// Reply builds a segment referencing an earlier bridge-message by ID.
func Reply(bridgeMessageID string) MessageSegment {
	return MessageSegment{Kind: SegmentReply, ReplyID: bridgeMessageID}
}

// Err builds a segment standing in for untranslatable platform content
// (e.g. a sticker or a forwarded-message card this bridge doesn't model).
func Err(description string) MessageSegment {
	return MessageSegment{Kind: SegmentErr, Text: description}
}

// Other builds a segment for platform content this bridge intentionally
// passes through opaquely rather than translating.
func Other(description string) MessageSegment {
	return MessageSegment{Kind: SegmentOther, Text: description}
}

// MessageChain is an ordered sequence of segments making up one message.
type MessageChain []MessageSegment

// BridgeConfig names one mapping between platform-native channels that
// should be kept in sync with one another.
type BridgeConfig struct {
	Name     string `json:"name"`
	Enabled  bool   `json:"enable"`
	Discord  DiscordTarget  `json:"discord,omitempty"`
	QQGroup  uint64 `json:"qqGroup,omitempty"`
	TGGroup  int64  `json:"tgGroup,omitempty"`
}

// DiscordTarget pins a bridge mapping to either a channel or a webhook
// on the Discord side.
type DiscordTarget struct {
	ChannelID string `json:"channelId,omitempty"`
	WebhookID string `json:"webhookId,omitempty"`
	Webhook   string `json:"webhookToken,omitempty"`
}

// Message is the canonical in-flight message carried on the bus: a
// chain of segments, attributed to a sender, destined for a bridge
// mapping. ID is assigned once the message has been recorded in the
// correlation store (see bridgecore.Handle.SendMessage); a Message that has not yet
// been recorded has an empty ID.
type Message struct {
	ID            string       `json:"id"`
	SenderID      string       `json:"sender_id"`
	SenderName    string       `json:"sender_name"`
	SenderAvatar  string       `json:"sender_avatar,omitempty"`
	OriginPlatform Platform    `json:"origin_platform"`
	OriginID      string       `json:"origin_id"`
	Bridge        BridgeConfig `json:"bridge"`
	Chain         MessageChain `json:"chain"`

	// TargetPlatform, when non-nil, restricts delivery rendering to a
	// single platform. It is set by bridgecore.Handle.SendFeedback, which
	// the command pseudo-adapter (pkg/channels/cmd) uses to address feedback back to the channel a command was issued from,
	// without needing a point-to-point primitive on the bus itself.
	TargetPlatform *Platform `json:"target_platform,omitempty"`
}

// Ref records that a bridge-message was also delivered to a given
// platform under a given native message ID, so replies/future lookups
// from that platform can find the bridge-wide record again.
type Ref struct {
	Platform Platform `json:"platform"`
	OriginID string   `json:"origin_id"`
}

// MessageRecord is the persisted, bridge-wide record of one relayed
// message: who sent it, what it said, and every platform-native copy
// of it that now exists.
type MessageRecord struct {
	ID       string       `json:"id"`
	SenderID string       `json:"sender_id"`
	Avatar   string       `json:"avatar,omitempty"`
	Chain    MessageChain `json:"chain"`
	Refs     []Ref        `json:"refs"`
}

// RefOn returns the native message ID this record was delivered under on
// platform, if any copy has been recorded there yet.
func (r *MessageRecord) RefOn(platform Platform) (string, bool) {
	for _, ref := range r.Refs {
		if ref.Platform == platform {
			return ref.OriginID, true
		}
	}
	return "", false
}

// SaveForm is the input to bridgecore.Handle.SendMessage / correlation.Store.Save:
// everything needed to record a freshly-translated inbound message
// before it is fanned out to the rest of the bridge.
type SaveForm struct {
	SenderID       string
	SenderName     string
	SenderAvatar   string
	Chain          MessageChain
	OriginPlatform Platform
	OriginID       string
}
