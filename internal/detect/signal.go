package detect

// Signal names shared with the scoring oracle. The TG_* vocabulary mirrors
// what the oracle reports back per message.
const (
	SignalFlood      = "TG_FLOOD"
	SignalRepeat     = "TG_REPEAT"
	SignalSuspicious = "TG_SUSPICIOUS"
	SignalBan        = "TG_BAN"
	SignalPermBan    = "TG_PERM_BAN"

	SignalFirstFast = "TG_FIRST_FAST"
	SignalFirstSlow = "TG_FIRST_SLOW"
	SignalSilent    = "TG_SILENT"

	SignalLinkSpam   = "TG_LINK_SPAM"
	SignalMentions   = "TG_MENTIONS"
	SignalCaps       = "TG_CAPS"
	SignalEmojiSpam  = "TG_EMOJI_SPAM"
	SignalInviteLink = "TG_INVITE_LINK"
	SignalPhoneSpam  = "TG_PHONE_SPAM"
	SignalSpamChat   = "TG_SPAM_CHAT"
	SignalShortener  = "TG_SHORTENER"
	SignalGibberish  = "TG_GIBBERISH"

	SignalReputationBad  = "USER_REPUTATION_BAD"
	SignalReputationGood = "USER_REPUTATION_GOOD"
)

// Signal is the ephemeral per-message indicator consumed by reputation and
// escalation. It is never persisted.
type Signal struct {
	Name      string
	Triggered bool
	Weight    float64
}

// DefaultWeights returns the built-in signal weight table. Hosts may overlay
// it through the weights file, see config.LoadWeights.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		SignalFlood:      3.0,
		SignalRepeat:     2.0,
		SignalSuspicious: 5.0,

		SignalFirstFast: 2.0,
		SignalFirstSlow: 0.5,
		SignalSilent:    1.0,

		SignalLinkSpam:   2.5,
		SignalMentions:   1.5,
		SignalCaps:       1.0,
		SignalEmojiSpam:  1.0,
		SignalInviteLink: 4.0,
		SignalPhoneSpam:  3.0,
		SignalSpamChat:   3.5,
		SignalShortener:  2.0,
		SignalGibberish:  2.0,
	}
}

var featureBySignal = map[string]string{
	SignalFlood:      "flood",
	SignalRepeat:     "repeat",
	SignalSuspicious: "suspicious",
	SignalBan:        "ban",
	SignalPermBan:    "perm_ban",
	SignalFirstFast:  "first_fast",
	SignalFirstSlow:  "first_slow",
	SignalSilent:     "silent",
	SignalLinkSpam:   "link_spam",
	SignalMentions:   "mentions",
	SignalCaps:       "caps",
	SignalEmojiSpam:  "emoji_spam",
	SignalInviteLink: "invite_link",
	SignalPhoneSpam:  "phone_spam",
	SignalSpamChat:   "spam_chat",
	SignalShortener:  "shortener",
	SignalGibberish:  "gibberish",
}

// FeatureFor maps a signal to the feature flag gating it. Signals without a
// gate (reputation feedback from the oracle) report ok=false and are always
// consumed.
func FeatureFor(signal string) (string, bool) {
	feature, ok := featureBySignal[signal]
	return feature, ok
}
