package store

import "strconv"

// Key prefixes for the categories of moderation state kept in Redis.
const (
	UserPrefix = "tg:users:"
	ChatPrefix = "tg:chats:"

	EnabledFeaturesKey = "tg:enabled_features"

	LearnedPrefix         = "tg:learned:"
	LearnedSpamCounterKey = "tg:learned:spam_messages"
	LearnedHamCounterKey  = "tg:learned:ham_messages"
)

// Fields of the per-user hash.
const (
	FieldRep        = "rep"
	FieldFlood      = "flood"
	FieldEqMsgCount = "eq_msg_count"
	FieldLastMsg    = "last_msg"
	FieldBanned     = "banned"
	FieldBannedQ    = "banned_q"
	FieldPermBanned = "perm_banned"
	FieldFirstSeen  = "first_seen"
	FieldLastSeen   = "last_seen"
)

// Fields of the per-chat hash.
const (
	FieldSpamCount       = "spam_count"
	FieldDeleted         = "deleted"
	FieldBannedCount     = "banned_count"
	FieldPermBannedCount = "perm_banned"

	// Per-chat feature overrides live in the chat hash under feature:<name>.
	FeatureFieldPrefix = "feature:"
)

func UserKey(userID int64) string {
	return UserPrefix + strconv.FormatInt(userID, 10)
}

func ChatKey(chatID int64) string {
	return ChatPrefix + strconv.FormatInt(chatID, 10)
}

func FeatureField(feature string) string {
	return FeatureFieldPrefix + feature
}

func LearnedKey(label, messageID string) string {
	return LearnedPrefix + label + ":" + messageID
}
