package messages

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Mini App pages served under the public URL.
const (
	PageConfigForm = "config-form"
	PageTagForm    = "tag-form"
)

// Deep link payload prefixes understood by /start.
const (
	PayloadConfig = "config_"
	PayloadTag    = "tag_"
)

// Links builds the URLs the bot puts on buttons. BaseURL is the public origin
// of the forms; BotUsername is the bot's @username without the @.
type Links struct {
	BaseURL     string
	BotUsername string
}

// DeepLink opens a private chat with the bot and sends /start payload.
func (l Links) DeepLink(payload string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", strings.TrimPrefix(l.BotUsername, "@"), payload)
}

// ConfigDeepLink is the deep link that starts configuring chatID.
func (l Links) ConfigDeepLink(chatID int64) string {
	return l.DeepLink(PayloadConfig + strconv.FormatInt(chatID, 10))
}

// TagDeepLink is the deep link that starts tagging one channel post.
func (l Links) TagDeepLink(chatID int64, messageID int) string {
	return l.DeepLink(fmt.Sprintf("%s%d_%d", PayloadTag, chatID, messageID))
}

// WebApp builds <BaseURL>/<page>?<params>.
func (l Links) WebApp(page string, params url.Values) string {
	base := strings.TrimRight(strings.TrimSpace(l.BaseURL), "/")
	if base != "" && !strings.Contains(base, "://") {
		base = "https://" + base
	}
	u := base + "/" + strings.TrimLeft(page, "/")
	if encoded := params.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}

// TagForm carries the query parameters of the tag form.
type TagForm struct {
	ChatID          int64
	MessageID       int
	PrivateChatID   int64
	UserMsgID       int
	BotMsgID        int
	ChannelUsername string
	// Tags is the JSON object of values decoded from the post, if any.
	Tags string
}

// TagFormURL builds the tag form URL for f.
func (l Links) TagFormURL(f TagForm) string {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(f.ChatID, 10))
	params.Set("message_id", strconv.Itoa(f.MessageID))
	params.Set("private_chat_id", strconv.FormatInt(f.PrivateChatID, 10))
	params.Set("user_msg_id", strconv.Itoa(f.UserMsgID))
	params.Set("bot_msg_id", strconv.Itoa(f.BotMsgID))
	if f.ChannelUsername != "" {
		params.Set("channel_username", f.ChannelUsername)
	}
	if f.Tags != "" {
		params.Set("tags", f.Tags)
	}
	return l.WebApp(PageTagForm, params)
}

// ConfigFormURL builds the config form URL for chatID.
func (l Links) ConfigFormURL(chatID string) string {
	return l.WebApp(PageConfigForm, url.Values{"chat_id": {chatID}})
}

// PostLink links to a channel post: t.me/<username>/<id> for public
// channels, t.me/c/<internal id>/<id> for private ones.
func PostLink(chatID, username string, messageID int) string {
	if username = strings.TrimPrefix(strings.TrimSpace(username), "@"); username != "" {
		return fmt.Sprintf("https://t.me/%s/%d", username, messageID)
	}
	return fmt.Sprintf("https://t.me/c/%s/%d", strings.TrimPrefix(strings.TrimSpace(chatID), "-100"), messageID)
}

// ParseTagPayload splits a tag_<chat>_<message> payload.
func ParseTagPayload(payload string) (chatID int64, messageID int, ok bool) {
	rest, found := strings.CutPrefix(payload, PayloadTag)
	if !found {
		return 0, 0, false
	}
	// chat ids are negative for channels, so split on the last underscore.
	idx := strings.LastIndex(rest, "_")
	if idx <= 0 {
		return 0, 0, false
	}
	chatID, err := strconv.ParseInt(rest[:idx], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	messageID, err = strconv.Atoi(rest[idx+1:])
	if err != nil || messageID <= 0 {
		return 0, 0, false
	}
	return chatID, messageID, true
}

// ParseConfigPayload extracts the chat id from a config_<chat> payload.
func ParseConfigPayload(payload string) (string, bool) {
	rest, found := strings.CutPrefix(payload, PayloadConfig)
	if !found {
		return "", false
	}
	if _, err := strconv.ParseInt(rest, 10, 64); err != nil {
		return "", false
	}
	return rest, true
}
