// Package messages holds the bot's user-facing texts and the URLs it hands out.
//
// All templates are Telegram HTML and are sent with ParseModeHTML.
package messages

import (
	"fmt"
	"html"
	"strings"
)

const (
	Welcome = `<b>━━ TAG BOT ━━</b>

🟨 <b>SYSTEM ONLINE</b>

<code>1</code> 将 Bot 加入频道设为管理员
<code>2</code> 频道内发送 /config
<code>3</code> 发布内容开始打标

<i>❯❯❯ Ready</i>`

	ConfigPrompt = `<b>━━ CONFIG ━━</b>

🟨 点击按钮前往私聊配置`

	TagPreparing = `<b>━━ LOADING ━━</b>

🟨 正在准备...`

	TagReady = `<b>━━ TAG ━━</b>

🟨 点击按钮开始打标`

	ForwardDetected = `<b>━━ DETECTED ━━</b>

🟩 已识别频道消息，点击打标`

	ErrMessageNotFound = `<b>━━ ERROR ━━</b>

🟥 <b>NOT FOUND</b>
消息可能已删除或 Bot 不是管理员`

	ErrInvalidParam = `<b>━━ ERROR ━━</b>

🟥 <b>INVALID</b>
无效的参数`

	ErrWrongChat = `<b>━━ ERROR ━━</b>

🟥 <b>WRONG CHAT</b>
请在频道或群组中使用此命令`

	// ErrInternal is shown when a queued update fails.
	ErrInternal = `<b>━━ ERROR ━━</b>

🟥 <b>FAILED</b>
处理请求时出错，请稍后再试`
)

// Button labels.
const (
	ButtonConfigure     = "🛠️ 去私聊配置 / Configure"
	ButtonOpenConfig    = "🛠️ 打开配置页面 / Open Config"
	ButtonEditTags      = "✍️ 去私聊打标 / Edit Tags"
	ButtonStartTagging  = "🏷️ 开始打标 / Start Tagging"
	ButtonView          = "🔗 VIEW"
	summaryPreviewRunes = 40
)

// ConfigEntry is the private-chat message that opens the config form for chatID.
func ConfigEntry(chatID string) string {
	return fmt.Sprintf(`<b>━━ CONFIG ━━</b>

🟦 <code>%s</code>

点击按钮打开配置面板`, html.EscapeString(chatID))
}

// TagSuccess confirms a saved tag block, previewing the start of the cleaned
// caption.
func TagSuccess(summary string) string {
	var b strings.Builder
	b.WriteString("<b>━━ SUCCESS ━━</b>\n\n🟩 <b>TAG SAVED</b>\n")
	if preview := Preview(summary, summaryPreviewRunes); preview != "" {
		b.WriteString("<i>")
		b.WriteString(html.EscapeString(preview))
		b.WriteString("</i>")
	}
	return b.String()
}

// Preview truncates text to limit runes, marking the cut with "...".
func Preview(text string, limit int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
