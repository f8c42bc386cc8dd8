package runtime

import "context"

// Chat types as reported by the transport.
const (
	ChatPrivate    = "private"
	ChatGroup      = "group"
	ChatSupergroup = "supergroup"
	ChatChannel    = "channel"
)

// Message is an inbound message or channel post delivered by a transport.
type Message struct {
	ChatID    int64
	ChatType  string
	MessageID int
	// UserID is zero for channel posts.
	UserID int64
	// Text is the message text, or the caption of a media message.
	Text     string
	HasMedia bool
	// Forward is set when the message was forwarded from a channel.
	Forward *ForwardOrigin
}

// ForwardOrigin identifies the channel post a message was forwarded from.
type ForwardOrigin struct {
	ChatID    int64
	MessageID int
	Username  string
}

// IsPrivate reports whether msg was sent in a one-to-one chat with the bot.
func (m *Message) IsPrivate() bool {
	return m != nil && m.ChatType == ChatPrivate
}

// IsChannelPost reports whether msg was posted in a channel.
func (m *Message) IsChannelPost() bool {
	return m != nil && m.ChatType == ChatChannel
}

// Button is one inline keyboard button. URL opens in the browser, or as a
// Mini App when WebApp is set.
type Button struct {
	Text   string
	URL    string
	WebApp bool
}

// Reply is an HTML message with an optional one-button-per-row keyboard.
type Reply struct {
	Text    string
	Buttons []Button
}

// ResponseWriter sends handler responses back to the chat a message came from.
type ResponseWriter interface {
	WriteMessage(ctx context.Context, text string) error
	// WriteReply sends reply and returns the new message's ID.
	WriteReply(ctx context.Context, reply Reply) (int, error)
	// EditReply replaces a message previously sent with WriteReply.
	EditReply(ctx context.Context, messageID int, reply Reply) error
}

// Handler processes inbound messages and writes responses.
type Handler interface {
	HandleMessage(ctx context.Context, w ResponseWriter, msg *Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, w ResponseWriter, msg *Message) error

// HandleMessage calls f.
func (f HandlerFunc) HandleMessage(ctx context.Context, w ResponseWriter, msg *Message) error {
	return f(ctx, w, msg)
}

// Listener receives channel input and dispatches it to a Handler.
type Listener interface {
	Listen(ctx context.Context, handler Handler) error
}
