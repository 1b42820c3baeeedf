package input

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/zhouzirui/tutibot/backend/internal/model/chat"
)

// DataURL encodes raw bytes as a base64 data URL. An empty or generic
// declared type is replaced by the sniffed one.
func DataURL(data []byte, declared string) string {
	mime := strings.TrimSpace(declared)
	if mime == "" || mime == "application/octet-stream" {
		mime = mimetype.Detect(data).String()
	}
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// SendImage reads the whole file, stores it as a data URL on a user message
// in the active chat and schedules the acknowledgement for that chat. A nil
// reader or an empty file is ErrNoFile. The content type is not checked.
func (c *Composer) SendImage(ctx context.Context, r io.Reader, declaredType string) (Sent, error) {
	if r == nil {
		return Sent{}, ErrNoFile
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Sent{}, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return Sent{}, ErrNoFile
	}

	url := DataURL(data, declaredType)
	msg := chat.NewImageMessage(ImageMessageText, url, c.now())
	chatID, err := c.chats.AppendActive(ctx, msg)
	if err != nil {
		return Sent{}, err
	}
	c.logger.Debug("image message appended", zap.String("chatId", chatID), zap.Int("bytes", len(data)))

	return Sent{ChatID: chatID, Message: msg, Reply: c.replier.ReplyImage(chatID)}, nil
}
