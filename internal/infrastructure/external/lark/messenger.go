package lark

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkIm "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
)

// messageCreator is the slice of the IM message API the messenger uses
type messageCreator interface {
	Create(ctx context.Context, req *larkIm.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkIm.CreateMessageResp, error)
}

// Messenger pushes notification text to employees over Lark IM.
// Implements port.MessagePusher.
type Messenger struct {
	messages messageCreator
	logger   *zap.Logger
}

// NewMessenger creates a new Lark message sender adapter
func NewMessenger(client *SDKClient, logger *zap.Logger) *Messenger {
	return &Messenger{
		messages: client.client.Im.Message,
		logger:   logger,
	}
}

// PushText sends a plain text message addressed by open_id
func (m *Messenger) PushText(ctx context.Context, openID string, text string) error {
	if openID == "" {
		return fmt.Errorf("openID cannot be empty")
	}
	if text == "" {
		return fmt.Errorf("content cannot be empty")
	}

	body, err := textMessageBody(openID, text)
	if err != nil {
		return err
	}
	req := larkIm.NewCreateMessageReqBuilder().
		ReceiveIdType("open_id").
		Body(body).
		Build()

	resp, err := m.messages.Create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message",
			zap.String("receive_id", openID),
			zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("receive_id", openID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}
	m.logger.Debug("Message sent",
		zap.String("message_id", messageID),
		zap.String("receive_id", openID))
	return nil
}

// textMessageBody builds the create-message body for msg_type=text
func textMessageBody(openID, text string) (*larkIm.CreateMessageReqBody, error) {
	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return larkIm.NewCreateMessageReqBodyBuilder().
		ReceiveId(openID).
		MsgType("text").
		Content(string(content)).
		Build(), nil
}

var _ port.MessagePusher = (*Messenger)(nil)
