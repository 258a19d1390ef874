package websocket

import (
	"errors"
	"time"
)

// frameError is the error frame a handler wants sent back to the client.
type frameError struct {
	message string
	code    string
}

var (
	errInvalidFrame      = &frameError{message: msgProcessingFailed, code: CodeInvalidFrame}
	errUnknownType       = &frameError{message: msgUnknownType, code: CodeUnknownType}
	errChatNotFound      = &frameError{message: msgChatNotFound, code: CodeChatNotFound}
	errNotParticipant    = &frameError{message: msgProcessingFailed, code: CodeNotParticipant}
	errPersistenceFailed = &frameError{message: msgSendFailed, code: CodePersistenceFailed}
)

// dispatch decodes one inbound frame and runs its handler. Failures are
// reported to the sender as error frames; the connection stays open.
func (h *Handler) dispatch(client *Client, raw []byte) {
	start := time.Now()

	frame, err := DecodeInbound(raw)
	if err != nil {
		failure := errInvalidFrame
		if errors.Is(err, ErrUnknownFrameType) {
			failure = errUnknownType
		}
		h.logger.WithUserID(client.UserID).WithError(err).Debug("Rejected inbound frame")
		h.sendError(client, failure.message, failure.code)
		return
	}

	var failure *frameError
	switch f := frame.(type) {
	case *ChatMessageFrame:
		failure = h.handleChatMessage(client, f)
	case *TypingFrame:
		failure = h.handleTyping(client, f)
	}

	if failure != nil {
		h.sendError(client, failure.message, failure.code)
	}
	h.metrics.observeLatency(frame.frameType(), time.Since(start))
}
