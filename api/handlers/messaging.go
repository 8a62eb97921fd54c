package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/linesmerrill/incident-report-api/config"
	"github.com/linesmerrill/incident-report-api/intake"
	"github.com/linesmerrill/incident-report-api/sms"
)

// Conversation advances an SMS report by one message
type Conversation interface {
	Handle(ctx context.Context, d intake.Draft, msg intake.Message) intake.Turn
}

// Messaging serves the SMS webhook
type Messaging struct {
	Codec        *intake.SessionCodec
	Conversation Conversation
}

// ReportIncidentHandler handles one inbound text message. The draft comes
// in and goes out as cookies; the reply is TwiML.
func (m Messaging) ReportIncidentHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		config.ErrorStatus("failed to parse webhook form", http.StatusBadRequest, w, err)
		return
	}

	msg := intake.Message{
		Body:       r.FormValue("Body"),
		MessageSID: r.FormValue("MessageSid"),
		From:       r.FormValue("From"),
	}
	if n, _ := strconv.Atoi(r.FormValue("NumMedia")); n > 0 {
		msg.MediaURL = r.FormValue("MediaUrl0")
	}

	draft := m.Codec.Decode(r)
	zap.S().Debugw("inbound sms",
		"step", draft.Step.String(),
		"messageSid", msg.MessageSID,
		"hasMedia", msg.MediaURL != "")

	turn := m.Conversation.Handle(r.Context(), draft, msg)

	if err := m.Codec.Encode(w, turn.Draft); err != nil {
		zap.S().Errorw("failed to encode session cookies", "error", err)
	}

	body, err := sms.Reply(turn.Messages...)
	if err != nil {
		config.ErrorStatus("failed to render reply", http.StatusInternalServerError, w, err)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}
