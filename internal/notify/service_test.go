package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHub struct {
	kinds []string
}

func (h *recordingHub) Broadcast(kind string, _ any) { h.kinds = append(h.kinds, kind) }

type recordingEmail struct {
	sent   []EmailMessage
	failTo string
}

func (r *recordingEmail) Send(_ context.Context, msg EmailMessage) error {
	if msg.To == r.failTo {
		return errors.New("mailbox full")
	}
	r.sent = append(r.sent, msg)
	return nil
}

type mailPayload []EmailMessage

func (m mailPayload) Emails() []EmailMessage { return m }

func TestDispatcherBroadcastsEverything(t *testing.T) {
	hub := &recordingHub{}
	email := &recordingEmail{}
	d := NewDispatcher(hub, email, "staff@example.com", nil)

	require.NoError(t, d.Notify(context.Background(), KindChatMessage, map[string]string{"text": "xin chào"}))
	assert.Equal(t, []string{KindChatMessage}, hub.kinds)
	assert.Empty(t, email.sent, "plain payloads are not emailed")
}

func TestDispatcherEmailsMailablePayloads(t *testing.T) {
	hub := &recordingHub{}
	email := &recordingEmail{}
	d := NewDispatcher(hub, email, "staff@example.com", nil)

	payload := mailPayload{
		{To: "khach@example.com", Subject: "Nhắc lịch hẹn"},
		{Subject: "Staff copy"},
	}
	require.NoError(t, d.Notify(context.Background(), KindReminderDue, payload))
	require.Len(t, email.sent, 2)
	assert.Equal(t, "khach@example.com", email.sent[0].To)
	assert.Equal(t, "staff@example.com", email.sent[1].To)
}

func TestDispatcherSkipsStaffCopyWithoutInbox(t *testing.T) {
	email := &recordingEmail{}
	d := NewDispatcher(nil, email, "", nil)

	require.NoError(t, d.Notify(context.Background(), KindReminderDue, mailPayload{{Subject: "Staff copy"}}))
	assert.Empty(t, email.sent)
}

func TestDispatcherReturnsEmailErrors(t *testing.T) {
	email := &recordingEmail{failTo: "bad@example.com"}
	d := NewDispatcher(&recordingHub{}, email, "staff@example.com", nil)

	err := d.Notify(context.Background(), KindReminderDue, mailPayload{{To: "bad@example.com"}, {To: "ok@example.com"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mailbox full")
	assert.Len(t, email.sent, 1, "remaining messages are still attempted")
}

func TestDispatcherWithoutEmailSender(t *testing.T) {
	d := NewDispatcher(nil, nil, "staff@example.com", nil)
	assert.NoError(t, d.Notify(context.Background(), KindReminderDue, mailPayload{{To: "x@example.com"}}))
	assert.NoError(t, Nop{}.Notify(context.Background(), KindReminderDue, nil))
}
