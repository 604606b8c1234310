package reminders

import (
	"fmt"
	"time"

	"github.com/salonchat/supportdesk/internal/notify"
)

// Copy is rendered when the reminder is scheduled so the worker never needs
// to reload the catalog.

func appointmentMessage(r *Reminder, venue, product string, loc *time.Location) (subject, body string) {
	name := r.RecipientName
	if name == "" {
		name = "Quý khách"
	}
	if product == "" {
		product = "dịch vụ"
	}
	start := r.DueAt.In(loc)
	subject = fmt.Sprintf("Nhắc lịch hẹn %s lúc %s ngày %s", product, start.Format("15:04"), start.Format("02/01/2006"))
	body = fmt.Sprintf(
		"Xin chào %s,\n\n%s xin nhắc bạn có lịch hẹn %s vào lúc %s ngày %s.\nNếu cần đổi hoặc hủy lịch, vui lòng nhắn tin cho chúng tôi qua khung chat.\n\nHẹn gặp bạn!",
		name, venue, product, start.Format("15:04"), start.Format("02/01/2006"),
	)
	return subject, body
}

func expiryMessage(r *Reminder, venue, product string, remaining int, loc *time.Location) (subject, body string) {
	if product == "" {
		product = "gói dịch vụ"
	}
	expiry := r.DueAt.In(loc)
	subject = fmt.Sprintf("Gói %s sắp hết hạn ngày %s", product, expiry.Format("02/01/2006"))
	body = fmt.Sprintf(
		"Xin chào,\n\nGói %s của bạn tại %s sẽ hết hạn vào ngày %s và còn %d buổi chưa sử dụng.\nHãy đặt lịch sớm để không bỏ lỡ nhé!",
		product, venue, expiry.Format("02/01/2006"), remaining,
	)
	return subject, body
}

// Emails sends the reminder to the customer when an address is known and
// always copies the staff inbox.
func (r *Reminder) Emails() []notify.EmailMessage {
	out := make([]notify.EmailMessage, 0, 2)
	if r.RecipientEmail != "" {
		out = append(out, notify.EmailMessage{
			To:      r.RecipientEmail,
			ToName:  r.RecipientName,
			Subject: r.Subject,
			Body:    r.Body,
		})
	}
	out = append(out, notify.EmailMessage{
		Subject: "[Nhắc lịch] " + r.Subject,
		Body:    fmt.Sprintf("Khách hàng %s (%s)\n\n%s", r.CustomerID, r.RecipientName, r.Body),
	})
	return out
}

var _ notify.Mailable = (*Reminder)(nil)
