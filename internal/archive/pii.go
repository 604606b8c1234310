package archive

import "regexp"

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	// Vietnamese numbers: +84 or a leading 0, then nine digits with optional separators.
	phoneRe = regexp.MustCompile(`(?:\+84|\b0)(?:[\s.\-]?\d){9}\b`)
)

// ScrubPII masks email addresses and phone numbers. Names are kept.
func ScrubPII(text string) string {
	text = emailRe.ReplaceAllString(text, "[EMAIL]")
	return phoneRe.ReplaceAllString(text, "[PHONE]")
}

// ScrubMessages scrubs every message in place.
func ScrubMessages(msgs []Message) {
	for i := range msgs {
		msgs[i].Text = ScrubPII(msgs[i].Text)
	}
}
