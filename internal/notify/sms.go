package notify

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogSMS is a CodeSender stand-in that writes verification codes to the
// application log instead of a carrier gateway. Used in development and when
// no SMS provider is configured.
type LogSMS struct{}

// SendCode logs the code at debug level.
func (LogSMS) SendCode(ctx context.Context, phone, code string) error {
	log.Debug().Str("phone", phone).Str("code", code).Msg("verification code issued")
	return nil
}
