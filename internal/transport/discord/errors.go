package discord

import (
	"errors"
	"net"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"duckbot/internal/transport"
)

// classifySendError marks errors where Discord certainly did not create the
// message: 429, 5xx answers and connections that never opened. A timeout
// after the request went out stays permanent since the post may have landed.
func classifySendError(err error) error {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		code := rest.Response.StatusCode
		if code == http.StatusTooManyRequests || code >= 500 {
			return transport.Temporary(err)
		}
		return err
	}
	var op *net.OpError
	if errors.As(err, &op) && op.Op == "dial" {
		return transport.Temporary(err)
	}
	return err
}
