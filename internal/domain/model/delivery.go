package model

const (
	ChannelDiscord  = "discord"
	ChannelTelegram = "telegram"
	ChannelDebug    = "debug"
)

// Identity is the author a delivered message is shown under.
type Identity struct {
	ID        string `json:"id,omitempty"` // platform user id, used for rate limiting
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// KnownChannel reports whether c is a supported delivery channel.
func KnownChannel(c string) bool {
	switch c {
	case ChannelDiscord, ChannelTelegram, ChannelDebug:
		return true
	}
	return false
}

// DeliveryTarget addresses where a job's messages go.
type DeliveryTarget struct {
	Channel   string   `json:"channel"`
	Address   string   `json:"address"`           // interaction token, chat id, ...
	AckRef    string   `json:"ack_ref,omitempty"` // placeholder acknowledgement to retract
	Locale    string   `json:"locale,omitempty"`
	Requester Identity `json:"requester"`
}
