package discord

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"strings"
)

// Interaction types.
const (
	InteractionPing               = 1
	InteractionApplicationCommand = 2
)

// Interaction callback types.
const (
	ResponsePong                             = 1
	ResponseChannelMessageWithSource         = 4
	ResponseDeferredChannelMessageWithSource = 5
)

// FlagEphemeral hides a response from everyone but the invoker.
const FlagEphemeral = 1 << 6

type User struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Avatar     string `json:"avatar"`
}

// DisplayName prefers the global display name over the username.
func (u User) DisplayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// AvatarURL is the CDN url of the user's avatar, or "" for the default one.
func (u User) AvatarURL() string {
	if u.ID == "" || u.Avatar == "" {
		return ""
	}
	return "https://cdn.discordapp.com/avatars/" + u.ID + "/" + u.Avatar + ".png"
}

type Member struct {
	User User   `json:"user"`
	Nick string `json:"nick"`
}

type CommandOption struct {
	Name  string `json:"name"`
	Type  int    `json:"type"`
	Value any    `json:"value"`
}

type CommandData struct {
	Name    string          `json:"name"`
	Options []CommandOption `json:"options"`
}

// Interaction is the subset of the payload the intake reads.
type Interaction struct {
	ID            string      `json:"id"`
	ApplicationID string      `json:"application_id"`
	Type          int         `json:"type"`
	Token         string      `json:"token"`
	Data          CommandData `json:"data"`
	GuildID       string      `json:"guild_id"`
	ChannelID     string      `json:"channel_id"`
	Member        *Member     `json:"member"`
	User          *User       `json:"user"`
	Locale        string      `json:"locale"`
}

// Invoker returns the user behind the interaction; guild interactions carry it in member.
func (i Interaction) Invoker() User {
	if i.Member != nil {
		u := i.Member.User
		if i.Member.Nick != "" {
			u.GlobalName = i.Member.Nick
		}
		return u
	}
	if i.User != nil {
		return *i.User
	}
	return User{}
}

// StringOption returns the string value of the named option.
func (i Interaction) StringOption(name string) string {
	for _, o := range i.Data.Options {
		if o.Name == name {
			if s, ok := o.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}

type ResponseData struct {
	Content string `json:"content,omitempty"`
	Flags   int    `json:"flags,omitempty"`
}

type InteractionResponse struct {
	Type int           `json:"type"`
	Data *ResponseData `json:"data,omitempty"`
}

var ErrBadSignature = errors.New("invalid request signature")

// Verifier checks the Ed25519 signature Discord puts on interaction requests.
type Verifier struct {
	key ed25519.PublicKey
}

func NewVerifier(publicKeyHex string) (*Verifier, error) {
	b, err := hex.DecodeString(strings.TrimSpace(publicKeyHex))
	if err != nil {
		return nil, err
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, errors.New("discord public key must be 32 bytes")
	}
	return &Verifier{key: ed25519.PublicKey(b)}, nil
}

// Verify checks signature(timestamp || body).
func (v *Verifier) Verify(signatureHex, timestamp string, body []byte) error {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) != ed25519.SignatureSize || timestamp == "" {
		return ErrBadSignature
	}
	msg := make([]byte, 0, len(timestamp)+len(body))
	msg = append(msg, timestamp...)
	msg = append(msg, body...)
	if !ed25519.Verify(v.key, msg, sig) {
		return ErrBadSignature
	}
	return nil
}
