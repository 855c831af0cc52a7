package client

import (
	"errors"
	"strings"

	"github.com/rs/zerolog"
)

const redacted = "[REDACTED]"

// Token is a DeepInfra API token. Every formatting and encoding path
// prints a placeholder instead of the secret. The value sits behind a
// pointer so reflection-based printing of an enclosing struct shows an
// address, not the secret.
type Token struct {
	value *string
}

// NewToken validates raw as a bearer credential.
func NewToken(raw string) (Token, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return Token{}, errors.New("api token must not be empty")
	}
	for i := 0; i < len(value); i++ {
		if b := value[i]; b < 0x21 || b > 0x7e {
			return Token{}, errors.New("api token contains characters not allowed in an HTTP header")
		}
	}
	return Token{value: &value}, nil
}

func (t Token) String() string {
	return redacted
}

func (t Token) GoString() string {
	return "client.Token{" + redacted + "}"
}

func (t Token) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

func (t Token) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

func (t Token) MarshalZerologObject(e *zerolog.Event) {
	e.Str("token", redacted)
}

func (t Token) bearer() string {
	if t.value == nil {
		return ""
	}
	return "Bearer " + *t.value
}
