package password

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2idID = "argon2id"

// phc is a decoded $argon2id$ string. Salt and key are encoded with
// unpadded standard base64; padded input is accepted on decode.
type phc struct {
	memory uint32
	passes uint32
	lanes  uint8
	salt   []byte
	key    []byte
}

func (p phc) params() string {
	return fmt.Sprintf("m=%d,t=%d,p=%d", p.memory, p.passes, p.lanes)
}

func (p phc) String() string {
	return strings.Join([]string{
		"",
		argon2idID,
		fmt.Sprintf("v=%d", argon2.Version),
		p.params(),
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key),
	}, "$")
}

func decodePHC(s string) (phc, error) {
	fields := strings.Split(s, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != argon2idID {
		return phc{}, errors.New("not an argon2id PHC string")
	}
	if fields[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return phc{}, fmt.Errorf("unsupported argon2 version %q", fields[2])
	}

	var p phc
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.passes, &p.lanes); err != nil {
		return phc{}, fmt.Errorf("argon2 parameters %q: %v", fields[3], err)
	}
	// Sscanf tolerates trailing input; the canonical form must round-trip.
	if p.params() != fields[3] {
		return phc{}, fmt.Errorf("argon2 parameters %q are not canonical", fields[3])
	}
	if p.memory < minMemoryKB || p.passes < 1 || p.lanes < 1 {
		return phc{}, fmt.Errorf("argon2 parameters %q below minimum", fields[3])
	}

	var err error
	if p.salt, err = decodeB64(fields[4]); err != nil || len(p.salt) < minSaltLength {
		return phc{}, errors.New("bad salt")
	}
	if p.key, err = decodeB64(fields[5]); err != nil || len(p.key) < minKeyLength {
		return phc{}, errors.New("bad key")
	}
	return p, nil
}

func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
