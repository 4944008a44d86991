package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	ErrInvalidSignature = errors.New("invalid job signature")
	ErrJobExpired       = errors.New("job timestamp expired or too far in future")
)

// MaxJobDrift is how far a job timestamp may sit from the local clock.
const MaxJobDrift = 5 * time.Minute

// encodeArgs is the signed form of the bind values: their JSON encoding,
// with no args and empty args both written as []. Values decoded from a JSON
// job re-encode to the same bytes the signer produced.
func encodeArgs(args []any) ([]byte, error) {
	if len(args) == 0 {
		return []byte("[]"), nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode job args: %w", err)
	}
	return b, nil
}

// SignJob returns the hex HMAC-SHA256 of id, query, args and timestamp
// under secret.
func SignJob(secret, id, query string, args []any, timestamp int64) (string, error) {
	encoded, err := encodeArgs(args)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	for _, part := range [][]byte{[]byte(id), []byte(query), encoded} {
		mac.Write(part)
		mac.Write([]byte{0})
	}
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifyJob checks a job pushed to the agent. An empty secret disables the
// check.
func VerifyJob(secret, id, query string, args []any, timestamp int64, signature string, now time.Time) error {
	if secret == "" {
		return nil
	}

	drift := now.Sub(time.Unix(timestamp, 0))
	if drift < -MaxJobDrift || drift > MaxJobDrift {
		return fmt.Errorf("%w: drift %s", ErrJobExpired, drift.Round(time.Second))
	}

	expected, err := SignJob(secret, id, query, args, timestamp)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}
