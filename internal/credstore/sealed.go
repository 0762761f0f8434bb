package credstore

import (
	"context"
	"encoding/base64"
	"log/slog"

	"github.com/aussiebroadwan/stockpanel/pkg/cryptox"
)

// sealedKeys are encrypted at rest. The activity stamp is not secret and
// stays readable for debugging.
var sealedKeys = map[string]bool{
	KeyAccessToken:  true,
	KeyRefreshToken: true,
	KeyUser:         true,
}

// Sealed wraps a Backend and encrypts token and profile values before they
// reach it. Values that fail to decrypt (wrong key, tampering, plaintext
// left over from an unsealed store) read as absent.
type Sealed struct {
	Backend
	sealer *cryptox.Sealer
	logger *slog.Logger
}

func NewSealed(backend Backend, sealer *cryptox.Sealer, logger *slog.Logger) *Sealed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sealed{Backend: backend, sealer: sealer, logger: logger}
}

func (s *Sealed) Get(ctx context.Context, keys []string) (map[string]string, error) {
	values, err := s.Backend.Get(ctx, keys)
	if err != nil {
		return nil, err
	}

	for k, v := range values {
		if !sealedKeys[k] {
			continue
		}

		raw, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			s.logger.Debug("dropping unsealed credential value", "key", k)
			delete(values, k)
			continue
		}

		plain, err := s.sealer.Open(raw, []byte(k))
		if err != nil {
			s.logger.Debug("dropping undecryptable credential value", "key", k, "error", err)
			delete(values, k)
			continue
		}
		values[k] = string(plain)
	}

	return values, nil
}

func (s *Sealed) Set(ctx context.Context, values map[string]string) error {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if !sealedKeys[k] {
			out[k] = v
			continue
		}

		sealed, err := s.sealer.Seal([]byte(v), []byte(k))
		if err != nil {
			return err
		}
		out[k] = base64.StdEncoding.EncodeToString(sealed)
	}
	return s.Backend.Set(ctx, out)
}
