package session

import (
	"fmt"
	"time"

	cbor "github.com/fxamacker/cbor/v2"
)

const recordVersionV1 = 1

// wireRecord is the CBOR layout of a Record. Integer keys keep it compact.
type wireRecord struct {
	Version      uint8  `cbor:"1,keyasint"`
	AccessToken  string `cbor:"2,keyasint,omitempty"`
	RefreshToken string `cbor:"3,keyasint,omitempty"`
	ExpiresAt    int64  `cbor:"4,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

func encodeRecord(rec Record) ([]byte, error) {
	w := wireRecord{
		Version:      recordVersionV1,
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
	}
	if !rec.ExpiresAt.IsZero() {
		w.ExpiresAt = rec.ExpiresAt.UnixMilli()
	}
	return encMode.Marshal(w)
}

func decodeRecord(data []byte) (Record, error) {
	var w wireRecord
	if err := decMode.Unmarshal(data, &w); err != nil {
		return Record{}, fmt.Errorf("failed to decode session record: %w", err)
	}
	if w.Version != recordVersionV1 {
		return Record{}, fmt.Errorf("unsupported session record version %d", w.Version)
	}

	rec := Record{AccessToken: w.AccessToken, RefreshToken: w.RefreshToken}
	if w.ExpiresAt != 0 {
		rec.ExpiresAt = time.UnixMilli(w.ExpiresAt)
	}
	return rec, nil
}
