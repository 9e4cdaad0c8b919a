package stream

import (
	"encoding/json"
	"fmt"

	"github.com/vmunix/streamgrab/internal/media"
)

// encryptionTypes recognised in segment-list manifests.
const (
	encryptionNone   = "NONE"
	encryptionOldAES = "OLD_AES"
)

type segmentList struct {
	MimeType       string   `json:"mimeType"`
	Codecs         string   `json:"codecs"`
	EncryptionType string   `json:"encryptionType"`
	KeyID          string   `json:"keyId"`
	URLs           []string `json:"urls"`
}

func parseSegmentList(data []byte) (*media.Manifest, error) {
	var sl segmentList
	if err := json.Unmarshal(data, &sl); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedManifest, err)
	}

	m := &media.Manifest{
		URLs:     sl.URLs,
		MimeType: sl.MimeType,
		Codec:    sl.Codecs,
	}

	switch sl.EncryptionType {
	case "", encryptionNone:
	case encryptionOldAES:
		if sl.KeyID == "" {
			return nil, fmt.Errorf("%w: encrypted stream without key token", ErrMalformedManifest)
		}
		m.Encrypted = true
		m.KeyToken = sl.KeyID
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncryption, sl.EncryptionType)
	}
	return m, nil
}
