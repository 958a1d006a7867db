package store

import (
	"encoding/binary"
	"fmt"

	"github.com/org/otpvault/internal/crypto"
)

// Container layout, all integers big-endian:
//
//	magic   4  "otpv"
//	version 2  format version
//	time    4  Argon2id passes
//	memory  4  Argon2id memory (KiB)
//	threads 1  Argon2id parallelism
//	saltLen 1  salt length, followed by the salt
//	blob    *  AEAD nonce || ciphertext || tag
var magic = [4]byte{'o', 't', 'p', 'v'}

// FormatVersion is the container version written by this build.
const FormatVersion uint16 = 1

const headerSize = 4 + 2 + 4 + 4 + 1 + 1

type header struct {
	version uint16
	params  crypto.KDFParams
	salt    []byte
}

func encodeContainer(h header, blob []byte) []byte {
	buf := make([]byte, 0, headerSize+len(h.salt)+len(blob))
	buf = append(buf, magic[:]...)
	buf = binary.BigEndian.AppendUint16(buf, h.version)
	buf = binary.BigEndian.AppendUint32(buf, h.params.Time)
	buf = binary.BigEndian.AppendUint32(buf, h.params.Memory)
	buf = append(buf, h.params.Threads, byte(len(h.salt)))
	buf = append(buf, h.salt...)
	buf = append(buf, blob...)
	return buf
}

func decodeContainer(data []byte) (header, []byte, error) {
	if len(data) < headerSize {
		return header{}, nil, fmt.Errorf("%w: file too short", ErrCorrupt)
	}
	if [4]byte(data[:4]) != magic {
		return header{}, nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	h := header{
		version: binary.BigEndian.Uint16(data[4:6]),
		params: crypto.KDFParams{
			Time:    binary.BigEndian.Uint32(data[6:10]),
			Memory:  binary.BigEndian.Uint32(data[10:14]),
			Threads: data[14],
		},
	}
	if h.version != FormatVersion {
		return header{}, nil, fmt.Errorf("%w: version %d", ErrUnknownVersion, h.version)
	}
	saltLen := int(data[15])
	if len(data) < headerSize+saltLen {
		return header{}, nil, fmt.Errorf("%w: truncated salt", ErrCorrupt)
	}
	h.salt = data[headerSize : headerSize+saltLen]
	return h, data[headerSize+saltLen:], nil
}
