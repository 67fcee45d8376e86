package proto

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

const (
	// MaxFrameSize bounds wallet-carrying frames.
	MaxFrameSize = 8 << 20
	// SoftMaxFrameSize is the size above which the type is sniffed before
	// the rest of the payload is read.
	SoftMaxFrameSize = 64 << 10
	TypeSniffBytes   = 512
	maxSmallFrame    = 4 << 10
)

// MaxSizeForType caps frames whose type never carries a wallet.
func MaxSizeForType(t string) int {
	switch t {
	case TypePull, TypeScore, TypePushOK, TypeError:
		return maxSmallFrame
	case TypeScoreOK:
		return SoftMaxFrameSize
	default:
		return MaxFrameSize
	}
}

func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	if len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("payload too large")
	}
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out[:4], uint32(len(payload)))
	copy(out[4:], payload)
	return out, nil
}

func readLength(r io.Reader) (int, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 || n > MaxFrameSize {
		return 0, fmt.Errorf("invalid frame size %d", n)
	}
	return int(n), nil
}

func ReadFrame(r io.Reader) ([]byte, error) {
	n, err := readLength(r)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// ReadFrameWithTypeCap reads small frames directly. A frame above softMax is
// only read in full if its JSON type allows that size.
func ReadFrameWithTypeCap(r io.Reader, softMax int, typeCap func(string) int) ([]byte, error) {
	n, err := readLength(r)
	if err != nil {
		return nil, err
	}
	if softMax <= 0 || n <= softMax {
		payload := make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
		return payload, nil
	}

	prefix := make([]byte, min(n, TypeSniffBytes))
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, err
	}
	msgType, ok := sniffType(prefix)
	if !ok {
		return nil, fmt.Errorf("message too large for type sniff")
	}
	if typeCap != nil {
		if limit := typeCap(msgType); limit > 0 && n > limit {
			return nil, fmt.Errorf("payload too large for type %s", msgType)
		}
	}
	payload := make([]byte, n)
	copy(payload, prefix)
	if _, err := io.ReadFull(r, payload[len(prefix):]); err != nil {
		return nil, err
	}
	return payload, nil
}

func WriteFrame(w io.Writer, payload []byte) error {
	frame, err := EncodeFrame(payload)
	if err != nil {
		return err
	}
	for total := 0; total < len(frame); {
		n, err := w.Write(frame[total:])
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("short write")
		}
		total += n
	}
	return nil
}

// sniffType finds the "type" member in a truncated JSON object. Messages put
// it first, so a full decode of the prefix is not needed.
func sniffType(prefix []byte) (string, bool) {
	var hdr struct {
		Type string `json:"type"`
	}
	if err := json.NewDecoder(bytes.NewReader(prefix)).Decode(&hdr); err == nil && hdr.Type != "" {
		return hdr.Type, true
	}
	idx := bytes.Index(prefix, []byte(`"type"`))
	if idx == -1 {
		return "", false
	}
	rest := prefix[idx+len(`"type"`):]
	colon := bytes.IndexByte(rest, ':')
	if colon == -1 {
		return "", false
	}
	rest = bytes.TrimLeft(rest[colon+1:], " \t\r\n")
	if len(rest) == 0 || rest[0] != '"' {
		return "", false
	}
	rest = rest[1:]
	end := bytes.IndexByte(rest, '"')
	if end == -1 {
		return "", false
	}
	return string(rest[:end]), true
}
