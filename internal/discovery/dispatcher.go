package discovery

import (
	"fmt"
	"io"
	"unicode/utf8"

	"go.uber.org/zap"
)

// MessageHandler receives the raw bytes of each datagram delivered to the
// active session. It runs on the client's task queue and should not block.
type MessageHandler func(data []byte)

// DecodeError means a datagram was not valid UTF-8.
type DecodeError struct {
	Offset int
	Length int
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid UTF-8 at byte %d of %d", e.Offset, e.Length)
}

// DecodeText returns data as a string, or a *DecodeError pointing at the
// first invalid byte.
func DecodeText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}

	offset := 0
	for offset < len(data) {
		r, size := utf8.DecodeRune(data[offset:])
		if r == utf8.RuneError && size <= 1 {
			break
		}
		offset += size
	}

	return "", &DecodeError{Offset: offset, Length: len(data)}
}

// DefaultHandler returns the handler used when none is set: it decodes each
// datagram as UTF-8 and writes it to w. Undecodable datagrams are logged and
// dropped.
func DefaultHandler(w io.Writer, logger *zap.Logger) MessageHandler {
	return func(data []byte) {
		text, err := DecodeText(data)
		if err != nil {
			logger.Warn("Could not decode message as string", zap.Error(err))
			return
		}
		fmt.Fprintln(w, text)
	}
}
