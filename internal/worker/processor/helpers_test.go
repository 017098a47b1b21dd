package processor

import (
	"strings"

	"gifpipe/internal/ports"
)

func putInput(key, body string) ports.PutObjectInput {
	return ports.PutObjectInput{ObjectKey: key, Reader: strings.NewReader(body), Size: int64(len(body))}
}
