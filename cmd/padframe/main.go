// padframe decodes WalkingPad frames given as hex, one per line on stdin.
// Spaces, colons and 0x prefixes are ignored, so btmon and "% 0#x" output
// can be pasted as-is.
package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/johnelliott/walkpad/pkg/walkingpad"
)

func main() {
	scanner := bufio.NewScanner(os.Stdin)
	bad := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out, err := Format(line)
		if err != nil {
			bad++
			fmt.Printf("%s\n  error: %v\n", line, err)
			continue
		}
		fmt.Println(out)
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if bad > 0 {
		os.Exit(2)
	}
}

// Decode turns a hex line into bytes
func Decode(line string) ([]byte, error) {
	clean := strings.NewReplacer("0x", "", "0X", "", " ", "", ":", "", "\t", "").Replace(line)
	return hex.DecodeString(clean)
}

// Format decodes one frame. Requests start with 0xf7, responses with 0xf8.
func Format(line string) (string, error) {
	b, err := Decode(line)
	if err != nil {
		return "", err
	}
	if len(b) == 0 {
		return "", walkingpad.ErrTruncated
	}
	frame := fmt.Sprintf("% 0#x", b)
	switch b[0] {
	case walkingpad.RequestHeader:
		req, err := walkingpad.ParseRequest(b)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s\n  -> %v", frame, req), nil
	default:
		resp, err := walkingpad.ParseResponse(b)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s\n  <- %v", frame, resp), nil
	}
}
