package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// GetSimpleText prints a prompt to w and reads a single line of input from reader.
// The trailing newline is trimmed. If EOF occurs after some input was read,
// the partial line is returned.
//
// Example prompt format:
//
//	Prompt text
//	> _
func GetSimpleText(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// GetPassphrase reads the session passphrase from the terminal without echo.
// The caller should wipe the returned slice once done with it.
func GetPassphrase(w io.Writer) ([]byte, error) {
	if _, err := fmt.Fprint(w, "Session passphrase: "); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	if len(pw) == 0 {
		return nil, errors.New("empty passphrase")
	}
	return pw, nil
}

// GetOTP asks for the SMS code. Codes are digits only; anything else is
// rejected before it reaches the server.
func GetOTP(reader *bufio.Reader, w io.Writer) (string, error) {
	code, err := GetSimpleText(reader, "Enter the code you received by SMS", w)
	if err != nil {
		return "", err
	}
	if err := validateOTP(code); err != nil {
		return "", err
	}
	return code, nil
}

func validateOTP(code string) error {
	if code == "" {
		return errors.New("empty code")
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return fmt.Errorf("code %q must contain digits only", code)
		}
	}
	return nil
}
