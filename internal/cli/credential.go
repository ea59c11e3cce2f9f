package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"rbz-rates-watcher/internal/app"
)

var setCredentialCmd = &cobra.Command{
	Use:   "set-credential <key> [value]",
	Short: "Store a credential in the local history database",
	Long: "Store a credential such as postgres_uri, postgres_user, postgres_pass or the smtp_* keys.\n" +
		"Secret keys (*_pass, *_token) are read from stdin when the value is omitted, so they\n" +
		"never land in shell history.",
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		var value string
		if len(args) == 2 {
			value = args[1]
		} else {
			if !app.SecretCredentialKey(key) {
				return fmt.Errorf("value required for credential %q", key)
			}
			v, err := readSecret(fmt.Sprintf("Enter value for %s: ", key))
			if err != nil {
				return err
			}
			value = v
		}

		if value == "" {
			return errors.New("credential value is empty")
		}
		return getApp().SetCredential(cmd.Context(), key, value)
	},
}

// readSecret reads one line from stdin, prompting on stderr only when stdin
// is a terminal.
func readSecret(prompt string) (string, error) {
	if info, err := os.Stdin.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
		fmt.Fprint(os.Stderr, prompt)
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
