package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"
)

var promptRequired bool

// promptCmd exercises RequestPluginUserInput's interactive path: the real
// host normally satisfies that callback itself, but this harness has no
// host behind it, so it reads the answer directly from the controlling
// terminal (falling back to a plain line-read when stdin isn't a tty, e.g.
// under test automation).
var promptCmd = &cobra.Command{
	Use:   "prompt <key> <message>",
	Short: "Simulate a RequestPluginUserInput round trip from the terminal",
	Args:  cobra.ExactArgs(2),
	RunE:  runPrompt,
}

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.Flags().BoolVar(&promptRequired, "required", false, "treat an empty answer as a declined, required prompt")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	key, message := args[0], args[1]
	fmt.Printf("[%s] %s: ", key, message)

	answer, err := readAnswer(os.Stdin)
	if err != nil {
		return fmt.Errorf("read answer: %w", err)
	}

	if answer == "" && promptRequired {
		fmt.Println("declined")
		return nil
	}
	fmt.Printf("received: %q\n", answer)
	return nil
}

func readAnswer(f *os.File) (string, error) {
	if terminal.IsTerminal(int(f.Fd())) {
		line, err := terminal.ReadPassword(int(f.Fd()))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(line)), nil
	}

	reader := bufio.NewReader(f)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
