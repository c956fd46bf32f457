package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/password"
	"github.com/spf13/cobra"
)

func newPolicyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Password policy tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newPolicyCheckCommand())
	return cmd
}

func newPolicyCheckCommand() *cobra.Command {
	var minLength int

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Score a password read from stdin against the default policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			policy := goGuard.DefaultConfig().Password.Policy
			if minLength > 0 {
				policy.MinLength = minLength
			}
			st := password.Validate(pw, policy)
			printStrength(cmd.OutOrStdout(), st)
			if !st.PassesPolicy {
				return errors.New("password does not meet the policy")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&minLength, "min-length", 0, "Override the policy minimum length")
	return cmd
}

// readPassword returns the first line of r without its line ending.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no password on stdin")
	}
	return line, nil
}

func printStrength(w io.Writer, st password.Strength) {
	fmt.Fprintf(w, "strength: %s (%d/4, %d%%)\n", st.Label, st.Score, st.Percentage())
	fmt.Fprintf(w, "passes policy: %t\n", st.PassesPolicy)
	for _, f := range st.Feedback {
		fmt.Fprintf(w, "  - %s\n", f)
	}
}
