package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newExpireAllSessionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "expire-all-sessions",
		Short: "Log every user out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, cleanup, err := a.buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			if err := eng.Sessions().Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "all sessions expired")
			return nil
		},
	}
}

func newExpireAllPasswordsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "expire-all-passwords",
		Short: "Expire every password; users must have a new one set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, cleanup, err := a.buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			n, err := eng.Accounts().ExpireAllPasswords(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d password(s)\n", n)
			return nil
		},
	}
}

func newSetPasswordCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-password <username>",
		Short: "Set a user's password, read from the first line of stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plaintext, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			eng, cleanup, err := a.buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			if err := eng.Accounts().SetPassword(cmd.Context(), args[0], plaintext); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password of %s updated\n", args[0])
			return nil
		},
	}
}

// readPassword returns the first line of r without its line ending.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("read password: empty input")
	}
	return line, nil
}
