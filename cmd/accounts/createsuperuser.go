// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/holomush/accounts/internal/auth"
)

type superuserOptions struct {
	email         string
	username      string
	passwordStdin bool
}

// NewCreateSuperuserCmd creates the createsuperuser subcommand.
func NewCreateSuperuserCmd() *cobra.Command {
	opts := &superuserOptions{}

	cmd := &cobra.Command{
		Use:   "createsuperuser",
		Short: "Create an active staff superuser",
		Long: `Create a user with the active, staff and superuser flags set.
The password is prompted for twice unless --password-stdin is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCreateSuperuser(cmd, opts, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVar(&opts.email, "email", "", "email address (required)")
	cmd.Flags().StringVar(&opts.username, "username", "", "username (required)")
	cmd.Flags().BoolVar(&opts.passwordStdin, "password-stdin", false, "read the password from the first line of stdin")
	_ = cmd.MarkFlagRequired("email")    //nolint:errcheck // flag is defined above
	_ = cmd.MarkFlagRequired("username") //nolint:errcheck // flag is defined above

	return cmd
}

func runCreateSuperuser(cmd *cobra.Command, opts *superuserOptions, stdin io.Reader) error {
	cfg, logger, err := loadConfig(cmd, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	email := auth.NormalizeEmail(opts.email)
	if err := auth.ValidateEmail(email); err != nil {
		return reportFieldErrors(cmd, err)
	}
	if err := auth.ValidateUsername(opts.username); err != nil {
		return reportFieldErrors(cmd, err)
	}

	password, err := readPassword(cmd, stdin, opts.passwordStdin)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	creds, err := newCredentialStore(cfg, st)
	if err != nil {
		return err
	}
	candidate := &auth.User{Email: email, Username: opts.username}
	if err := creds.Policy().CheckStrength(password, candidate); err != nil {
		return reportFieldErrors(cmd, err)
	}

	user, err := creds.CreateSuperuser(ctx, email, opts.username, password)
	if err != nil {
		return reportFieldErrors(cmd, err)
	}

	cmd.Printf("Superuser %s created.\n", user.Username)
	return nil
}

// readPassword takes the first stdin line, or prompts twice on a terminal.
func readPassword(cmd *cobra.Command, stdin io.Reader, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
		}
		password := strings.TrimRight(line, "\r\n")
		if password == "" {
			return "", oops.Code(auth.CodeValidation).Errorf("password: %s", auth.MsgRequired)
		}
		return password, nil
	}

	f, ok := stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", oops.Code("PASSWORD_READ_FAILED").Errorf("stdin is not a terminal; use --password-stdin")
	}

	first, err := prompt(cmd, f, "Password: ")
	if err != nil {
		return "", err
	}
	second, err := prompt(cmd, f, "Password (again): ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", oops.Code(auth.CodeValidation).Errorf("%s", auth.MsgPasswordMismatch)
	}
	if first == "" {
		return "", oops.Code(auth.CodeValidation).Errorf("password: %s", auth.MsgRequired)
	}
	return first, nil
}

func prompt(cmd *cobra.Command, f *os.File, label string) (string, error) {
	cmd.PrintErr(label)
	b, err := term.ReadPassword(int(f.Fd()))
	cmd.PrintErrln()
	if err != nil {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	return string(b), nil
}

// reportFieldErrors prints field messages one per line and returns err.
func reportFieldErrors(cmd *cobra.Command, err error) error {
	fields, ok := auth.FieldErrorsOf(err)
	if !ok {
		return err
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		label := name
		if label == auth.NonFieldKey {
			label = "error"
		}
		for _, msg := range fields[name] {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", label, msg)
		}
	}
	return err
}
