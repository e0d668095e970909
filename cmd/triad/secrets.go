package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"triad/pkg/config"
)

// passwordEnv supplies the secrets password for non-interactive runs.
const passwordEnv = "TRIAD_SECRETS_PASSWORD"

// loadSecrets decrypts projectDir's secrets file into memory, if there is one.
func loadSecrets(projectDir string) error {
	if !config.SecretsFileExists(projectDir) {
		return nil
	}
	password, err := secretsPassword(false)
	if err != nil {
		return err
	}
	secrets, err := config.DecryptSecretsFile(projectDir, password)
	if err != nil {
		return fmt.Errorf("failed to decrypt secrets: %w", err)
	}
	config.SetDecryptedSecrets(secrets)
	return nil
}

// secretsPassword reads the password from the environment or the terminal.
func secretsPassword(confirm bool) (string, error) {
	if p := os.Getenv(passwordEnv); p != "" {
		return p, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("secrets file present but stdin is not a terminal; set %s", passwordEnv)
	}

	fmt.Fprint(os.Stderr, "Secrets password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	defer clear(first)
	if len(first) == 0 {
		return "", errors.New("password must not be empty")
	}
	if !confirm {
		return string(first), nil
	}

	fmt.Fprint(os.Stderr, "Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	defer clear(second)
	if !bytes.Equal(first, second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

func newSecretsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the encrypted API key file in <projectdir>/.triad",
	}
	cmd.AddCommand(newSecretsSetCmd(a), newSecretsListCmd(a))
	return cmd
}

func newSecretsSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set NAME",
		Short: "Store a secret (value read from stdin or prompted)",
		Example: `  triad secrets set OPENAI_API_KEY
  echo "$KEY" | TRIAD_SECRETS_PASSWORD=pw triad secrets set ANTHROPIC_API_KEY`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			exists := config.SecretsFileExists(a.projectDir)

			password, err := secretsPassword(!exists)
			if err != nil {
				return err
			}
			if exists {
				secrets, err := config.DecryptSecretsFile(a.projectDir, password)
				if err != nil {
					return fmt.Errorf("failed to decrypt secrets: %w", err)
				}
				config.SetDecryptedSecrets(secrets)
			}

			value, err := readSecretValue(cmd.InOrStdin(), name)
			if err != nil {
				return err
			}
			config.SetSecret(name, value)
			if err := config.SaveSecretsToFile(a.projectDir, password); err != nil {
				return fmt.Errorf("failed to save secrets: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s to %s\n", name, config.SecretsFilePath(a.projectDir))
			return nil
		},
	}
}

func readSecretValue(in io.Reader, name string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(os.Stderr, "%s: ", name)
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read value: %w", err)
		}
		defer clear(raw)
		return nonEmpty(name, string(raw))
	}
	raw, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read value: %w", err)
	}
	return nonEmpty(name, string(raw))
}

func nonEmpty(name, raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("empty value for %s", name)
	}
	return value, nil
}

func newSecretsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored secret names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadSecrets(a.projectDir); err != nil {
				return err
			}
			names := config.SecretNames()
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no secrets stored")
				return nil
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}
