// Command operator-token mints short-lived operator tokens signed with the
// server's secret and bcrypt-hashes operator passwords for
// OPERATOR_PASSWORD_HASH.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	jwttoken "repairhub/internal/jwt_token"
	"repairhub/internal/platform/logger"
	"repairhub/internal/secret"
	"repairhub/internal/validation"
	"repairhub/pkg/platform/middleware/admin"
)

func main() {
	// stdout carries only the token or hash so the output can be piped.
	log := logger.NewWithWriter(os.Stderr, slog.LevelInfo)
	if err := newRootCmd(os.Getenv, log).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(getenv func(string) string, log *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "operator-token",
		Short:         "Operator credential tooling for repairhub",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newMintCmd(getenv, log), newHashCmd(log))
	return root
}

func newMintCmd(getenv func(string) string, log *slog.Logger) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint an operator bearer token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(subject) == "" {
				return errors.New("--sub is required")
			}
			if ttl <= 0 {
				return errors.New("--ttl must be positive")
			}
			provider, err := secret.Load(secret.Config{
				Value:      getenv("JWT_SECRET"),
				Production: strings.EqualFold(getenv("ENVIRONMENT"), "production"),
			}, log)
			if err != nil {
				return err
			}
			// A generated secret exists only in this process; the server would reject the token.
			if provider.Generated() {
				return errors.New("JWT_SECRET must be set to the server's secret")
			}
			svc, err := jwttoken.NewJWTService(provider.Bytes(), jwttoken.DefaultIssuer, jwttoken.DefaultAudience)
			if err != nil {
				return err
			}
			token, claims, err := svc.GenerateToken(subject, role, ttl)
			if err != nil {
				return err
			}
			log.Info("operator token minted",
				"subject", subject,
				"role", role,
				"jti", claims.ID,
				"expires_at", claims.ExpiresAt.Time.Format(time.RFC3339),
				"secret", provider,
			)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "operator id recorded as the token subject")
	cmd.Flags().StringVar(&role, "role", admin.RoleAdmin, "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", jwttoken.DefaultTTL, "token lifetime")
	return cmd
}

func newHashCmd(log *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "hash",
		Short: "Read a password from stdin and print its bcrypt hash; weak passwords are refused",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			rating := validation.PasswordStrength(password)
			if !rating.Valid {
				return fmt.Errorf("operator password refused: %s", strings.Join(rating.Errors, "; "))
			}
			if len(rating.Suggestions) > 0 {
				log.Warn("operator password accepted with suggestions",
					"strength", rating.Strength,
					"suggestions", rating.Suggestions,
				)
			}
			hash, err := secret.Hash(password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("empty password on stdin")
	}
	return password, nil
}
