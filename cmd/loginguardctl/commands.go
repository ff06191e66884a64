package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"loginguard/internal/config"
	"loginguard/internal/counter"
	"loginguard/internal/login"
	"loginguard/internal/models"
	"loginguard/internal/password"
	"loginguard/internal/session"
	"loginguard/internal/storage"
	"loginguard/internal/throttle"
	"loginguard/internal/version"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
)

const (
	algorithmBcrypt   = "bcrypt"
	algorithmArgon2id = "argon2id"
)

var errNoSharedStore = errors.New("store.redis.addr is not set; local counters live inside the server process and cannot be inspected")

func newApp(in io.Reader, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "loginguardctl",
		Usage:   "operate a loginguard deployment",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the loginguard configuration file",
				Sources: cli.EnvVars("LOGINGUARD_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			hashPasswordCommand(in, out),
			createAccountCommand(in, out),
			statusCommand(out),
			unlockCommand(out),
			exampleConfigCommand(out),
		},
	}
}

func hashPasswordCommand(in io.Reader, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "hash-password",
		Usage: "print a password hash for an account record",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "password",
				Usage: "password to hash; read from stdin when omitted",
			},
			&cli.StringFlag{
				Name:  "algorithm",
				Value: algorithmBcrypt,
				Usage: "bcrypt or argon2id",
			},
			&cli.IntFlag{
				Name:  "cost",
				Value: 12,
				Usage: "bcrypt cost",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			pw, err := readPassword(cmd.String("password"), in)
			if err != nil {
				return err
			}
			hash, err := hashPassword(pw, cmd.String("algorithm"), cmd.Int("cost"))
			if err != nil {
				return err
			}
			fmt.Fprintln(out, hash)
			return nil
		},
	}
}

func createAccountCommand(in io.Reader, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "create-account",
		Usage: "create or replace an account in the configured directory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{
				Name:  "password",
				Usage: "password for the account; read from stdin when omitted",
			},
			&cli.BoolFlag{
				Name:  "verified",
				Value: true,
				Usage: "mark the email address as verified",
			},
			&cli.StringFlag{
				Name:  "algorithm",
				Value: algorithmBcrypt,
				Usage: "bcrypt or argon2id",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return err
			}
			if cfg.Accounts.Type == models.AccountsTypeMemory {
				return errors.New("accounts.type is memory; accounts would not outlive this command")
			}

			pw, err := readPassword(cmd.String("password"), in)
			if err != nil {
				return err
			}
			hash, err := hashPassword(pw, cmd.String("algorithm"), cfg.Password.BcryptCost)
			if err != nil {
				return err
			}

			directory, err := storage.NewFactory().Create(cfg.Accounts)
			if err != nil {
				return fmt.Errorf("open account directory: %w", err)
			}
			defer directory.Close()

			account := models.NewAccount(cmd.String("email"), hash, cmd.Bool("verified"))
			if existing, err := directory.FindByEmail(ctx, account.Email); err != nil {
				return fmt.Errorf("look up account: %w", err)
			} else if existing != nil {
				account.ID = existing.ID
			}
			if err := directory.SaveAccount(ctx, account); err != nil {
				return fmt.Errorf("save account: %w", err)
			}

			fmt.Fprintf(out, "account %s saved for %s (verified: %t)\n", account.ID, account.Email, account.EmailVerified)
			return nil
		},
	}
}

func statusCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show the lock and counters of an account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
			&cli.BoolFlag{Name: "json", Usage: "print JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			svc, closeFn, err := openService(cmd.String("config"))
			if err != nil {
				return err
			}
			defer closeFn()

			status, err := svc.Status(ctx, cmd.String("email"))
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(statusView(status))
			}
			printStatus(out, status)
			return nil
		},
	}
}

func unlockCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "unlock",
		Usage: "remove the lock and counters of an account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			svc, closeFn, err := openService(cmd.String("config"))
			if err != nil {
				return err
			}
			defer closeFn()

			if err := svc.Unlock(ctx, cmd.String("email")); err != nil {
				return err
			}
			fmt.Fprintf(out, "unlocked %s\n", models.NormalizeEmail(cmd.String("email")))
			return nil
		},
	}
}

func exampleConfigCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "example-config",
		Usage: "write an example configuration file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "output",
				Value: "config.example.yaml",
				Usage: "destination path",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.String("output")
			if err := config.SaveExample(path); err != nil {
				return err
			}
			fmt.Fprintf(out, "example configuration written to %s\n", path)
			return nil
		},
	}
}

// openService builds a login service over the shared counter store only. The
// server's local fallback counters are not reachable from another process.
func openService(configPath string) (login.ServiceInterface, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Store.Redis.Addr == "" {
		return nil, nil, errNoSharedStore
	}

	client, err := counter.NewRedisClient(counter.RedisConfig{
		Addr:           cfg.Store.Redis.Addr,
		Password:       cfg.Store.Redis.Password,
		DB:             cfg.Store.Redis.DB,
		DialTimeout:    cfg.Store.Redis.DialTimeout,
		CommandTimeout: cfg.Store.Redis.CommandTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	store := counter.NewRedisStore(client, cfg.Store.Redis.CommandTimeout)

	directory, err := storage.NewFactory().Create(cfg.Accounts)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("open account directory: %w", err)
	}
	issuer, err := session.NewIssuer(cfg.Session)
	if err != nil {
		store.Close()
		directory.Close()
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	keys := throttle.NewKeys(cfg.Store.KeyPrefix)
	lockout := throttle.NewLockout(store, keys, cfg.Lockout.Base, cfg.Lockout.Cap, logger)
	accountant := throttle.NewAccountant(store, keys, throttle.Limits{
		IPWindow:     cfg.Throttle.IPWindow,
		IPCeiling:    cfg.Throttle.IPCeiling,
		EmailWindow:  cfg.Throttle.EmailWindow,
		EmailCeiling: cfg.Throttle.EmailCeiling,
	}, lockout)
	svc := login.NewService(accountant, lockout, directory,
		password.NewVerifier(cfg.Password.BcryptCost), issuer, login.WithLogger(logger))

	return svc, func() {
		store.Close()
		directory.Close()
	}, nil
}

func readPassword(flagValue string, in io.Reader) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errors.New("password is empty")
	}
	return pw, nil
}

func hashPassword(pw, algorithm string, cost int) (string, error) {
	switch algorithm {
	case algorithmBcrypt:
		return password.NewVerifier(cost).Hash(pw)
	case algorithmArgon2id:
		return password.HashArgon2(pw, password.DefaultArgon2Params)
	default:
		return "", fmt.Errorf("unknown algorithm %q (want %s or %s)", algorithm, algorithmBcrypt, algorithmArgon2id)
	}
}

type statusJSON struct {
	Email           string     `json:"email"`
	Locked          bool       `json:"locked"`
	LockRemaining   string     `json:"lock_remaining,omitempty"`
	LockedAt        *time.Time `json:"locked_at,omitempty"`
	Attempts        int64      `json:"attempts"`
	Failures        int64      `json:"failures"`
	WindowRemaining string     `json:"window_remaining,omitempty"`
}

func statusView(s *login.Status) statusJSON {
	v := statusJSON{
		Email:    s.Email,
		Locked:   s.Locked,
		Attempts: s.Attempts,
		Failures: s.Failures,
	}
	if s.Locked {
		v.LockRemaining = s.LockRemaining.Round(time.Second).String()
		if !s.LockedAt.IsZero() {
			lockedAt := s.LockedAt.UTC()
			v.LockedAt = &lockedAt
		}
	}
	if s.WindowRemaining > 0 {
		v.WindowRemaining = s.WindowRemaining.Round(time.Second).String()
	}
	return v
}

func printStatus(out io.Writer, s *login.Status) {
	fmt.Fprintf(out, "email:     %s\n", s.Email)
	if s.Locked {
		fmt.Fprintf(out, "locked:    yes, %s remaining\n", s.LockRemaining.Round(time.Second))
	} else {
		fmt.Fprintln(out, "locked:    no")
	}
	fmt.Fprintf(out, "attempts:  %d\n", s.Attempts)
	fmt.Fprintf(out, "failures:  %d\n", s.Failures)
	if s.WindowRemaining > 0 {
		fmt.Fprintf(out, "window:    %s remaining\n", s.WindowRemaining.Round(time.Second))
	}
}
