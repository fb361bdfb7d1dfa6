// Command client uploads and downloads files against a secure transfer server.
//
//	client upload <path>
//	client download [-o out] <id>
//	client signed-download [-o out] <id>
//	client url [-ttl 60s] <id>
//	client status <id>
//	client delete <id>
//
// Credentials come from the environment (SFT_SERVER_URL, SFT_AUTH_STRATEGY
// and the matching secret).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	"secure-transfer/internal/client"
	"secure-transfer/internal/logging"
)

type cliConfig struct {
	ServerURL     string `env:"SFT_SERVER_URL" envDefault:"http://localhost:8080"`
	Strategy      string `env:"SFT_AUTH_STRATEGY" envDefault:"bearer"`
	BearerToken   string `env:"SFT_BEARER_TOKEN"`
	HMACSecret    string `env:"SFT_HMAC_SECRET"`
	JWTSecret     string `env:"SFT_JWT_SECRET"`
	JWTPrivateKey string `env:"SFT_JWT_PRIVATE_KEY"`
	JWTAlgorithm  string `env:"SFT_JWT_ALGORITHM" envDefault:"HS256"`
	JWTIssuer     string `env:"SFT_JWT_ISSUER" envDefault:"file-transfer-client"`
	JWTSubject    string `env:"SFT_JWT_SUBJECT"`
	LogLevel      string `env:"SFT_LOG_LEVEL" envDefault:"warn"`
}

var errUsage = errors.New("usage: client <upload|download|signed-download|url|status|delete> [flags] <arg>")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	var cfg cliConfig
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	logging.Configure(os.Stderr, logging.Options{Level: cfg.LogLevel})

	if len(args) == 0 {
		return errUsage
	}
	creds, err := credentialsFor(cfg)
	if err != nil {
		return err
	}
	c := client.New(cfg.ServerURL, creds)

	cmd, rest := args[0], args[1:]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	out := fs.String("o", "", "output path (defaults to the original file name)")
	ttl := fs.Duration("ttl", 0, "signed url lifetime (server default when zero)")
	if err := fs.Parse(rest); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 1 {
		return errUsage
	}
	arg := fs.Arg(0)

	var result any
	switch cmd {
	case "upload":
		result, err = c.Upload(ctx, arg)
	case "download":
		result, err = download(ctx, c.Download, c, arg, *out)
	case "signed-download":
		result, err = download(ctx, c.DownloadSigned, c, arg, *out)
	case "url":
		result, err = c.RequestSignedURL(ctx, arg, *ttl)
	case "status":
		result, err = c.Status(ctx, arg)
	case "delete":
		err = c.Delete(ctx, arg)
		result = map[string]string{"deleted": arg}
	default:
		return errUsage
	}
	if err != nil {
		logging.Debug("command failed", map[string]any{"command": cmd, "id": arg})
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

type fetchFunc func(ctx context.Context, id, outPath string) (client.FileInfo, error)

// download resolves the output path from the stored name when -o is empty.
func download(ctx context.Context, fetch fetchFunc, c *client.Client, id, out string) (client.FileInfo, error) {
	if out == "" {
		info, err := c.Status(ctx, id)
		if err != nil {
			return client.FileInfo{}, err
		}
		out = safeLocalName(info.OriginalName, id)
	}
	return fetch(ctx, id, out)
}

// safeLocalName keeps only the base name so a hostile server cannot steer
// the write outside the working directory.
func safeLocalName(name, fallback string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." || name == ".." {
		return fallback
	}
	return name
}

func credentialsFor(cfg cliConfig) (client.Credentials, error) {
	switch strings.ToLower(cfg.Strategy) {
	case "bearer", "":
		return client.BearerCredentials{Token: cfg.BearerToken}, nil
	case "hmac":
		return client.HMACCredentials{Secret: cfg.HMACSecret}, nil
	case "jwt":
		method := jwt.GetSigningMethod(strings.ToUpper(cfg.JWTAlgorithm))
		if method == nil {
			return nil, fmt.Errorf("unsupported jwt algorithm %q", cfg.JWTAlgorithm)
		}
		key, err := jwtKey(method, cfg)
		if err != nil {
			return nil, err
		}
		return client.JWTCredentials{Key: key, Method: method, Issuer: cfg.JWTIssuer, Subject: cfg.JWTSubject}, nil
	default:
		return nil, fmt.Errorf("unknown auth strategy %q", cfg.Strategy)
	}
}

func jwtKey(method jwt.SigningMethod, cfg cliConfig) (any, error) {
	alg := method.Alg()
	switch {
	case strings.HasPrefix(alg, "HS"):
		if cfg.JWTSecret == "" {
			return nil, errors.New("SFT_JWT_SECRET is required for " + alg)
		}
		return []byte(cfg.JWTSecret), nil
	case strings.HasPrefix(alg, "RS"), strings.HasPrefix(alg, "PS"):
		return jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.JWTPrivateKey))
	case strings.HasPrefix(alg, "ES"):
		return jwt.ParseECPrivateKeyFromPEM([]byte(cfg.JWTPrivateKey))
	default:
		return nil, fmt.Errorf("unsupported jwt algorithm %q", alg)
	}
}
