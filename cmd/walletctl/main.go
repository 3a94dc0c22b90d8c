package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"wallet-chat/go-core/internal/app"
	"wallet-chat/go-core/internal/config"
	"wallet-chat/go-core/internal/contracts"
	"wallet-chat/go-core/internal/keyexchange"
	"wallet-chat/go-core/internal/registry"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

const pinEnv = "WALLET_PIN"

const usage = `usage: walletctl [global flags] <command> [flags]

commands:
  init      create a wallet (-restore reads a mnemonic from stdin)
  unlock    check the PIN and print the wallet summary (-reveal prints the mnemonic)
  identity  print the messaging public key (-publish ADDRESS publishes it)
  encrypt   encrypt stdin for -peer (optionally pinned with -peer-key)
  decrypt   decrypt a base64 blob on stdin from -peer
  wipe      delete every wallet secret (-confirm required)

The PIN is read from $WALLET_PIN or the first line of stdin.
`

func main() {
	log.SetFlags(0)
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to walletcore.yaml (optional)")
	dataDir := flag.String("data-dir", "", "Directory for wallet data (optional)")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()
	if *showVersion {
		fmt.Printf("walletctl version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("walletctl: %v", err)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	in := bufio.NewReader(os.Stdin)
	if err := run(ctx, cfg, flag.Arg(0), flag.Args()[1:], in, os.Stdout); err != nil {
		log.Printf("walletctl %s: %v", flag.Arg(0), err)
		os.Exit(exitCode(err))
	}
}

func run(ctx context.Context, cfg config.Config, cmd string, args []string, in *bufio.Reader, out io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	restore := fs.Bool("restore", false, "init: read the mnemonic from stdin after the PIN")
	reveal := fs.Bool("reveal", false, "unlock: print the mnemonic")
	publish := fs.String("publish", "", "identity: publish the key under this address")
	peer := fs.String("peer", "", "encrypt/decrypt: peer address")
	peerKey := fs.String("peer-key", "", "encrypt/decrypt: peer public key in base58, skips the registry")
	confirm := fs.Bool("confirm", false, "wipe: required")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := app.OpenOptions{}
	if *peerKey != "" {
		pub, err := keyexchange.ParsePublicKey(*peerKey)
		if err != nil {
			return err
		}
		pinned := registry.NewMemoryRegistry()
		if err := pinned.PublishPublicKey(ctx, *peer, pub); err != nil {
			return err
		}
		opts.Directory = pinned
	}
	rt, err := app.Open(cfg, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	switch cmd {
	case "init":
		pin, err := readPIN(in)
		if err != nil {
			return err
		}
		if *restore {
			mnemonic, err := readLine(in)
			if err != nil {
				return err
			}
			if err := rt.RestoreWallet(ctx, pin, mnemonic, nil); err != nil {
				return err
			}
			fmt.Fprintln(out, "wallet restored")
			return nil
		}
		mnemonic, err := rt.InitializeWallet(ctx, pin, nil)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "wallet created; write down the recovery phrase:")
		fmt.Fprintln(out, mnemonic)
		return nil

	case "unlock":
		if err := unlock(ctx, rt, in); err != nil {
			return err
		}
		data, err := rt.Wallet(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "unlocked: %d account(s), storage=%s\n", len(data.Accounts), rt.StorageMode())
		for _, acc := range data.Accounts {
			fmt.Fprintf(out, "  %s\t%s\t%s\n", acc.ID, acc.Label, acc.Address)
		}
		if *reveal {
			fmt.Fprintln(out, data.Mnemonic)
		}
		return nil

	case "identity":
		if err := unlock(ctx, rt, in); err != nil {
			return err
		}
		var pub string
		if *publish != "" {
			pub, err = rt.PublishIdentity(ctx, *publish)
		} else {
			pub, err = rt.Identity(ctx)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, pub)
		return nil

	case "encrypt", "decrypt":
		if *peer == "" {
			return errors.New("-peer is required")
		}
		if err := unlock(ctx, rt, in); err != nil {
			return err
		}
		payload, err := io.ReadAll(in)
		if err != nil {
			return err
		}
		if cmd == "encrypt" {
			blob, err := rt.EncryptForPeer(ctx, *peer, payload)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, base64.StdEncoding.EncodeToString(blob))
			return nil
		}
		blob, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(payload)))
		if err != nil {
			return fmt.Errorf("blob is not base64: %w", err)
		}
		plaintext, err := rt.DecryptFromPeer(ctx, *peer, blob)
		if err != nil {
			return err
		}
		_, err = out.Write(plaintext)
		return err

	case "wipe":
		if !*confirm {
			return errors.New("refusing to wipe without -confirm")
		}
		if err := rt.Wipe(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "wallet wiped")
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func unlock(ctx context.Context, rt *app.Runtime, in *bufio.Reader) error {
	pin, err := readPIN(in)
	if err != nil {
		return err
	}
	return rt.Unlock(ctx, pin)
}

func readPIN(in *bufio.Reader) (string, error) {
	if pin := strings.TrimSpace(os.Getenv(pinEnv)); pin != "" {
		return pin, nil
	}
	return readLine(in)
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func exitCode(err error) int {
	switch contracts.ErrorCategory(err) {
	case contracts.ErrorCategoryValidation:
		return 2
	case contracts.ErrorCategoryAuthentication:
		return 3
	case contracts.ErrorCategoryNotFound:
		return 4
	case contracts.ErrorCategoryCrypto:
		return 5
	default:
		return 1
	}
}
