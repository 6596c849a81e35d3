package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const defaultRPCEndpoint = "http://127.0.0.1:8899/rpc"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	endpoint, args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	rpcEndpoint = endpoint
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	return runMarketCommand(args, stdout, stderr)
}

// applyGlobalFlags strips --rpc from args. RPC_URL is used when the flag is
// absent.
func applyGlobalFlags(args []string) (string, []string, error) {
	endpoint := strings.TrimSpace(os.Getenv("RPC_URL"))
	if endpoint == "" {
		endpoint = defaultRPCEndpoint
	}
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--rpc":
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("--rpc requires a value")
			}
			endpoint = args[i+1]
			i++
		case strings.HasPrefix(arg, "--rpc="):
			endpoint = strings.TrimPrefix(arg, "--rpc=")
		default:
			rest = append(rest, arg)
		}
	}
	if strings.TrimSpace(endpoint) == "" {
		return "", nil, fmt.Errorf("--rpc must not be empty")
	}
	return endpoint, rest, nil
}

func usage() string {
	return strings.TrimSpace(`Usage:
  market-cli [--rpc URL] <command> [flags]

Commands:
  keygen           Generate a keypair file
  operator-token   Issue an operator token for marketplace creation
  initialize       Create a marketplace
  list             Escrow an asset for sale
  delist           Withdraw a listing
  purchase         Buy a listed asset
  get-marketplace  Show a marketplace by name or address
  get-listing      Show the listing of an asset
  balance          Show the lamports held by an address
  receipt          Show a committed receipt
  head             Show the ledger height and state root
`)
}
