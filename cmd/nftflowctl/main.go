// Command nftflowctl submits wallet actions and inspects the connected
// account, against a remote gateway or an in-process sandbox ledger.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, cfg := parseCommandLine()

	var err error
	switch cmd {
	case transferSubCmd:
		err = transfer(ctx, cfg.(*transferConfig))
	case createCollectionSubCmd:
		err = createCollection(ctx, cfg.(*createCollectionConfig))
	case mintSubCmd:
		err = mint(ctx, cfg.(*mintConfig))
	case batchMintSubCmd:
		err = batchMint(ctx, cfg.(*batchMintConfig))
	case accountSubCmd:
		err = account(ctx, cfg.(*accountConfig))
	case serveSubCmd:
		err = serve(ctx, cfg.(*serveConfig))
	case gatewaySubCmd:
		err = gateway(ctx, cfg.(*gatewayConfig))
	default:
		printErrorAndExit("Unknown command")
	}

	if err != nil {
		printErrorAndExit(err.Error())
	}
}

func printErrorAndExit(message string) {
	fmt.Fprintf(os.Stderr, "%s\n", message)
	os.Exit(1)
}
