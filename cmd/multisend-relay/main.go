// Multisend-relay is a daemon finishing pending transfers of the Multisend
// contract. It polls the contract for pending records and invokes
// completeTransfer/completeWithdraw for each of them with the relay account.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"go.uber.org/zap"
)

func main() {
	neoRPCEndpoint := flag.String("rpc", "", "Network address of the Neo RPC server")
	walletPath := flag.String("wallet", "", "Path to the NEP-6 wallet with the relay account")
	walletPassword := flag.String("password", "", "Password of the relay account")
	contractHash := flag.String("contract", "", "LE script hash of the Multisend contract")
	interval := flag.Duration("interval", 15*time.Second, "Polling interval")
	once := flag.Bool("once", false, "Complete currently pending transfers and exit")

	flag.Parse()

	switch {
	case *neoRPCEndpoint == "":
		log.Fatal("missing Neo RPC endpoint")
	case *walletPath == "":
		log.Fatal("missing wallet path")
	case *contractHash == "":
		log.Fatal("missing contract hash")
	}

	h, err := util.Uint160DecodeStringLE(*contractHash)
	if err != nil {
		log.Fatalf("invalid contract hash: %v", err)
	}

	l, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer l.Sync()

	r, err := newRelay(*neoRPCEndpoint, *walletPath, *walletPassword, h, l)
	if err != nil {
		l.Fatal("init relay", zap.Error(err))
	}
	defer r.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		if err := r.completePending(); err != nil {
			l.Fatal("complete pending transfers", zap.Error(err))
		}
		return
	}

	l.Info("relay started",
		zap.String("contract", h.StringLE()),
		zap.Duration("interval", *interval))

	t := time.NewTicker(*interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Info("relay stopped")
			return
		case <-t.C:
			if err := r.completePending(); err != nil {
				l.Error("complete pending transfers", zap.Error(err))
			}
		}
	}
}
