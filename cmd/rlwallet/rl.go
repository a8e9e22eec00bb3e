package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Klingon-tech/klingnet-rlwallet/internal/ratelimit"
	"github.com/Klingon-tech/klingnet-rlwallet/internal/wallet"
)

const rlUsage = `Usage: rlwallet rl <command>

Commands:
  fund <owner_pubkey> <amount> <limit> <interval> [fee]
                                 Create a rate-limited coin for another wallet
  receive <descriptor>           Accept a rate-limited coin (before it confirms)
  spend <puzzle_hash> <amount>   Withdraw from the rate-limited coin
  deposit <rl_puzzle_hash> <amount> [fee]
                                 Top up someone's rate-limited coin
  consolidate                    Absorb waiting deposits now
  status                         Show the rate-limited coin
`

func cmdRL(a *app, args []string) {
	if len(args) == 0 {
		a.fail("%s", rlUsage)
	}
	sub, args := args[0], args[1:]
	switch sub {
	case "fund":
		cmdRLFund(a, args)
	case "receive":
		cmdRLReceive(a, args)
	case "spend":
		cmdRLSpend(a, args)
	case "deposit":
		cmdRLDeposit(a, args)
	case "consolidate":
		cmdRLConsolidate(a)
	case "status":
		cmdRLStatus(a)
	default:
		a.fail("unknown rl command %q\n\n%s", sub, rlUsage)
	}
}

func cmdRLFund(a *app, args []string) {
	if len(args) < 4 || len(args) > 5 {
		a.fail("Usage: rlwallet rl fund <owner_pubkey> <amount> <limit> <interval> [fee]")
	}
	pub, err := hex.DecodeString(args[0])
	if err != nil {
		a.fail("invalid owner public key: %v", err)
	}
	req := wallet.FundRequest{
		OwnerPubKey: pub,
		Amount:      a.parseAmount(args[1]),
		Limit:       a.parseAmount(args[2]),
		Interval:    a.parseAmount(args[3]),
	}
	if len(args) == 5 {
		req.Fee = a.parseAmount(args[4])
	}

	ctx := context.Background()
	a.sync(ctx)
	sb, desc, err := a.wallet.FundRateLimited(req)
	if err != nil {
		a.fail("fund: %v", err)
	}
	a.submit(ctx, sb)
	fmt.Println("Descriptor (give this to the owner):")
	fmt.Printf("  %s\n", desc)
}

func cmdRLReceive(a *app, args []string) {
	if len(args) != 1 {
		a.fail("Usage: rlwallet rl receive <descriptor>")
	}
	desc, err := ratelimit.ParseDescriptor(strings.TrimSpace(args[0]))
	if err != nil {
		a.fail("%v", err)
	}
	if err := a.wallet.InitRateLimited(desc); err != nil {
		a.fail("receive: %v", err)
	}
	ph, _ := a.wallet.RLPuzzleHash()
	fmt.Printf("Rate-limited puzzle hash: %s\n", ph)
	fmt.Printf("Limit: %d per %d blocks\n", desc.Limit, desc.Interval)
}

func cmdRLSpend(a *app, args []string) {
	if len(args) != 2 {
		a.fail("Usage: rlwallet rl spend <puzzle_hash> <amount>")
	}
	dest := a.parseHash(args[0])
	amount := a.parseAmount(args[1])

	ctx := context.Background()
	a.sync(ctx)
	sb, err := a.wallet.SpendRateLimited(amount, dest)
	if err != nil {
		a.fail("spend: %v", err)
	}
	a.submit(ctx, sb)
}

func cmdRLDeposit(a *app, args []string) {
	if len(args) < 2 || len(args) > 3 {
		a.fail("Usage: rlwallet rl deposit <rl_puzzle_hash> <amount> [fee]")
	}
	rlHash := a.parseHash(args[0])
	amount := a.parseAmount(args[1])
	var fee uint64
	if len(args) == 3 {
		fee = a.parseAmount(args[2])
	}

	ctx := context.Background()
	a.sync(ctx)
	sb, err := a.wallet.Deposit(rlHash, amount, fee)
	if err != nil {
		a.fail("deposit: %v", err)
	}
	a.submit(ctx, sb)
}

func cmdRLConsolidate(a *app) {
	ctx := context.Background()
	a.sync(ctx)
	sb, err := a.wallet.ConsolidateDeposits()
	if err != nil {
		a.fail("consolidate: %v", err)
	}
	if sb == nil {
		fmt.Println("No deposits waiting")
		return
	}
	a.submit(ctx, sb)
}

func cmdRLStatus(a *app) {
	a.sync(context.Background())
	s, err := a.wallet.RateLimitStatus()
	if err != nil {
		a.fail("%v", err)
	}
	fmt.Printf("Descriptor:    %s\n", s.Descriptor)
	fmt.Printf("Puzzle hash:   %s\n", s.PuzzleHash)
	fmt.Printf("Deposit hash:  %s\n", s.AggregationPuzzleHash)
	if s.Coin == nil {
		fmt.Println("Coin:          not yet confirmed")
		return
	}
	fmt.Printf("Coin:          %s\n", s.Coin.ID())
	fmt.Printf("Amount:        %d\n", s.Coin.Amount)
	fmt.Printf("Checkpoint:    %d\n", s.Checkpoint)
	fmt.Printf("Height:        %d\n", s.Height)
	fmt.Printf("Available:     %d\n", s.Available)
	fmt.Printf("Deposits:      %d\n", s.Deposits)
	if s.Pending {
		fmt.Println("Pending:       spend in flight")
	} else if s.NextUnlock > 0 {
		fmt.Printf("Next unlock:   %d\n", s.NextUnlock)
	}
}
