// Package ledger provides an event-sourced credit and settlement core
// for benefits platforms.
//
// Ledger is designed as a library, not a service. Import it directly
// into your Go application. It provides:
//
//   - Event-sourced credit accounts per owner and credit type, with a
//     transactionally consistent projected balance
//   - Division balances tracking invoiced, paid and credited amounts
//     with per-invoice outstanding entries
//   - Monthly invoice generation batches with derived terminal status
//   - Settlement of purchases from balance, card, or a mix of both,
//     with pessimistic balance locking and compensating rollback
//   - A typed hook system for observing every lifecycle event
//
// # Quick Start
//
// Create a ledger instance with your preferred store:
//
//	import (
//	    "github.com/beneflow/ledger"
//	    "github.com/beneflow/ledger/store/postgres"
//	)
//
//	// Initialize store
//	store, err := postgres.Connect(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create ledger
//	l := ledger.New(store, ledger.WithGateway(gw))
//
//	// Start the ledger (runs migrations, initializes hooks)
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Core Concepts
//
// Credit accounts are addressed by an owner reference and a credit
// type:
//
//	owner := ledger.UserRef("user-42")
//	balance, err := l.AddCredit(ctx, owner, credit.TypeCash, 5000, "monthly allocation")
//
// Purchases are settled from the balance, a card, or both:
//
//	plan, err := l.PlanPayment(ctx, owner, 8000)
//	switch plan.Method {
//	case ledger.MethodBalance:
//	    result, err = l.ProcessBalancePayment(ctx, req, plan.BalanceAmount.Amount)
//	case ledger.MethodMixed, ledger.MethodCard:
//	    result, err = l.ProcessMixedPayment(ctx, req, plan)
//	}
//
// Insufficient funds during plain credit consumption are an observable
// no-op, not an error; settlement paths convert that into an explicit
// insufficiency failure before any money moves.
package ledger
