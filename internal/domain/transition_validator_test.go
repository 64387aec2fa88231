package domain

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var testNow = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func opened() *BalanceRecord {
	return NewBalanceRecord("bal-1", "USD", "node-a", testNow)
}

func funded(amount int64) *BalanceRecord {
	return opened().Deposited(decimal.NewFromInt(amount), testNow)
}

func TestValidateTransition_Create(t *testing.T) {
	tests := []struct {
		name     string
		inputs   []*BalanceRecord
		outputs  []*BalanceRecord
		mutate   func(r *BalanceRecord)
		wantRule string
	}{
		{name: "valid"},
		{name: "consumes a record", inputs: []*BalanceRecord{opened()}, wantRule: RuleNoInputs},
		{name: "no outputs", outputs: []*BalanceRecord{}, wantRule: RuleSingleOutput},
		{name: "two outputs", outputs: []*BalanceRecord{opened(), opened()}, wantRule: RuleSingleOutput},
		{name: "non-zero money in", mutate: func(r *BalanceRecord) { r.MoneyIn = decimal.NewFromInt(1) }, wantRule: RuleZeroMoneyIn},
		{name: "non-zero money out", mutate: func(r *BalanceRecord) { r.MoneyOut = decimal.NewFromInt(1) }, wantRule: RuleZeroMoneyOut},
		{name: "empty currency", mutate: func(r *BalanceRecord) { r.Currency = "" }, wantRule: RuleCurrencyRequired},
		{name: "blank currency", mutate: func(r *BalanceRecord) { r.Currency = "   " }, wantRule: RuleCurrencyRequired},
		{name: "empty owner", mutate: func(r *BalanceRecord) { r.Owner = "" }, wantRule: RuleOwnerRequired},
		{name: "wrong version", mutate: func(r *BalanceRecord) { r.Version = 2 }, wantRule: RuleInitialVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := opened()
			if tt.mutate != nil {
				tt.mutate(out)
			}
			tr := &Transition{ID: "t", Command: CommandCreate, Inputs: tt.inputs, Outputs: []*BalanceRecord{out}}
			if tt.outputs != nil {
				tr.Outputs = tt.outputs
			}

			assertRule(t, ValidateTransition(tr), tt.wantRule)
		})
	}
}

func TestValidateTransition_Deposit(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(r *BalanceRecord)
		wantRule string
	}{
		{name: "valid"},
		{name: "money out changed", mutate: func(r *BalanceRecord) { r.MoneyOut = decimal.NewFromInt(1) }, wantRule: RuleMoneyOutUnchanged},
		{name: "currency changed", mutate: func(r *BalanceRecord) { r.Currency = "EUR" }, wantRule: RuleCurrencyUnchanged},
		{name: "owner changed", mutate: func(r *BalanceRecord) { r.Owner = "node-b" }, wantRule: RuleOwnerUnchanged},
		{name: "id changed", mutate: func(r *BalanceRecord) { r.ID = "bal-2" }, wantRule: RuleIDUnchanged},
		{name: "version skipped", mutate: func(r *BalanceRecord) { r.Version = 5 }, wantRule: RuleNextVersion},
		{name: "zero deposit", mutate: func(r *BalanceRecord) { r.MoneyIn = decimal.NewFromInt(100) }, wantRule: RuleMoneyInIncreased},
		{name: "money in decreased", mutate: func(r *BalanceRecord) { r.MoneyIn = decimal.NewFromInt(10) }, wantRule: RuleMoneyInIncreased},
	}

	// Deposits on top of a consumed record whose money out is already negative.
	negIn := funded(100)
	negIn.MoneyOut = decimal.NewFromInt(-10)
	err := ValidateTransition(NewTransition("t", CommandDeposit, negIn, negIn.Deposited(decimal.NewFromInt(5), testNow), testNow))
	assertRule(t, err, RuleNonNegativeMoney)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := funded(100)
			out := in.Deposited(decimal.NewFromInt(25), testNow)
			if tt.mutate != nil {
				tt.mutate(out)
			}

			assertRule(t, ValidateTransition(NewTransition("t", CommandDeposit, in, out, testNow)), tt.wantRule)
		})
	}
}

func TestValidateTransition_Withdraw(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		mutate   func(r *BalanceRecord)
		wantRule string
	}{
		{name: "valid", amount: 40},
		{name: "withdraw entire balance", amount: 100},
		{name: "overdraft", amount: 101, wantRule: RuleNonNegativeBalance},
		{name: "money in changed", amount: 10, mutate: func(r *BalanceRecord) { r.MoneyIn = decimal.NewFromInt(500) }, wantRule: RuleMoneyInUnchanged},
		{name: "currency changed", amount: 10, mutate: func(r *BalanceRecord) { r.Currency = "EUR" }, wantRule: RuleCurrencyUnchanged},
		{name: "owner changed", amount: 10, mutate: func(r *BalanceRecord) { r.Owner = "node-b" }, wantRule: RuleOwnerUnchanged},
		{name: "id changed", amount: 10, mutate: func(r *BalanceRecord) { r.ID = "bal-2" }, wantRule: RuleIDUnchanged},
		{name: "zero withdrawal", amount: 0, wantRule: RuleMoneyOutIncreased},
		{name: "negative money out", amount: 10, mutate: func(r *BalanceRecord) { r.MoneyOut = decimal.NewFromInt(-5) }, wantRule: RuleNonNegativeMoney},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := funded(100)
			out := in.Withdrawn(decimal.NewFromInt(tt.amount), testNow)
			if tt.mutate != nil {
				tt.mutate(out)
			}

			assertRule(t, ValidateTransition(NewTransition("t", CommandWithdraw, in, out, testNow)), tt.wantRule)
		})
	}
}

func TestValidateTransition_Structure(t *testing.T) {
	in := funded(100)
	out := in.Deposited(decimal.NewFromInt(1), testNow)

	tests := []struct {
		name     string
		tr       *Transition
		wantRule string
	}{
		{"nil transition", nil, RuleTransitionRequired},
		{"unknown command", NewTransition("t", Command("issue"), in, out, testNow), RuleUnrecognizedCommand},
		{"deposit without input", NewTransition("t", CommandDeposit, nil, out, testNow), RuleSingleInput},
		{"withdraw without output", NewTransition("t", CommandWithdraw, in, nil, testNow), RuleSingleOutput},
		{"deposit with two inputs", &Transition{Command: CommandDeposit, Inputs: []*BalanceRecord{in, in}, Outputs: []*BalanceRecord{out}}, RuleSingleInput},
		{"deposit with nil input", &Transition{Command: CommandDeposit, Inputs: []*BalanceRecord{nil}, Outputs: []*BalanceRecord{out}}, RuleSingleInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertRule(t, ValidateTransition(tt.tr), tt.wantRule)
		})
	}
}

func TestValidationError_MessageWithoutCommand(t *testing.T) {
	err := ValidateTransition(nil)
	if err == nil || err.Error() != "validation failed: transition is required" {
		t.Fatalf("unexpected message: %v", err)
	}
}

// Withdrawals cannot reuse the deposit tag: a record whose money out grew
// fails the deposit rules.
func TestValidateTransition_WithdrawalUnderDepositTag(t *testing.T) {
	in := funded(100)
	out := in.Withdrawn(decimal.NewFromInt(10), testNow)

	assertRule(t, ValidateTransition(NewTransition("t", CommandDeposit, in, out, testNow)), RuleMoneyOutUnchanged)
}

func TestValidateTransition_DoesNotMutate(t *testing.T) {
	in := funded(100)
	out := in.Withdrawn(decimal.NewFromInt(500), testNow)
	inCopy, outCopy := *in, *out

	_ = ValidateTransition(NewTransition("t", CommandWithdraw, in, out, testNow))

	if !in.MoneyIn.Equal(inCopy.MoneyIn) || !in.MoneyOut.Equal(inCopy.MoneyOut) || in.Version != inCopy.Version {
		t.Errorf("consumed record mutated")
	}
	if !out.MoneyIn.Equal(outCopy.MoneyIn) || !out.MoneyOut.Equal(outCopy.MoneyOut) || out.Version != outCopy.Version {
		t.Errorf("produced record mutated")
	}
}

func TestValidateTransition_RandomSequencesKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 50; run++ {
		current := opened()
		if err := ValidateTransition(NewTransition("t", CommandCreate, nil, current, testNow)); err != nil {
			t.Fatalf("create rejected: %v", err)
		}

		for step := 0; step < 40; step++ {
			amount := decimal.NewFromInt(rng.Int63n(200) + 1)
			cmd, next := CommandDeposit, current.Deposited(amount, testNow)
			if rng.Intn(2) == 0 {
				cmd, next = CommandWithdraw, current.Withdrawn(amount, testNow)
			}

			err := ValidateTransition(NewTransition("t", cmd, current, next, testNow))
			if err != nil {
				if cmd != CommandWithdraw || !amount.GreaterThan(current.Balance()) {
					t.Fatalf("unexpected rejection of %s %s at balance %s: %v", cmd, amount, current.Balance(), err)
				}
				continue
			}

			if !next.Balance().Equal(next.MoneyIn.Sub(next.MoneyOut)) {
				t.Fatalf("balance invariant broken: %+v", next)
			}
			if next.Balance().IsNegative() {
				t.Fatalf("accepted negative balance: %s", next.Balance())
			}
			if next.MoneyIn.LessThan(current.MoneyIn) || next.MoneyOut.LessThan(current.MoneyOut) {
				t.Fatalf("money fields decreased: %+v -> %+v", current, next)
			}
			current = next
		}
	}
}

func assertRule(t *testing.T, err error, wantRule string) {
	t.Helper()

	if wantRule == "" {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return
	}

	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if verr.Rule != wantRule {
		t.Fatalf("expected rule %s, got %s (%s)", wantRule, verr.Rule, verr.Reason)
	}
}
