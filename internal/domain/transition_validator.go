package domain

import "strings"

// Validator rule names. Every rejection carries exactly one of them.
const (
	RuleTransitionRequired  = "transition_required"
	RuleUnrecognizedCommand = "unrecognized_command"
	RuleNoInputs            = "no_inputs"
	RuleSingleInput         = "single_input"
	RuleSingleOutput        = "single_output"
	RuleZeroMoneyIn         = "zero_money_in"
	RuleZeroMoneyOut        = "zero_money_out"
	RuleCurrencyRequired    = "currency_required"
	RuleOwnerRequired       = "owner_required"
	RuleInitialVersion      = "initial_version"
	RuleMoneyInUnchanged    = "money_in_unchanged"
	RuleMoneyOutUnchanged   = "money_out_unchanged"
	RuleCurrencyUnchanged   = "currency_unchanged"
	RuleOwnerUnchanged      = "owner_unchanged"
	RuleIDUnchanged         = "id_unchanged"
	RuleNextVersion         = "next_version"
	RuleMoneyInIncreased    = "money_in_increased"
	RuleMoneyOutIncreased   = "money_out_increased"
	RuleNonNegativeBalance  = "non_negative_balance"
	RuleNonNegativeMoney    = "non_negative_money"
)

type rule struct {
	name   string
	reason string
	holds  func(in, out *BalanceRecord) bool
}

var createRules = []rule{
	{RuleZeroMoneyIn, "money in must be 0 when opening a balance", func(_, out *BalanceRecord) bool {
		return out.MoneyIn.IsZero()
	}},
	{RuleZeroMoneyOut, "money out must be 0 when opening a balance", func(_, out *BalanceRecord) bool {
		return out.MoneyOut.IsZero()
	}},
	{RuleCurrencyRequired, "currency must be specified", func(_, out *BalanceRecord) bool {
		return strings.TrimSpace(out.Currency) != ""
	}},
	{RuleOwnerRequired, "owner must be specified", func(_, out *BalanceRecord) bool {
		return strings.TrimSpace(out.Owner) != ""
	}},
	{RuleInitialVersion, "a new balance starts at version 1", func(_, out *BalanceRecord) bool {
		return out.Version == 1
	}},
}

// identityRules hold for every transition that consumes a record.
var identityRules = []rule{
	{RuleNonNegativeMoney, "money in and money out must be non-negative", func(in, out *BalanceRecord) bool {
		return !in.MoneyIn.IsNegative() && !in.MoneyOut.IsNegative() &&
			!out.MoneyIn.IsNegative() && !out.MoneyOut.IsNegative()
	}},
	{RuleCurrencyUnchanged, "currency cannot change", func(in, out *BalanceRecord) bool {
		return in.Currency == out.Currency
	}},
	{RuleOwnerUnchanged, "owner cannot change", func(in, out *BalanceRecord) bool {
		return in.Owner == out.Owner
	}},
	{RuleIDUnchanged, "balance id cannot change", func(in, out *BalanceRecord) bool {
		return in.ID == out.ID
	}},
	{RuleNextVersion, "produced version must follow the consumed version", func(in, out *BalanceRecord) bool {
		return out.Version == in.Version+1
	}},
}

var depositRules = concatRules(
	[]rule{{RuleMoneyOutUnchanged, "only money in may change on deposit", func(in, out *BalanceRecord) bool {
		return in.MoneyOut.Equal(out.MoneyOut)
	}}},
	identityRules,
	[]rule{{RuleMoneyInIncreased, "deposited amount must be positive", func(in, out *BalanceRecord) bool {
		return out.MoneyIn.GreaterThan(in.MoneyIn)
	}}},
)

var withdrawRules = concatRules(
	[]rule{{RuleMoneyInUnchanged, "only money out may change on withdrawal", func(in, out *BalanceRecord) bool {
		return in.MoneyIn.Equal(out.MoneyIn)
	}}},
	identityRules,
	[]rule{
		{RuleMoneyOutIncreased, "withdrawn amount must be positive", func(in, out *BalanceRecord) bool {
			return out.MoneyOut.GreaterThan(in.MoneyOut)
		}},
		{RuleNonNegativeBalance, "insufficient balance", func(_, out *BalanceRecord) bool {
			return !out.Balance().IsNegative()
		}},
	},
)

// ValidateTransition decides whether t is a well-formed transition for its
// command. It returns nil or a *ValidationError for the first rule that fails.
// The transition and its records are never modified.
func ValidateTransition(t *Transition) error {
	if t == nil {
		return reject("", RuleTransitionRequired, "transition is required")
	}

	switch t.Command {
	case CommandCreate:
		if len(t.Inputs) != 0 {
			return reject(t.Command, RuleNoInputs, "no inputs should be consumed when opening a balance")
		}
		if len(t.Outputs) != 1 || t.Outputs[0] == nil {
			return reject(t.Command, RuleSingleOutput, "exactly one output should be produced when opening a balance")
		}
		return apply(t.Command, createRules, nil, t.Outputs[0])

	case CommandDeposit:
		in, out, err := singleInOut(t)
		if err != nil {
			return err
		}
		return apply(t.Command, depositRules, in, out)

	case CommandWithdraw:
		in, out, err := singleInOut(t)
		if err != nil {
			return err
		}
		return apply(t.Command, withdrawRules, in, out)

	default:
		return reject(t.Command, RuleUnrecognizedCommand, "unrecognized command")
	}
}

func singleInOut(t *Transition) (*BalanceRecord, *BalanceRecord, error) {
	if len(t.Inputs) != 1 || t.Inputs[0] == nil {
		return nil, nil, reject(t.Command, RuleSingleInput, "exactly one input should be consumed")
	}
	if len(t.Outputs) != 1 || t.Outputs[0] == nil {
		return nil, nil, reject(t.Command, RuleSingleOutput, "exactly one output should be produced")
	}
	return t.Inputs[0], t.Outputs[0], nil
}

func apply(cmd Command, rules []rule, in, out *BalanceRecord) error {
	for _, r := range rules {
		if !r.holds(in, out) {
			return reject(cmd, r.name, r.reason)
		}
	}
	return nil
}

func reject(cmd Command, name, reason string) error {
	return &ValidationError{Command: cmd, Rule: name, Reason: reason}
}

func concatRules(groups ...[]rule) []rule {
	var all []rule
	for _, g := range groups {
		all = append(all, g...)
	}
	return all
}
