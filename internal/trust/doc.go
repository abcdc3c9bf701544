// Package trust scores extended relational trust between a user and the
// coaching system.
//
// Six weighted signals aggregate into a score in [0,1], mapped onto
// three contiguous levels (not_established / building / established).
// Each level carries a behavior contract — whether assessment and deep
// intervention are permitted — consumed by conversational agents outside
// this core.
//
// The package also evaluates Observer→Grower activation eligibility: an
// OR of three independent paths (curiosity expression, sustained trust
// over enough dialogs, coach referral with very high trust), each
// reported with its current value, target, and met flag.
package trust
