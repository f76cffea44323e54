package model

type membershipTransition struct {
	from MembershipStatus
	to   MembershipStatus
}

type transactionTransition struct {
	from TransactionStatus
	to   TransactionStatus
}

var validMembershipTransitions = map[membershipTransition]bool{
	{MembershipPending, MembershipActive}:    true,
	{MembershipPending, MembershipCancelled}: true,
	{MembershipActive, MembershipExpired}:    true,
	{MembershipActive, MembershipCancelled}:  true,
	{MembershipActive, MembershipSuspended}:  true,
}

// Admin overrides may additionally reinstate a suspended grant.
var adminMembershipTransitions = map[membershipTransition]bool{
	{MembershipPending, MembershipActive}:    true,
	{MembershipPending, MembershipCancelled}: true,
	{MembershipActive, MembershipCancelled}:  true,
	{MembershipActive, MembershipSuspended}:  true,
	{MembershipSuspended, MembershipActive}:  true,
}

var validTransactionTransitions = map[transactionTransition]bool{
	{TransactionPending, TransactionCompleted}:  true,
	{TransactionPending, TransactionFailed}:     true,
	{TransactionPending, TransactionCancelled}:  true,
	{TransactionCompleted, TransactionRefunded}: true,
	{TransactionCompleted, TransactionDisputed}: true,
}

// CanTransitionMembership reports whether the engine may move a membership from -> to.
func CanTransitionMembership(from, to MembershipStatus) bool {
	return validMembershipTransitions[membershipTransition{from, to}]
}

// CanAdminTransitionMembership reports whether an admin override may move from -> to.
func CanAdminTransitionMembership(from, to MembershipStatus) bool {
	return adminMembershipTransitions[membershipTransition{from, to}]
}

// CanTransitionTransaction reports whether a transaction may move from -> to.
func CanTransitionTransaction(from, to TransactionStatus) bool {
	return validTransactionTransitions[transactionTransition{from, to}]
}
