package web3

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// VoteVaultABI is the ABI of the VoteVaultFHE ledger contract. Encrypted
// inputs (externalEuint32) travel as a bytes32 handle plus the input proof.
const VoteVaultABI = `[
  {"type":"event","name":"ProposalCreated","anonymous":false,"inputs":[
    {"name":"proposalId","type":"uint256","indexed":true},
    {"name":"proposer","type":"address","indexed":true},
    {"name":"title","type":"string","indexed":false}]},
  {"type":"event","name":"VoteCast","anonymous":false,"inputs":[
    {"name":"voteId","type":"uint256","indexed":true},
    {"name":"proposalId","type":"uint256","indexed":true},
    {"name":"voter","type":"address","indexed":true}]},
  {"type":"event","name":"ProposalEnded","anonymous":false,"inputs":[
    {"name":"proposalId","type":"uint256","indexed":true},
    {"name":"isEnded","type":"bool","indexed":false}]},
  {"type":"event","name":"ResultsDecrypted","anonymous":false,"inputs":[
    {"name":"proposalId","type":"uint256","indexed":true},
    {"name":"forVotes","type":"uint32","indexed":false},
    {"name":"againstVotes","type":"uint32","indexed":false}]},
  {"type":"function","name":"createProposal","stateMutability":"nonpayable","inputs":[
    {"name":"_title","type":"string"},
    {"name":"_description","type":"string"},
    {"name":"_duration","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"castVote","stateMutability":"nonpayable","inputs":[
    {"name":"_proposalId","type":"uint256"},
    {"name":"voteChoice","type":"bytes32"},
    {"name":"inputProof","type":"bytes"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"endProposal","stateMutability":"nonpayable","inputs":[
    {"name":"_proposalId","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"getProposalInfo","stateMutability":"view","inputs":[
    {"name":"_proposalId","type":"uint256"}],
   "outputs":[
    {"name":"","type":"string"},
    {"name":"","type":"string"},
    {"name":"","type":"uint8"},
    {"name":"","type":"uint8"},
    {"name":"","type":"uint8"},
    {"name":"","type":"bool"},
    {"name":"","type":"bool"},
    {"name":"","type":"address"},
    {"name":"","type":"uint256"},
    {"name":"","type":"uint256"},
    {"name":"","type":"uint256"}]},
  {"type":"function","name":"getEncryptedTallies","stateMutability":"view","inputs":[
    {"name":"_proposalId","type":"uint256"}],
   "outputs":[
    {"name":"","type":"bytes32"},
    {"name":"","type":"bytes32"},
    {"name":"","type":"bytes32"}]},
  {"type":"function","name":"hasVoted","stateMutability":"view","inputs":[
    {"name":"_voter","type":"address"},
    {"name":"_proposalId","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getProposalCount","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getVoteCount","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"isVotingActive","stateMutability":"view","inputs":[
    {"name":"_proposalId","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"canRevealVotes","stateMutability":"view","inputs":[
    {"name":"_proposalId","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]}
]`

// Contract method and event names.
const (
	methodCreateProposal      = "createProposal"
	methodCastVote            = "castVote"
	methodEndProposal         = "endProposal"
	methodGetProposalInfo     = "getProposalInfo"
	methodGetEncryptedTallies = "getEncryptedTallies"
	methodHasVoted            = "hasVoted"
	methodGetProposalCount    = "getProposalCount"
	methodGetVoteCount        = "getVoteCount"
	methodIsVotingActive      = "isVotingActive"
	methodCanRevealVotes      = "canRevealVotes"

	eventProposalCreated  = "ProposalCreated"
	eventVoteCast         = "VoteCast"
	eventProposalEnded    = "ProposalEnded"
	eventResultsDecrypted = "ResultsDecrypted"
)

var voteVaultABI = mustParseABI(VoteVaultABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ParsedABI returns the parsed VoteVaultFHE ABI.
func ParsedABI() abi.ABI {
	return voteVaultABI
}
