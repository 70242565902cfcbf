package header

// Recognised header keys.
const (
	KeyNode            = "node"
	KeyNodeNext        = "node_" // target address of an incremental move
	KeyCommand         = "command"
	KeyQuery           = "query"
	KeyName            = "name"
	KeySeed            = "seed"
	KeySplitType       = "split-type"
	KeySplitPreference = "split-preference"
	KeyPartitions      = "partitions"
	KeySolver          = "solver"
	KeyReport          = "report"
	KeyMaxMemory       = "max_memory"
	KeyScatterSplit    = "scatter-split"
	KeySearchCounter   = "search_counter"
	KeyStatusInfo      = "status_info"
	KeyLemmaAmount     = "lemma_amount"
)

// Protocol commands carried under KeyCommand.
const (
	CommandSolve       = "solve"
	CommandStop        = "stop"
	CommandInject      = "inject"
	CommandIncremental = "incremental"
	CommandPartition   = "partition"
	CommandTerminate   = "terminate"
	CommandCNFClauses  = "cnf-clauses"
	CommandCNFLearnts  = "cnf-learnts"
	CommandLemmas      = "lemmas"
)

// Key prefixes for grouped entries, used with the *Prefixed helpers.
const (
	PrefixParameter = "parameter"
	PrefixStatistic = "statistic"
)

// OwnerKeys is the key subset that identifies whose clauses belong together.
var OwnerKeys = []string{KeyNode, KeyName}
