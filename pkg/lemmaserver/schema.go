package lemmaserver

import "fmt"

// Redis key pattern helpers
//
// All keys and Pub/Sub channels are namespaced by instance name so several
// solving sessions can share one Redis server.
//
// Key pattern: ptp:{instance_name}:{entity}:...
// Channel pattern: ptp:{instance_name}:commands

// LemmasKey returns the Redis list holding the lemmas shared for one node of
// one instance.
// Pattern: ptp:{instance_name}:lemmas:{name}:{node}
func LemmasKey(instanceName, name, node string) string {
	return fmt.Sprintf("ptp:%s:lemmas:%s:%s", instanceName, name, node)
}

// CursorKey returns the hash recording how far a solver has read each lemma
// list.
// Pattern: ptp:{instance_name}:cursor:{solver_id}
func CursorKey(instanceName, solverID string) string {
	return fmt.Sprintf("ptp:%s:cursor:%s", instanceName, solverID)
}

// ReportsKey returns the hash of reported results, keyed by OwnerField.
// Pattern: ptp:{instance_name}:reports
func ReportsKey(instanceName string) string {
	return fmt.Sprintf("ptp:%s:reports", instanceName)
}

// CommandsChannel returns the Pub/Sub channel carrying wire-form command
// messages.
// Pattern: ptp:{instance_name}:commands
func CommandsChannel(instanceName string) string {
	return fmt.Sprintf("ptp:%s:commands", instanceName)
}

// OwnerField returns the hash field used for one (name, node) owner.
func OwnerField(name, node string) string {
	return name + ":" + node
}
