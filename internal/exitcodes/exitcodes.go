package exitcodes

// Exit codes for the pathgc step process
// These codes form the operational contract with the job framework
const (
	Success         = 0 // Run SUCCEEDED
	InvalidConfig   = 2 // Configuration or parameter file invalid or missing
	SafetyViolation = 3 // Safety validator refused a delete target
	RuntimeError    = 4 // Run ERRORED on a filesystem failure
)
