package audit

// techniqueMap maps attack catalog categories to MITRE ATT&CK technique IDs,
// included in regression alerts so downstream triage tooling can group
// findings by technique.
//
// Technique IDs follow the format T####[.###] (base or sub-technique).
var techniqueMap = map[string]string{
	"command_injection":    "T1059",     // Command and Scripting Interpreter
	"privilege_escalation": "T1548",     // Abuse Elevation Control Mechanism
	"path_traversal":       "T1083",     // File and Directory Discovery
	"buffer_overflow":      "T1203",     // Exploitation for Client Execution
	"input_validation":     "T1027",     // Obfuscated Files or Information
	"race_condition":       "T1499.004", // Endpoint DoS: Application or System Exploitation
	"resource_exhaustion":  "T1499",     // Endpoint Denial of Service
	"session_security":     "T1563",     // Remote Service Session Hijacking
	"process_isolation":    "T1055",     // Process Injection
	"data_leakage":         "T1552",     // Unsecured Credentials
	"configuration":        "T1574.007", // Hijack Execution Flow: Path Interception by PATH
	"api":                  "T1190",     // Exploit Public-Facing Application
}

// TechniqueForCategory returns the MITRE ATT&CK technique ID for an attack
// category label. Returns an empty string for unknown labels.
func TechniqueForCategory(category string) string {
	return techniqueMap[category]
}
