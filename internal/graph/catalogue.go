package graph

import "github.com/scrypster/cyberrag/pkg/types"

// SeedEntities returns the built-in entity catalogue in load order:
// threats, vulnerabilities, mitigations, attack patterns.
func SeedEntities() []types.Entity {
	return []types.Entity{
		// Threats
		types.NewThreat("Malware", "high", "Malicious software designed to damage or disrupt systems"),
		types.NewThreat("Phishing", "high", "Social engineering attack to steal sensitive information"),
		types.NewThreat("DDoS", "high", "Distributed Denial of Service attack"),
		types.NewThreat("SQL Injection", "critical", "Code injection technique targeting databases"),
		types.NewThreat("XSS", "medium", "Cross-Site Scripting vulnerability"),
		types.NewThreat("Ransomware", "critical", "Malware that encrypts data and demands ransom"),
		types.NewThreat("Zero-Day", "critical", "Previously unknown vulnerability"),
		types.NewThreat("Man-in-the-Middle", "high", "Interception of communication between two parties"),

		// Vulnerabilities
		types.NewVulnerability("Buffer Overflow", 8.5, "Memory corruption vulnerability"),
		types.NewVulnerability("Weak Authentication", 7.0, "Insufficient authentication mechanisms"),
		types.NewVulnerability("Unpatched Software", 7.5, "Software without security updates"),
		types.NewVulnerability("Misconfiguration", 6.5, "Improper system configuration"),
		types.NewVulnerability("Insufficient Encryption", 7.0, "Weak or missing encryption"),

		// Mitigations
		types.NewMitigation("Multi-Factor Authentication", "high", "Multiple authentication factors"),
		types.NewMitigation("Patch Management", "high", "Regular security updates"),
		types.NewMitigation("Input Validation", "high", "Validate and sanitize user input"),
		types.NewMitigation("Encryption", "high", "Data encryption at rest and in transit"),
		types.NewMitigation("Firewall", "medium", "Network traffic filtering"),
		types.NewMitigation("IDS/IPS", "medium", "Intrusion detection and prevention"),
		types.NewMitigation("Security Training", "medium", "User security awareness training"),

		// Attack patterns
		types.NewAttackPattern("Credential Stuffing", "Automated injection of stolen credentials"),
		types.NewAttackPattern("Brute Force", "Systematic trial of all possible combinations"),
		types.NewAttackPattern("Session Hijacking", "Takeover of a user session"),
		types.NewAttackPattern("Code Injection", "Injection of malicious code"),
	}
}

// SeedRelationships returns the built-in relationship catalogue in load order.
func SeedRelationships() []types.Relationship {
	rel := func(source string, relation types.Relation, target string) types.Relationship {
		return types.Relationship{Source: source, Target: target, Relation: relation}
	}

	return []types.Relationship{
		// Threats exploit vulnerabilities
		rel("Malware", types.RelExploits, "Unpatched Software"),
		rel("Phishing", types.RelExploits, "Weak Authentication"),
		rel("SQL Injection", types.RelExploits, "Buffer Overflow"),
		rel("Ransomware", types.RelExploits, "Unpatched Software"),
		rel("XSS", types.RelExploits, "Misconfiguration"),
		rel("Man-in-the-Middle", types.RelExploits, "Insufficient Encryption"),

		// Threats use attack patterns
		rel("Phishing", types.RelUses, "Credential Stuffing"),
		rel("Malware", types.RelUses, "Code Injection"),
		rel("Man-in-the-Middle", types.RelUses, "Session Hijacking"),

		// Mitigations protect against threats
		rel("Multi-Factor Authentication", types.RelMitigates, "Phishing"),
		rel("Multi-Factor Authentication", types.RelMitigates, "Credential Stuffing"),
		rel("Patch Management", types.RelMitigates, "Malware"),
		rel("Patch Management", types.RelMitigates, "Ransomware"),
		rel("Patch Management", types.RelMitigates, "Zero-Day"),
		rel("Input Validation", types.RelMitigates, "SQL Injection"),
		rel("Input Validation", types.RelMitigates, "XSS"),
		rel("Encryption", types.RelMitigates, "Man-in-the-Middle"),
		rel("Firewall", types.RelMitigates, "DDoS"),
		rel("IDS/IPS", types.RelMitigates, "Malware"),
		rel("Security Training", types.RelMitigates, "Phishing"),

		// Mitigations address vulnerabilities
		rel("Multi-Factor Authentication", types.RelAddresses, "Weak Authentication"),
		rel("Patch Management", types.RelAddresses, "Unpatched Software"),
		rel("Input Validation", types.RelAddresses, "Buffer Overflow"),
		rel("Encryption", types.RelAddresses, "Insufficient Encryption"),
	}
}
