package tool

import "path/filepath"

// Defaults returns the stock tool table, with every tool checked out under homeDir.
func Defaults(homeDir string) []Descriptor {
	return []Descriptor{
		{
			ID:          "spiderfoot",
			Name:        "SpiderFoot",
			Description: "Automate OSINT collection (Web UI & CLI).",
			Kind:        KindService,
			Dir:         filepath.Join(homeDir, "spiderfoot"),
			Command:     "python3",
			Args:        []string{"sf.py", "-l", "127.0.0.1:5001"},
			URL:         "http://127.0.0.1:5001",
		},
		{
			ID:          "phoneinfoga",
			Name:        "PhoneInfoga",
			Description: "Information gathering framework for phone numbers.",
			Kind:        KindService,
			Dir:         filepath.Join(homeDir, "phoneinfoga"),
			Command:     filepath.Join(homeDir, "phoneinfoga", "bin", "phoneinfoga"),
			Args:        []string{"serve", "-p", "5000"},
			URL:         "http://127.0.0.1:5000",
		},
		{
			ID:          "sherlock",
			Name:        "Sherlock",
			Description: "Hunt down social media accounts by username.",
			Kind:        KindCLI,
			Dir:         filepath.Join(homeDir, "sherlock"),
			Command:     "python3",
		},
		{
			ID:          "holehe",
			Name:        "Holehe",
			Description: "Check if an email is attached to accounts (no login used).",
			Kind:        KindCLI,
			Dir:         homeDir,
			Command:     "holehe",
		},
		{
			ID:          "theHarvester",
			Name:        "theHarvester",
			Description: "Gather emails, subdomains, hosts, employee names, open ports.",
			Kind:        KindCLI,
			Dir:         homeDir,
			Command:     "theHarvester",
		},
		{
			ID:          "photon",
			Name:        "Photon",
			Description: "Incredibly fast crawler designed for OSINT.",
			Kind:        KindCLI,
			Dir:         filepath.Join(homeDir, "Photon"),
			Command:     "python3",
		},
		{
			ID:          "blackbird",
			Name:        "Blackbird",
			Description: "Find usernames across social media sites.",
			Kind:        KindCLI,
			Dir:         filepath.Join(homeDir, "blackbird"),
			Command:     "python3",
		},
		{
			ID:          "sublist3r",
			Name:        "Sublist3r",
			Description: "Fast subdomains enumeration tool.",
			Kind:        KindCLI,
			Dir:         filepath.Join(homeDir, "Sublist3r"),
			Command:     "python3",
		},
		{
			ID:          "maigret",
			Name:        "Maigret",
			Description: "Collect a dossier on a person by username.",
			Kind:        KindCLI,
			Dir:         filepath.Join(homeDir, "maigret"),
			Command:     "python3",
		},
		{
			ID:          "dnsrecon",
			Name:        "DNSRecon",
			Description: "DNS enumeration script.",
			Kind:        KindCLI,
			Dir:         filepath.Join(homeDir, "dnsrecon"),
			Command:     "python3",
		},
		{
			ID:          "wafw00f",
			Name:        "WafW00f",
			Description: "Identify and fingerprint Web Application Firewalls.",
			Kind:        KindCLI,
			Dir:         filepath.Join(homeDir, "wafw00f"),
			Command:     "python3",
		},
	}
}
