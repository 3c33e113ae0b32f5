package config

import (
	"fmt"
)

// validate checks the structural constraints on every server record and
// returns one issue per violation, rooted at the offending field path.
func validate(cfg *Config) []string {
	var issues []string

	for _, name := range cfg.Names() {
		server := cfg.Servers[name]
		root := "mcpServers." + name

		hasCommand := server.Command != ""
		hasURL := server.URL != ""
		switch {
		case hasCommand && hasURL:
			issues = append(issues, root+": command and url are mutually exclusive")
		case !hasCommand && !hasURL:
			issues = append(issues, root+": either command or url is required")
		}

		if server.TimeoutSeconds < 0 {
			issues = append(issues, fmt.Sprintf("%s.timeout: must not be negative, got %d", root, server.TimeoutSeconds))
		}

		if server.OAuth != nil {
			if hasCommand && !hasURL {
				issues = append(issues, root+".oauth: OAuth applies to remote servers only")
			}
			issues = append(issues, validateOAuth(root+".oauth", server.OAuth)...)
		}
	}

	return issues
}

func validateOAuth(root string, oauth *OAuthConfig) []string {
	var issues []string

	switch oauth.GrantType {
	case "", GrantAuthorizationCode:
	case GrantClientCredentials:
		if oauth.ClientID == "" {
			issues = append(issues, root+".clientId: required for the client_credentials grant")
		}
		if oauth.ClientSecret == "" {
			issues = append(issues, root+".clientSecret: required for the client_credentials grant")
		}
	default:
		issues = append(issues, fmt.Sprintf("%s.grantType: unknown grant %q (want %s or %s)",
			root, oauth.GrantType, GrantAuthorizationCode, GrantClientCredentials))
	}

	if oauth.CallbackPort != 0 && (oauth.CallbackPort < 1 || oauth.CallbackPort > 65535) {
		issues = append(issues, fmt.Sprintf("%s.callbackPort: %d is outside 1-65535", root, oauth.CallbackPort))
	}
	for i, port := range oauth.CallbackPorts {
		if port < 0 || port > 65535 {
			issues = append(issues, fmt.Sprintf("%s.callbackPorts[%d]: %d is outside 0-65535", root, i, port))
		}
	}

	return issues
}
