package catalog

const envRemediation = "Move the value to an environment variable"

// BuiltinSignatures returns the Tier 1 provider signatures.
func BuiltinSignatures() []*Rule {
	sig := func(name, provider, pattern, envVar string, keywords ...string) *Rule {
		remediation := envRemediation
		if envVar != "" {
			remediation += " (" + envVar + ")"
		}
		return &Rule{
			Name:        name,
			Category:    CategorySecret,
			Provider:    provider,
			EnvVar:      envVar,
			Remediation: remediation,
			Keywords:    keywords,
			Matcher:     MustRegexp(pattern),
		}
	}

	openAI := sig("OpenAI API Key", "OpenAI (GPT)", `\bsk-[a-zA-Z0-9]{48,51}\b`, "OPENAI_API_KEY", "sk-")
	openAI.Exclusion = MustRegexp(`sk-ant-`)

	privateKey := sig("Private Key", "Cryptographic Key", `BEGIN (RSA )?PRIVATE KEY`, "", "private key")
	privateKey.Remediation = "Remove the key file from the commit and store it outside the repository"

	return []*Rule{
		sig("Anthropic API Key", "Anthropic (Claude)", `sk-ant-api03-[A-Za-z0-9_-]{95}`, "ANTHROPIC_API_KEY", "sk-ant-"),
		openAI,
		sig("Google AI API Key", "Google (Gemini, PaLM)", `AIza[A-Za-z0-9_-]{35}`, "GOOGLE_API_KEY", "aiza"),
		sig("Hugging Face Token", "Hugging Face", `hf_[A-Za-z0-9]{32,}`, "HUGGINGFACE_TOKEN", "hf_"),
		sig("Replicate Token", "Replicate", `r8_[A-Za-z0-9]{40}`, "REPLICATE_API_TOKEN", "r8_"),
		sig("GitHub Token", "GitHub", `ghp_[A-Za-z0-9]{36}`, "GITHUB_TOKEN", "ghp_"),
		sig("GitHub OAuth Token", "GitHub OAuth", `gho_[A-Za-z0-9]{36}`, "GITHUB_TOKEN", "gho_"),
		sig("AWS Access Key", "AWS", `AKIA[A-Z0-9]{16}`, "AWS_ACCESS_KEY_ID", "akia"),
		sig("Stripe Secret Key", "Stripe", `sk_live_[A-Za-z0-9]{24,}`, "STRIPE_SECRET_KEY", "sk_live_"),
		privateKey,
	}
}

// BuiltinInjectionPhrases returns the default prompt-injection phrase set.
func BuiltinInjectionPhrases() []*Rule {
	phrase := func(name, pattern string) *Rule {
		return &Rule{
			Name:        name,
			Category:    CategoryInjection,
			Remediation: "Remove instructions addressed to AI assistants from committed content",
			Matcher:     MustRegexp(pattern),
		}
	}
	return []*Rule{
		phrase("System Override", `(?i)(AI|SYSTEM|ASSISTANT|CLAUDE|GPT|GEMINI)\s*(INSTRUCTION|OVERRIDE|COMMAND|DIRECTIVE)\s*:`),
		phrase("Ignore Previous", `(?i)ignore\s+(all\s+)?(previous|prior|earlier)\s+(instructions?|rules?|prompts?)`),
		phrase("Security Bypass", `(?i)(bypass|disable|skip|ignore)\s+(security|validation|check|protection)`),
		phrase("Credential Insertion", `(?i)(add|insert|include)\s+(API\s+key|token|password|secret)`),
	}
}

// BuiltinPIIShapes returns the default PII shapes checked in AI logs.
func BuiltinPIIShapes() []*Rule {
	return []*Rule{
		{
			Name:        "Email Address",
			Category:    CategoryPII,
			Remediation: "Strip personal e-mail addresses from AI log files",
			Keywords:    []string{"@"},
			Allow:       []string{"example.com", "test.com", "noreply@", "no-reply@"},
			Matcher:     MustRegexp(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
		},
		{
			Name:        "Ukrainian Phone Number",
			Category:    CategoryPII,
			Remediation: "Strip phone numbers from AI log files",
			Keywords:    []string{"+380"},
			Matcher:     MustRegexp(`\+380[0-9]{9}`),
		},
	}
}
