package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard. Secrets are not
// prompted for; the wizard lists the environment variables that carry them.
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a new configuration wizard on stdin/stdout
func NewWizard() *Wizard {
	return NewWizardWithIO(os.Stdin, os.Stdout)
}

// NewWizardWithIO creates a wizard reading answers from in
func NewWizardWithIO(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run runs the interactive configuration wizard starting from base
func (w *Wizard) Run(base *Config) (*Config, error) {
	fmt.Fprintln(w.out, "=== Daisy Configuration Wizard ===")
	fmt.Fprintln(w.out)

	cfg := base
	if cfg == nil {
		cfg = DefaultConfig()
	}
	validator := NewValidator()

	// Gemini
	fmt.Fprintln(w.out, "Gemini Live:")
	for {
		model, err := w.ask("Model", cfg.Gemini.Model)
		if err != nil {
			return nil, err
		}
		if err := validator.ValidateModel(model); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Gemini.Model = model
		break
	}
	for {
		voice, err := w.ask("Voice", cfg.Gemini.Voice)
		if err != nil {
			return nil, err
		}
		if err := validator.ValidateVoice(voice); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Gemini.Voice = voice
		break
	}
	modality, err := w.ask("Response modality (AUDIO/TEXT)", strings.Join(cfg.Gemini.ResponseModalities, ","))
	if err != nil {
		return nil, err
	}
	switch strings.ToUpper(modality) {
	case "AUDIO", "TEXT":
		cfg.Gemini.ResponseModalities = []string{strings.ToUpper(modality)}
	default:
		fmt.Fprintf(w.out, "Warning: unknown modality %q, keeping %v\n", modality, cfg.Gemini.ResponseModalities)
	}

	fmt.Fprintln(w.out)

	// Gateway
	fmt.Fprintln(w.out, "Gateway:")
	enable, err := w.ask("Enable the tool gateway? (y/n)", yesNo(cfg.Gateway.Enabled))
	if err != nil {
		return nil, err
	}
	cfg.Gateway.Enabled = strings.ToLower(enable) == "y"
	if cfg.Gateway.Enabled {
		for {
			raw, err := w.ask("Port", strconv.Itoa(cfg.Gateway.Port))
			if err != nil {
				return nil, err
			}
			port, convErr := strconv.Atoi(raw)
			if convErr == nil {
				convErr = validator.ValidatePort(port)
			}
			if convErr != nil {
				fmt.Fprintf(w.out, "Error: %v\n", convErr)
				continue
			}
			cfg.Gateway.Port = port
			break
		}
	}

	fmt.Fprintln(w.out)

	// Email
	fmt.Fprintln(w.out, "Email (press Enter to skip):")
	host, err := w.ask("SMTP host", cfg.Tools.Email.SMTPHost)
	if err != nil {
		return nil, err
	}
	cfg.Tools.Email.SMTPHost = host
	if host != "" {
		for {
			from, err := w.ask("From address", cfg.Tools.Email.From)
			if err != nil {
				return nil, err
			}
			if err := validator.ValidateEmailAddress(from); err != nil {
				fmt.Fprintf(w.out, "Error: %v\n", err)
				continue
			}
			cfg.Tools.Email.From = from
			break
		}
	}

	fmt.Fprintln(w.out)

	// Log Level
	fmt.Fprintln(w.out, "Logging:")
	level, err := w.ask("Log level (debug/info/warn/error)", cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateLogLevel(level); err != nil {
		fmt.Fprintf(w.out, "Warning: %v, using default (info)\n", err)
		level = "info"
	}
	cfg.Logging.Level = level

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Secrets are read from the environment:")
	fmt.Fprintln(w.out, "  DAISY_GEMINI_API_KEY         Gemini Live")
	fmt.Fprintln(w.out, "  DAISY_TOGETHER_API_KEY       image generation")
	fmt.Fprintln(w.out, "  DAISY_GOOGLE_SEARCH_API_KEY  web search")
	fmt.Fprintln(w.out, "  DAISY_EMAIL_PASSWORD         SMTP")
	fmt.Fprintln(w.out, "  DAISY_GATEWAY_SHARED_SECRET  gateway auth")
	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return cfg, nil
}

// ask prints a prompt and returns the answer, or def when the answer is empty
func (w *Wizard) ask(prompt, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", prompt, def)
	} else {
		fmt.Fprintf(w.out, "%s: ", prompt)
	}
	line, err := w.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return def, nil
	}
	return line, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func yesNo(b bool) string {
	if b {
		return "y"
	}
	return "n"
}
