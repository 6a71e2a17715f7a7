package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/flemzord/sandy/internal/config"
)

// starter holds the answers of the init wizard.
type starter struct {
	BotName     string
	Timezone    string
	Token       string
	OllamaURL   string
	BrainModel  string
	LocalRecall bool
	RecallURL   string
	Cron        bool
}

func defaultStarter() starter {
	return starter{
		BotName:     config.DefaultBotName,
		Timezone:    config.DefaultTimezone,
		Token:       "${DISCORD_TOKEN}",
		OllamaURL:   "http://localhost:11434",
		BrainModel:  config.DefaultBrainModel,
		LocalRecall: true,
		RecallURL:   config.DefaultRecallURL,
		Cron:        true,
	}
}

var starterTmpl = template.Must(template.New("sandy.yaml").Parse(`version: "1"

bot:
  name: {{printf "%q" .BotName}}
  timezone: {{printf "%q" .Timezone}}

models:
  brain: {{printf "%q" .BrainModel}}

history:
  seed: true
{{if not .LocalRecall}}
recall:
  url: {{printf "%q" .RecallURL}}
{{end}}
cron:
  enabled: {{.Cron}}

log:
  level: info
  format: text

modules:
  channel.discord:
    # Keep the token out of this file: put DISCORD_TOKEN in .env next to it.
    token: {{printf "%q" .Token}}
  provider.ollama:
    base_url: {{printf "%q" .OllamaURL}}
{{- if .LocalRecall}}
  recall.sqlite: {}
  recall.api:
    bind: "127.0.0.1:8000"
{{- end}}
`))

func (s starter) render() ([]byte, error) {
	var buf bytes.Buffer
	if err := starterTmpl.Execute(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// check validates the rendered config. The token may be an unset ${VAR}
// reference at this point, so a stand-in is used.
func (s starter) check() error {
	probe := s
	probe.Token = "stand-in-token"
	raw, err := probe.render()
	if err != nil {
		return err
	}
	cfg, err := config.Parse(raw)
	if err != nil {
		return err
	}
	return config.Validate(cfg)
}

func validateURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("enter an http(s) URL")
	}
	return nil
}

func validateTimezone(s string) error {
	if _, err := time.LoadLocation(s); err != nil {
		return errors.New("unknown IANA timezone")
	}
	return nil
}

func notEmpty(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("required")
	}
	return nil
}

func (s *starter) form() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Bot name").Value(&s.BotName).Validate(notEmpty),
			huh.NewInput().Title("Timezone").Description("Used for timestamps shown to the model").
				Value(&s.Timezone).Validate(validateTimezone),
			huh.NewInput().Title("Discord bot token").
				Description("Literal token, or a ${VAR} reference resolved from the environment").
				Value(&s.Token).EchoMode(huh.EchoModePassword).Validate(notEmpty),
		),
		huh.NewGroup(
			huh.NewInput().Title("Ollama URL").Value(&s.OllamaURL).Validate(validateURL),
			huh.NewInput().Title("Generation model").Value(&s.BrainModel).Validate(notEmpty),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Run the message archive in this process?").
				Description("No: point sandy at an archive API running elsewhere").
				Value(&s.LocalRecall),
		),
		huh.NewGroup(
			huh.NewInput().Title("Archive API URL").Value(&s.RecallURL).Validate(validateURL),
		).WithHideFunc(func() bool { return s.LocalRecall }),
		huh.NewGroup(
			huh.NewConfirm().Title("Enable periodic maintenance jobs?").Value(&s.Cron),
		),
	)
}

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "sandy", "sandy.yaml")
	}
	return "sandy.yaml"
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, _ := cmd.Flags().GetString("output")
			force, _ := cmd.Flags().GetBool("force")
			yes, _ := cmd.Flags().GetBool("yes")
			if out == "" {
				out = defaultConfigPath()
			}
			if _, err := os.Stat(out); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", out)
			}

			s := defaultStarter()
			if !yes {
				if err := s.form().Run(); err != nil {
					return err
				}
			}
			raw, err := s.render()
			if err != nil {
				return err
			}
			if err := s.check(); err != nil {
				return fmt.Errorf("generated config is invalid: %w", err)
			}

			if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
				return err
			}
			if err := os.WriteFile(out, raw, 0o600); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\nCheck it with: sandy config check %s\n", out, out)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Where to write the config (default: user config dir)")
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	cmd.Flags().BoolP("yes", "y", false, "Accept the defaults without prompting")
	return cmd
}
