package setup

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/vadiminshakov/skinsync/config"
	"github.com/vadiminshakov/skinsync/internal/domain"
	"github.com/vadiminshakov/skinsync/internal/services/currency"
	"gopkg.in/yaml.v3"
)

// DefaultFile file the wizard writes when no path is given.
const DefaultFile = "skinsync.yaml"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// Answers raw wizard input.
type Answers struct {
	APIURL       string
	Token        string
	Currency     string
	Delay        string
	DelayPolicy  string
	Horizon      string
	CacheDir     string
	UseFavorites bool
}

// DefaultAnswers prefilled wizard values.
func DefaultAnswers() Answers {
	return Answers{
		APIURL:       "http://localhost:8000",
		Currency:     domain.DefaultCurrency,
		Delay:        "2s",
		DelayPolicy:  config.DelayPolicyFixed,
		Horizon:      strconv.Itoa(domain.DefaultHorizon),
		CacheDir:     "./cache",
		UseFavorites: true,
	}
}

// Config converts answers into the yaml layout and validates it the same way Load does.
func (a Answers) Config() (config.ConfigTmp, error) {
	delay, err := time.ParseDuration(a.Delay)
	if err != nil {
		return config.ConfigTmp{}, fmt.Errorf("inter item delay: %w", err)
	}

	tmp := config.ConfigTmp{
		APIURL:         strings.TrimSpace(a.APIURL),
		Token:          strings.TrimSpace(a.Token),
		CacheDir:       a.CacheDir,
		InterItemDelay: delay,
		DelayPolicy:    a.DelayPolicy,
		HorizonStr:     a.Horizon,
		Currency:       a.Currency,
		UseFavorites:   a.UseFavorites,
	}
	if _, err := tmp.Parse(); err != nil {
		return config.ConfigTmp{}, err
	}
	return tmp, nil
}

// Save writes the config as yaml to path.
func Save(path string, tmp config.ConfigTmp) error {
	data, err := yaml.Marshal(tmp)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}
	// the file holds the api token
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

func header() {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("SKINSYNC CONFIG WIZARD"))
}

// RunTUI launches the terminal configuration wizard and writes the result to path.
func RunTUI(path string) error {
	if path == "" {
		path = DefaultFile
	}
	a := DefaultAnswers()
	var confirm bool

	// step 1: api
	header()
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Track your inventory prices without hitting rate limits.\n"))
	fmt.Println(stepStyle.Render("STEP 1: API"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API URL").
				Description("Base URL of the market data API").
				Value(&a.APIURL).
				Validate(validateURL),
			huh.NewInput().
				Title("API Token").
				Description("Bearer token, leave empty to set SKINSYNC_TOKEN later").
				Value(&a.Token).
				EchoMode(huh.EchoModePassword),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 2: display
	header()
	fmt.Println(stepStyle.Render("STEP 2: DISPLAY"))
	options := make([]huh.Option[string], 0, len(currency.Supported()))
	for _, sym := range currency.Supported() {
		options = append(options, huh.NewOption(sym, sym))
	}
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Display currency").
				Options(options...).
				Value(&a.Currency),
			huh.NewInput().
				Title("Prediction horizon").
				Description(fmt.Sprintf("Days ahead (%d-%d)", domain.MinHorizon, domain.MaxHorizon)).
				Value(&a.Horizon).
				Validate(validateHorizon),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 3: pacing
	header()
	fmt.Println(stepStyle.Render("STEP 3: PACING"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Delay between items").
				Description("Duration string (e.g. 2s, 500ms)").
				Value(&a.Delay).
				Validate(validateDelay),
			huh.NewSelect[string]().
				Title("Delay policy").
				Options(
					huh.NewOption("Fixed", config.DelayPolicyFixed),
					huh.NewOption("Back off while throttled", config.DelayPolicyBackoff),
				).
				Value(&a.DelayPolicy),
			huh.NewInput().
				Title("Cache directory").
				Value(&a.CacheDir),
			huh.NewConfirm().
				Title("Include account favorites?").
				Value(&a.UseFavorites),
		),
	).Run()
	if err != nil {
		return err
	}

	// confirmation
	header()
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))

	summary := fmt.Sprintf(
		"API: %s\nCurrency: %s\nHorizon: %s days\nDelay: %s (%s)\nCache: %s\nFavorites: %t\n",
		a.APIURL, a.Currency, a.Horizon, a.Delay, a.DelayPolicy, a.CacheDir, a.UseFavorites,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}

	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	tmp, err := a.Config()
	if err != nil {
		return err
	}
	if err := Save(path, tmp); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", path)))
	return nil
}

func validateURL(s string) error {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return fmt.Errorf("must start with http:// or https://")
	}
	return nil
}

func validateHorizon(s string) error {
	h, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a whole number of days")
	}
	if !domain.ValidHorizon(h) {
		return fmt.Errorf("must be between %d and %d", domain.MinHorizon, domain.MaxHorizon)
	}
	return nil
}

func validateDelay(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}
