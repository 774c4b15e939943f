package catalogue

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// MinYear is the earliest publication year accepted by Validate.
const MinYear = 1950

// ValidationError describes one rule violation.
type ValidationError struct {
	Owner string
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Owner, e.Field, e.Msg)
}

// ValidationErrors collects all violations found in a catalogue.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i := range e {
		msgs[i] = e[i].Error()
	}
	return fmt.Sprintf("%d catalogue problem(s): %s", len(e), strings.Join(msgs, "; "))
}

// Validate checks every entry. It returns nil or ValidationErrors.
func (c *Catalogue) Validate() error {
	return c.validateAt(time.Now())
}

func (c *Catalogue) validateAt(now time.Time) error {
	var errs ValidationErrors
	add := func(owner, field, msg string) {
		errs = append(errs, ValidationError{Owner: owner, Field: field, Msg: msg})
	}

	seen := map[string]map[string]bool{"model": {}, "dataset": {}}
	checkName := func(kind string, i int, name string) string {
		owner := fmt.Sprintf("%s #%d", kind, i)
		if strings.TrimSpace(name) == "" {
			add(owner, "name", "must not be empty")
			return owner
		}
		owner = fmt.Sprintf("%s %q", kind, name)
		key := strings.ToLower(strings.TrimSpace(name))
		if seen[kind][key] {
			add(owner, "name", "duplicate entry")
		}
		seen[kind][key] = true
		return owner
	}

	for i, m := range c.Models {
		owner := checkName("model", i, m.Name)
		if m.Year < MinYear || m.Year > now.Year() {
			add(owner, "year", fmt.Sprintf("%d is outside [%d, %d]", m.Year, MinYear, now.Year()))
		}
		if !m.Category.known() {
			add(owner, "category", fmt.Sprintf("unknown category %q", m.Category))
		}
		if err := checkURL(m.Paper); err != nil {
			add(owner, "paper", err.Error())
		}
		if m.Implementation != "" {
			if err := checkURL(m.Implementation); err != nil {
				add(owner, "implementation", err.Error())
			}
		}
	}

	for i, d := range c.Datasets {
		owner := checkName("dataset", i, d.Name)
		if err := checkURL(d.Source); err != nil {
			add(owner, "source", err.Error())
		}
		if d.Images <= 0 {
			add(owner, "images", "image count must be stated and positive")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func checkURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("link is missing")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid link %q: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("link %q must be absolute http(s)", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("link %q has no host", raw)
	}
	return nil
}
