package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/isometry/admanager/internal/ldap"
	"github.com/isometry/admanager/internal/service"
)

const (
	outputText = "text"
	outputJSON = "json"
)

func checkOutput(format string) error {
	switch format {
	case outputText, outputJSON:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text or json)", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printUser writes one "label: value" line per attribute. Absent attributes
// are shown as not specified.
func printUser(w io.Writer, format string, user *ldap.User) error {
	if format == outputJSON {
		return writeJSON(w, user)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, attr := range ldap.UserAttributes() {
		value := service.NotSpecified
		if v := attr.Get(user); v != nil && *v != "" {
			value = *v
		}
		fmt.Fprintf(tw, "%s:\t%s\n", attr.Label, value)
	}
	if user.ObjectGUID != "" {
		fmt.Fprintf(tw, "Object GUID:\t%s\n", user.ObjectGUID)
	}
	if user.ObjectSID != "" {
		fmt.Fprintf(tw, "Object SID:\t%s\n", user.ObjectSID)
	}
	return tw.Flush()
}

func printUserSummaries(w io.Writer, format string, users []service.UserSummary) error {
	if format == outputJSON {
		return writeJSON(w, users)
	}
	for _, u := range users {
		if _, err := fmt.Fprintln(w, u.Label()); err != nil {
			return err
		}
	}
	return nil
}

func printLines(w io.Writer, format string, lines []string) error {
	if format == outputJSON {
		return writeJSON(w, lines)
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
