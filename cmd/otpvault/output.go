package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/org/otpvault/internal/audit"
	"github.com/org/otpvault/pkg/models"
)

// printAccountTable renders account summaries as an aligned table. Secrets
// never appear here.
func printAccountTable(accounts []models.Summary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tISSUER\tLABEL\tTYPE\tTAGS")
	for _, acc := range accounts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			acc.ID, acc.Issuer, acc.Label, kindLabel(acc), strings.Join(acc.Tags, ", "))
	}
	w.Flush()
}

func kindLabel(acc models.Summary) string {
	switch acc.Kind {
	case models.KindHOTP:
		return fmt.Sprintf("hotp(counter=%d)", acc.Counter)
	case models.KindSteam:
		return fmt.Sprintf("steam(%ds)", acc.Period)
	default:
		return fmt.Sprintf("totp(%ds)", acc.Period)
	}
}

// printCode prints one generated code with its validity, if any.
func printCode(acc models.Summary, code string, remaining uint64) {
	name := acc.Label
	if acc.Issuer != "" {
		name = acc.Issuer + ": " + acc.Label
	}
	if remaining > 0 {
		fmt.Printf("%s\t%s\t(valid %ds)\n", name, code, remaining)
		return
	}
	fmt.Printf("%s\t%s\n", name, code)
}

// printActivity renders journal entries, oldest first.
func printActivity(entries []audit.Entry) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tOPERATION\tDETAIL")
	for _, e := range entries {
		detail := e.AccountID
		if e.Provider != "" {
			detail = e.Provider
			if e.Count > 0 {
				detail = fmt.Sprintf("%s (%d accounts)", e.Provider, e.Count)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Operation, detail)
	}
	w.Flush()
}

func printSuccess(msg string) {
	fmt.Println(msg)
}
